package policy

import (
	"errors"
	"testing"

	"warden/internal/resource"
	"warden/internal/werr"
)

func fileID(key string) ResourceID {
	return ResourceID{Kind: resource.KindFile, Key: key}
}

// Scenario 4: dependency cycle.
func TestSortDetectsCycle(t *testing.T) {
	p := New("cyclic")
	a := resource.NewFile("a")
	b := resource.NewFile("b")
	if err := p.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := p.Add(b); err != nil {
		t.Fatal(err)
	}
	if err := p.AddDependency(fileID("a"), fileID("b")); err != nil {
		t.Fatal(err)
	}
	if err := p.AddDependency(fileID("b"), fileID("a")); err != nil {
		t.Fatal(err)
	}

	_, err := p.Sort()
	if !errors.Is(err, werr.CyclicDependency) {
		t.Fatalf("expected CyclicDependency, got %v", err)
	}
}

func TestSortOrdersByDependency(t *testing.T) {
	p := New("ordered")
	for _, key := range []string{"c", "a", "b"} {
		if err := p.Add(resource.NewFile(key)); err != nil {
			t.Fatal(err)
		}
	}
	// b depends on a; c has no dependency.
	if err := p.AddDependency(fileID("b"), fileID("a")); err != nil {
		t.Fatal(err)
	}

	sorted, err := p.Sort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := map[string]int{}
	for i, r := range sorted {
		pos[r.Key()] = i
	}
	if pos["a"] >= pos["b"] {
		t.Fatalf("expected a before b, got order %v", pos)
	}
}

// Sorting the same declarations twice yields the same order.
func TestSortDeterministicAcrossRuns(t *testing.T) {
	build := func(order []string) []string {
		p := New("siblings")
		for _, key := range order {
			_ = p.Add(resource.NewFile(key))
		}
		sorted, err := p.Sort()
		if err != nil {
			t.Fatal(err)
		}
		var keys []string
		for _, r := range sorted {
			keys = append(keys, r.Key())
		}
		return keys
	}

	a := build([]string{"x", "y", "z"})
	b := build([]string{"x", "y", "z"})
	if len(a) != len(b) {
		t.Fatalf("mismatched lengths: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("compile(M,F) not byte-identical across runs: %v vs %v", a, b)
		}
	}
}

func TestAddMergesRedeclaredResource(t *testing.T) {
	p := New("merge-on-redeclare")
	r1 := resource.NewFile("a")
	r1.SetPriority(0)
	_ = r1.SetAttr("owner", "500")
	if err := p.Add(r1); err != nil {
		t.Fatal(err)
	}

	r2 := resource.NewFile("a")
	r2.SetPriority(1)
	_ = r2.SetAttr("owner", "600")
	_ = r2.SetAttr("group", "100")
	if err := p.Add(r2); err != nil {
		t.Fatal(err)
	}

	merged, ok := p.Get(fileID("a"))
	if !ok {
		t.Fatal("expected merged resource to be present")
	}
	f := merged.(*resource.File)
	if f.Attrs()["owner"] != "500" {
		t.Fatalf("expected owner 500 (lower-priority wins), got %v", f.Attrs())
	}
	if len(p.order) != 1 {
		t.Fatalf("expected redeclare to merge in place, not add a second entry, got %d", len(p.order))
	}
}
