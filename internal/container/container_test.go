package container

import "testing"

func TestListPushPopOrder(t *testing.T) {
	l := NewList[int](0)
	l.Push(1)
	l.Push(2)
	l.Push(3)
	if l.Len() != 3 {
		t.Fatalf("expected len 3, got %d", l.Len())
	}
	v, ok := l.Shift()
	if !ok || v != 1 {
		t.Fatalf("expected shift to yield 1, got %v ok=%v", v, ok)
	}
	v, ok = l.Pop()
	if !ok || v != 3 {
		t.Fatalf("expected pop to yield 3, got %v ok=%v", v, ok)
	}
	if l.Len() != 1 || l.At(0) != 2 {
		t.Fatalf("expected single remaining element 2, got %v", l.Slice())
	}
}

func TestListEmptyPop(t *testing.T) {
	l := NewList[string](0)
	if _, ok := l.Pop(); ok {
		t.Fatal("expected pop on empty list to report ok=false")
	}
	if _, ok := l.Shift(); ok {
		t.Fatal("expected shift on empty list to report ok=false")
	}
}

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMap[int]()
	m.Set("c", 3)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 100) // overwrite, should not move position

	want := []string{"c", "a", "b"}
	got := m.Keys()
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key order mismatch at %d: want %s got %s", i, want[i], got[i])
		}
	}
	v, ok := m.Get("a")
	if !ok || v != 100 {
		t.Fatalf("expected overwritten value 100, got %v ok=%v", v, ok)
	}
}

func TestOrderedMapDelete(t *testing.T) {
	m := NewOrderedMap[int]()
	m.Set("x", 1)
	m.Set("y", 2)
	m.Set("z", 3)
	m.Delete("y")
	if m.Has("y") {
		t.Fatal("expected y to be deleted")
	}
	want := []string{"x", "z"}
	got := m.Keys()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v after delete, got %v", want, got)
	}
}

func TestOrderedMapMergeFirstWriteWins(t *testing.T) {
	dst := NewOrderedMap[string]()
	dst.Set("k", "dst-value")
	src := NewOrderedMap[string]()
	src.Set("k", "src-value")
	src.Set("new", "src-new")

	dst.Merge(src)

	v, _ := dst.Get("k")
	if v != "dst-value" {
		t.Fatalf("expected first-write-wins to keep dst-value, got %s", v)
	}
	v, ok := dst.Get("new")
	if !ok || v != "src-new" {
		t.Fatalf("expected new key to be merged in, got %s ok=%v", v, ok)
	}
}

func TestBufferPad(t *testing.T) {
	b := NewBuffer()
	b.WriteString("abc")
	b.Pad(4)
	if b.Len() != 4 {
		t.Fatalf("expected padded length 4, got %d", b.Len())
	}
	b2 := NewBuffer()
	b2.WriteString("abcd")
	b2.Pad(4)
	if b2.Len() != 4 {
		t.Fatalf("expected already-aligned length to stay 4, got %d", b2.Len())
	}
}
