package manifest

import "testing"

// Scenario 2: conditional compilation.
func TestCompileConditional(t *testing.T) {
	m := &Manifest{
		Policies: map[string]*Prog{
			"base": {
				Children: []Node{
					&If{
						Fact:    "os",
						Literal: "linux",
						Then: &Prog{Children: []Node{
							&Resource{Type: "file", Key: "/etc/motd", Children: []Node{
								&Attribute{Name: "octal-mode", Value: "0640"},
							}},
						}},
						Else: &Prog{Children: []Node{
							&Resource{Type: "file", Key: "/etc/motd", Children: []Node{
								&Attribute{Name: "octal-mode", Value: "0600"},
							}},
						}},
					},
				},
			},
		},
	}

	pol, err := Compile(m, "base", map[string]string{"os": "linux"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	resources := pol.Resources()
	if len(resources) != 1 {
		t.Fatalf("expected exactly one File resource, got %d", len(resources))
	}
	if got := resources[0].Attrs()["octal-mode"]; got != "640" {
		t.Fatalf("expected octal-mode 640 (0640 parsed as octal), got %q", got)
	}
}

func TestCompileDeterministic(t *testing.T) {
	m := &Manifest{
		Policies: map[string]*Prog{
			"base": {
				Children: []Node{
					&Resource{Type: "package", Key: "nginx", Children: []Node{
						&Attribute{Name: "installed", Value: "true"},
					}},
					&Resource{Type: "service", Key: "nginx", Children: []Node{
						&Attribute{Name: "running", Value: "true"},
					}},
				},
			},
		},
	}

	facts := map[string]string{"env": "prod"}
	a, err := Compile(m, "base", facts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compile(m, "base", facts)
	if err != nil {
		t.Fatal(err)
	}
	ra, rb := a.Resources(), b.Resources()
	if len(ra) != len(rb) {
		t.Fatalf("compile(M,F) not stable across runs: %d vs %d resources", len(ra), len(rb))
	}
	for i := range ra {
		if ra[i].Key() != rb[i].Key() || ra[i].Kind() != rb[i].Kind() {
			t.Fatalf("compile(M,F) not byte-identical across runs at %d", i)
		}
	}
}

func TestInterpolation(t *testing.T) {
	facts := map[string]string{"env": "prod"}
	locals := map[string]string{"suffix": "-1"}
	got := interpolate("/srv/$env/app${suffix}", facts, locals)
	want := "/srv/prod/app-1"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestImplicitFileOwnerDependency(t *testing.T) {
	m := &Manifest{
		Policies: map[string]*Prog{
			"base": {
				Children: []Node{
					&Resource{Type: "file", Key: "/opt/app.conf", Children: []Node{
						&Attribute{Name: "owner", Value: "100"},
					}},
					&Resource{Type: "user", Key: "100", Children: nil},
				},
			},
		},
	}
	pol, err := Compile(m, "base", nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sorted, err := pol.Sort()
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	pos := map[string]int{}
	for i, r := range sorted {
		pos[string(r.Kind())+"/"+r.Key()] = i
	}
	if pos["user/100"] >= pos["file//opt/app.conf"] {
		t.Fatalf("expected owning user before file, got order %v", pos)
	}
}
