package pathcfg

import "testing"

func TestCanonCollapsesDotSegments(t *testing.T) {
	cases := map[string]string{
		"/a/./b":       "/a/b",
		"/a/b/../c":    "/a/c",
		"/a/b/../../c": "/c",
		"":             ".",
		"/":            "/",
	}
	for in, want := range cases {
		if got := Canon(in); got != want {
			t.Errorf("Canon(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAncestorsWalksToRoot(t *testing.T) {
	got := Ancestors("/a/b/c")
	want := []string{"/a/b", "/a", "/"}
	if len(got) != len(want) {
		t.Fatalf("Ancestors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Ancestors[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAncestorsOfRootIsEmpty(t *testing.T) {
	if got := Ancestors("/"); got != nil {
		t.Fatalf("Ancestors(/) = %v, want nil", got)
	}
}

func TestParentOfRootIsEmpty(t *testing.T) {
	if got := Parent("/"); got != "" {
		t.Fatalf("Parent(/) = %q, want empty", got)
	}
}

func TestPushThenPopRoundTrips(t *testing.T) {
	pushed := Push("/etc", "warden.d")
	if pushed != "/etc/warden.d" {
		t.Fatalf("Push = %q", pushed)
	}
	if got := Pop(pushed); got != "/etc" {
		t.Fatalf("Pop(%q) = %q, want /etc", pushed, got)
	}
}
