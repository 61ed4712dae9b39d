package resource

import "testing"

// Scenario 1: merge precedence.
func TestMergeFilesPrecedence(t *testing.T) {
	r1 := NewFile("a")
	r1.SetPriority(0)
	if err := r1.SetAttr("owner", "500"); err != nil {
		t.Fatal(err)
	}

	r2 := NewFile("a")
	r2.SetPriority(1)
	if err := r2.SetAttr("owner", "600"); err != nil {
		t.Fatal(err)
	}
	if err := r2.SetAttr("group", "100"); err != nil {
		t.Fatal(err)
	}

	merged := MergeFiles(r1, r2)
	if merged.uid != 500 {
		t.Fatalf("expected uid 500 (r1 wins, lower priority), got %d", merged.uid)
	}
	if merged.gid != 100 {
		t.Fatalf("expected gid 100 (only r2 enforces it), got %d", merged.gid)
	}
	if !merged.Enforced().Has(FileUID) || !merged.Enforced().Has(FileGID) {
		t.Fatalf("expected enforcement union {uid,gid}, got %b", merged.Enforced())
	}
}

func TestMergeEnforcementIsUnion(t *testing.T) {
	r1 := NewFile("a")
	_ = r1.SetAttr("owner", "1")
	r2 := NewFile("a")
	_ = r2.SetAttr("group", "2")
	merged := MergeFiles(r1, r2)
	want := r1.Enforced() | r2.Enforced()
	if merged.Enforced() != want {
		t.Fatalf("expected enforcement %b, got %b", want, merged.Enforced())
	}
}

// Scenario 6: group membership add/remove/untouched.
func TestGroupMembershipRemediate(t *testing.T) {
	g := NewGroup("staff")
	if err := g.SetAttr("additive-members", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := g.SetAttr("additive-members", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := g.SetAttr("removed-members", "eve"); err != nil {
		t.Fatal(err)
	}

	view := newMemView()
	view.groups["staff"] = GroupEntry{Name: "staff", GID: 50, Members: []string{"bob", "eve", "carol"}}

	if err := g.Stat(view); err != nil {
		t.Fatalf("stat: %v", err)
	}
	if g.Diff() == 0 {
		t.Fatal("expected nonzero diff before remediation")
	}
	if err := g.Remediate(view); err != nil {
		t.Fatalf("remediate: %v", err)
	}
	if g.Diff() != 0 {
		t.Fatalf("expected zero diff after remediation, got %b", g.Diff())
	}

	got := view.groups["staff"].Members
	want := map[string]bool{"alice": true, "bob": true, "carol": true}
	if len(got) != len(want) {
		t.Fatalf("expected 3 members, got %v", got)
	}
	for _, m := range got {
		if !want[m] {
			t.Fatalf("unexpected member %q in %v", m, got)
		}
	}
}

func TestGroupMembershipRejectsOverlap(t *testing.T) {
	g := NewGroup("staff")
	if err := g.SetAttr("additive-members", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := g.SetAttr("removed-members", "alice"); err == nil {
		t.Fatal("expected InvalidValue when add and remove name the same member")
	}
}

func TestRemediateIsIdempotent(t *testing.T) {
	u := NewUser("bourbon")
	_ = u.SetAttr("uid", "101")
	_ = u.SetAttr("gid", "2000")

	view := newMemView()
	view.users["bourbon"] = PasswdEntry{Name: "bourbon", UID: 1, GID: 1}

	if err := u.Stat(view); err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := u.Remediate(view); err != nil {
		t.Fatalf("first remediate: %v", err)
	}
	first := view.users["bourbon"]
	if err := u.Remediate(view); err != nil {
		t.Fatalf("second remediate: %v", err)
	}
	second := view.users["bourbon"]
	if first != second {
		t.Fatalf("remediate is not idempotent: %+v != %+v", first, second)
	}
	if u.Diff() != 0 {
		t.Fatalf("expected zero diff after remediation, got %b", u.Diff())
	}
}

func TestUnsetRetainsValue(t *testing.T) {
	u := NewUser("bourbon")
	_ = u.SetAttr("uid", "101")
	if !u.Enforced().Has(UserUID) {
		t.Fatal("expected uid enforced after set")
	}
	if err := u.UnsetAttr("uid"); err != nil {
		t.Fatal(err)
	}
	if u.Enforced().Has(UserUID) {
		t.Fatal("expected uid not enforced after unset")
	}
	if u.uid != 101 {
		t.Fatalf("expected value retained after unset, got %d", u.uid)
	}
}

func TestUserPackRoundTrip(t *testing.T) {
	u := NewUser("bourbon")
	_ = u.SetAttr("uid", "101")
	_ = u.SetAttr("gid", "2000")
	u.SetPriority(1)

	packed := u.Pack()
	got, err := UnpackUser(packed)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got.key != u.key || got.uid != u.uid || got.gid != u.gid || got.enf != u.enf {
		t.Fatalf("round trip mismatch: %+v != %+v", got, u)
	}
}

func TestFileStatSetsNotFound(t *testing.T) {
	f := NewFile("/etc/missing.conf")
	_ = f.SetAttr("owner", "0")

	view := newMemView()
	err := f.Stat(view)
	if err == nil {
		t.Fatal("expected NotFound when path absent and presence not enforced")
	}
}
