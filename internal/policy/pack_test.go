package policy

import (
	"testing"

	"warden/internal/resource"
)

func TestPolicyPackRoundTrip(t *testing.T) {
	p := New("webserver")
	f := resource.NewFile("/etc/motd")
	if err := f.SetAttr("octal-mode", "0640"); err != nil {
		t.Fatalf("set attr: %v", err)
	}
	if err := p.Add(f); err != nil {
		t.Fatal(err)
	}
	pkg := resource.NewPackage("nginx")
	if err := pkg.SetAttr("installed", "true"); err != nil {
		t.Fatalf("set attr: %v", err)
	}
	if err := p.Add(pkg); err != nil {
		t.Fatal(err)
	}

	packed := p.Pack()
	got, err := Unpack(packed)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got.Name != "webserver" {
		t.Fatalf("name = %q", got.Name)
	}
	if len(got.order) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(got.order))
	}
	if r, ok := got.Get(fileID("/etc/motd")); !ok || r.Key() != "/etc/motd" {
		t.Fatalf("missing file resource: %+v ok=%v", r, ok)
	}
}
