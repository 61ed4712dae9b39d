package adapters

import (
	"os"
	"testing"

	"warden/internal/resource"
)

func newTestLiveOS(t *testing.T) *LiveOS {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"/etc", "/proc/sys", "/srv"} {
		if err := os.MkdirAll(root+dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return &LiveOS{Root: root}
}

func TestLiveOSUserRoundTrip(t *testing.T) {
	l := newTestLiveOS(t)
	e := resource.PasswdEntry{Name: "alice", Passwd: "x", UID: 1000, GID: 1000, Gecos: "Alice", Dir: "/home/alice", Shell: "/bin/bash"}
	if err := l.WriteUser(e); err != nil {
		t.Fatalf("write user: %v", err)
	}
	got, ok, err := l.LookupUser("alice")
	if err != nil || !ok {
		t.Fatalf("lookup user: ok=%v err=%v", ok, err)
	}
	if got != e {
		t.Fatalf("round-tripped user = %+v, want %+v", got, e)
	}

	e.Shell = "/bin/zsh"
	if err := l.WriteUser(e); err != nil {
		t.Fatalf("rewrite user: %v", err)
	}
	got, _, _ = l.LookupUser("alice")
	if got.Shell != "/bin/zsh" {
		t.Fatalf("expected shell update to replace in place, got %q", got.Shell)
	}

	if err := l.DeleteUser("alice"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	_, ok, _ = l.LookupUser("alice")
	if ok {
		t.Fatalf("expected user to be gone after delete")
	}
}

func TestLiveOSGroupMembership(t *testing.T) {
	l := newTestLiveOS(t)
	g := resource.GroupEntry{Name: "wheel", Passwd: "x", GID: 10, Members: []string{"alice", "bob"}}
	if err := l.WriteGroup(g); err != nil {
		t.Fatalf("write group: %v", err)
	}
	got, ok, err := l.LookupGroup("wheel")
	if err != nil || !ok {
		t.Fatalf("lookup group: ok=%v err=%v", ok, err)
	}
	if len(got.Members) != 2 || got.Members[0] != "alice" {
		t.Fatalf("unexpected members: %v", got.Members)
	}

	byGID, ok, err := l.LookupGroupByGID(10)
	if err != nil || !ok || byGID.Name != "wheel" {
		t.Fatalf("lookup by gid failed: %+v ok=%v err=%v", byGID, ok, err)
	}
}

func TestLiveOSFileRemediationHelpers(t *testing.T) {
	l := newTestLiveOS(t)
	path := "/srv/app.conf"
	if err := l.WriteFile(path, []byte("hello"), 0o640, uint32(os.Getuid()), uint32(os.Getgid())); err != nil {
		t.Fatalf("write file: %v", err)
	}
	fi, ok, err := l.StatPath(path)
	if err != nil || !ok {
		t.Fatalf("stat: ok=%v err=%v", ok, err)
	}
	if fi.Mode != 0o640 {
		t.Fatalf("mode = %o, want 0640", fi.Mode)
	}

	if err := l.RemovePath(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, ok, _ = l.StatPath(path)
	if ok {
		t.Fatalf("expected file to be gone after remove")
	}
}

func TestLiveOSHostEntry(t *testing.T) {
	l := newTestLiveOS(t)
	e := resource.HostEntry{Hostname: "db1.example.test", IPv4: "10.0.0.5", Aliases: []string{"db1"}}
	if err := l.WriteHost(e); err != nil {
		t.Fatalf("write host: %v", err)
	}
	got, ok, err := l.LookupHost("db1.example.test")
	if err != nil || !ok {
		t.Fatalf("lookup host: ok=%v err=%v", ok, err)
	}
	if got.IPv4 != "10.0.0.5" || len(got.Aliases) != 1 || got.Aliases[0] != "db1" {
		t.Fatalf("unexpected host entry: %+v", got)
	}

	if err := l.DeleteHost("db1.example.test"); err != nil {
		t.Fatalf("delete host: %v", err)
	}
	_, ok, _ = l.LookupHost("db1.example.test")
	if ok {
		t.Fatalf("expected host entry to be gone after delete")
	}
}
