// Package resource implements the typed resource records of the policy
// engine covering User, Group, File, Dir, Package, Service, Host and
// Sysctl. Each type carries its own enforcement/difference bitmask, a
// set/unset pair per attribute, and stat/remediate against a LiveView.
//
// The bit layouts for User, Group and File mirror the RES_USER_*,
// RES_GROUP_* and RES_FILE_* constants from the clockwork original this
// engine is ported from; Dir, Package, Service, Host and Sysctl have no
// 1:1 original and use a sequential scheme in the same idiom.
package resource

import "warden/internal/werr"

// Mask is an enforcement or difference bitmask for a single resource.
type Mask uint32

// Has reports whether all bits in want are set in m.
func (m Mask) Has(want Mask) bool {
	return m&want == want
}

// Kind names a resource type, used as the first field of its packed
// wire form and as the discriminator in policy/catalog bookkeeping.
type Kind string

const (
	KindUser    Kind = "user"
	KindGroup   Kind = "group"
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindPackage Kind = "package"
	KindService Kind = "service"
	KindHost    Kind = "host"
	KindSysctl  Kind = "sysctl"
)

// Resource is the common surface every concrete type implements, per
// the operation list above. set/unset are type-specific (attribute
// names differ per kind) and are exposed as SetAttr/UnsetAttr below.
type Resource interface {
	Kind() Kind
	Key() string
	Priority() uint32
	SetPriority(p uint32)

	// SetAttr parses value and stores it under attr, OR-ing the
	// attribute's bit into the enforcement mask. Returns
	// werr.UnknownAttribute or werr.InvalidValue on failure.
	SetAttr(attr, value string) error
	// UnsetAttr XORs attr's bit out of the enforcement mask, retaining
	// the last stored value.
	UnsetAttr(attr string) error

	Enforced() Mask
	Diff() Mask

	// Stat reads current state from view into the shadow record and
	// recomputes Diff. Returns werr.NotFound if an expected live object
	// is absent and its creation is not enforced.
	Stat(view LiveView) error
	// Remediate applies the minimal change clearing each Diff bit,
	// then recomputes Diff, which must be 0 on success.
	Remediate(view LiveView) error

	Pack() string

	// Attrs emits a snapshot of every declared (enforced) attribute.
	Attrs() map[string]string
}

// LiveView mediates live external system state so resource stat and
// remediate logic is unit-testable without root. Grounded on the
// teacher's internal/world live-external-state-via-interface seam.
type LiveView interface {
	// Users
	LookupUser(name string) (PasswdEntry, bool, error)
	LookupUserByUID(uid uint32) (PasswdEntry, bool, error)
	LookupShadow(name string) (ShadowEntry, bool, error)
	WriteUser(e PasswdEntry) error
	WriteShadow(e ShadowEntry) error
	DeleteUser(name string) error

	// Groups
	LookupGroup(name string) (GroupEntry, bool, error)
	LookupGroupByGID(gid uint32) (GroupEntry, bool, error)
	LookupGshadow(name string) (GshadowEntry, bool, error)
	WriteGroup(e GroupEntry) error
	WriteGshadow(e GshadowEntry) error
	DeleteGroup(name string) error

	// Filesystem
	StatPath(path string) (FileInfo, bool, error)
	FetchSource(ref string) ([]byte, error)
	WriteFile(path string, content []byte, mode uint32, uid, gid uint32) error
	Chown(path string, uid, gid uint32) error
	Chmod(path string, mode uint32) error
	Mkdir(path string, mode uint32, uid, gid uint32) error
	RemovePath(path string) error

	// Packages and services
	PackageInstalled(name string) (version string, ok bool, err error)
	InstallPackage(name, version string) error
	RemovePackage(name string) error
	ServiceStatus(name string) (running, enabled bool, err error)
	SetServiceRunning(name string, running bool) error
	SetServiceEnabled(name string, enabled bool) error

	// Hosts file
	LookupHost(fqdn string) (HostEntry, bool, error)
	WriteHost(e HostEntry) error
	DeleteHost(fqdn string) error

	// Sysctl
	GetSysctl(name string) (string, error)
	SetSysctl(name, value string, persist bool) error
}

// PasswdEntry mirrors the fields of struct passwd that resources enforce.
type PasswdEntry struct {
	Name   string
	Passwd string
	UID    uint32
	GID    uint32
	Gecos  string
	Dir    string
	Shell  string
}

// ShadowEntry mirrors the fields of struct spwd that resources enforce.
type ShadowEntry struct {
	Name   string
	Passwd string
	Min    int64
	Max    int64
	Warn   int64
	Inact  int64
	Expire int64
}

// GroupEntry mirrors struct group.
type GroupEntry struct {
	Name    string
	Passwd  string
	GID     uint32
	Members []string
}

// GshadowEntry mirrors struct sgrp (gshadow), tracking admins separately
// from ordinary members.
type GshadowEntry struct {
	Name   string
	Passwd string
	Admins []string
}

// FileInfo is the subset of stat(2) resources compare against.
type FileInfo struct {
	UID  uint32
	GID  uint32
	Mode uint32
	Sha1 [20]byte
}

// HostEntry is one row of the hosts file keyed by canonical hostname.
type HostEntry struct {
	Hostname string
	Aliases  []string
	IPv4     string
	IPv6     string
}

func unknownAttr(kind Kind, attr string) error {
	return werr.Wrap(werr.UnknownAttribute, "%s: unknown attribute %q", kind, attr)
}

func invalidValue(kind Kind, attr, value string) error {
	return werr.Wrap(werr.InvalidValue, "%s: invalid value %q for attribute %q", kind, value, attr)
}
