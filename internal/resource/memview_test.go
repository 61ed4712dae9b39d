package resource

import "crypto/sha1"

// memView is an in-memory LiveView fake for unit tests, grounded on the
// teacher's internal/world live-state-via-interface pattern: it mediates
// a small scope of state (users, groups, files, hosts...) behind the
// same interface stat/remediate consume against a real system.
type memView struct {
	users   map[string]PasswdEntry
	shadows map[string]ShadowEntry
	groups  map[string]GroupEntry
	gshadow map[string]GshadowEntry
	files   map[string]FileInfo
	sources map[string][]byte
	pkgs    map[string]string
	svcs    map[string][2]bool // [running, enabled]
	hosts   map[string]HostEntry
	sysctls map[string]string
}

func newMemView() *memView {
	return &memView{
		users:   map[string]PasswdEntry{},
		shadows: map[string]ShadowEntry{},
		groups:  map[string]GroupEntry{},
		gshadow: map[string]GshadowEntry{},
		files:   map[string]FileInfo{},
		sources: map[string][]byte{},
		pkgs:    map[string]string{},
		svcs:    map[string][2]bool{},
		hosts:   map[string]HostEntry{},
		sysctls: map[string]string{},
	}
}

func (m *memView) LookupUser(name string) (PasswdEntry, bool, error) {
	e, ok := m.users[name]
	return e, ok, nil
}

func (m *memView) LookupUserByUID(uid uint32) (PasswdEntry, bool, error) {
	for _, e := range m.users {
		if e.UID == uid {
			return e, true, nil
		}
	}
	return PasswdEntry{}, false, nil
}

func (m *memView) LookupShadow(name string) (ShadowEntry, bool, error) {
	e, ok := m.shadows[name]
	return e, ok, nil
}

func (m *memView) WriteUser(e PasswdEntry) error {
	m.users[e.Name] = e
	return nil
}

func (m *memView) WriteShadow(e ShadowEntry) error {
	m.shadows[e.Name] = e
	return nil
}

func (m *memView) DeleteUser(name string) error {
	delete(m.users, name)
	delete(m.shadows, name)
	return nil
}

func (m *memView) LookupGroup(name string) (GroupEntry, bool, error) {
	e, ok := m.groups[name]
	return e, ok, nil
}

func (m *memView) LookupGroupByGID(gid uint32) (GroupEntry, bool, error) {
	for _, e := range m.groups {
		if e.GID == gid {
			return e, true, nil
		}
	}
	return GroupEntry{}, false, nil
}

func (m *memView) LookupGshadow(name string) (GshadowEntry, bool, error) {
	e, ok := m.gshadow[name]
	return e, ok, nil
}

func (m *memView) WriteGroup(e GroupEntry) error {
	m.groups[e.Name] = e
	return nil
}

func (m *memView) WriteGshadow(e GshadowEntry) error {
	m.gshadow[e.Name] = e
	return nil
}

func (m *memView) DeleteGroup(name string) error {
	delete(m.groups, name)
	delete(m.gshadow, name)
	return nil
}

func (m *memView) StatPath(path string) (FileInfo, bool, error) {
	e, ok := m.files[path]
	return e, ok, nil
}

func (m *memView) FetchSource(ref string) ([]byte, error) {
	return m.sources[ref], nil
}

func (m *memView) WriteFile(path string, content []byte, mode uint32, uid, gid uint32) error {
	m.files[path] = FileInfo{UID: uid, GID: gid, Mode: mode, Sha1: sha1.Sum(content)}
	return nil
}

func (m *memView) Chown(path string, uid, gid uint32) error {
	e := m.files[path]
	e.UID, e.GID = uid, gid
	m.files[path] = e
	return nil
}

func (m *memView) Chmod(path string, mode uint32) error {
	e := m.files[path]
	e.Mode = mode
	m.files[path] = e
	return nil
}

func (m *memView) Mkdir(path string, mode uint32, uid, gid uint32) error {
	m.files[path] = FileInfo{UID: uid, GID: gid, Mode: mode}
	return nil
}

func (m *memView) RemovePath(path string) error {
	delete(m.files, path)
	return nil
}

func (m *memView) PackageInstalled(name string) (string, bool, error) {
	v, ok := m.pkgs[name]
	return v, ok, nil
}

func (m *memView) InstallPackage(name, version string) error {
	m.pkgs[name] = version
	return nil
}

func (m *memView) RemovePackage(name string) error {
	delete(m.pkgs, name)
	return nil
}

func (m *memView) ServiceStatus(name string) (bool, bool, error) {
	s, ok := m.svcs[name]
	if !ok {
		return false, false, nil
	}
	return s[0], s[1], nil
}

func (m *memView) SetServiceRunning(name string, running bool) error {
	s := m.svcs[name]
	s[0] = running
	m.svcs[name] = s
	return nil
}

func (m *memView) SetServiceEnabled(name string, enabled bool) error {
	s := m.svcs[name]
	s[1] = enabled
	m.svcs[name] = s
	return nil
}

func (m *memView) LookupHost(fqdn string) (HostEntry, bool, error) {
	e, ok := m.hosts[fqdn]
	return e, ok, nil
}

func (m *memView) WriteHost(e HostEntry) error {
	m.hosts[e.Hostname] = e
	return nil
}

func (m *memView) DeleteHost(fqdn string) error {
	delete(m.hosts, fqdn)
	return nil
}

func (m *memView) GetSysctl(name string) (string, error) {
	return m.sysctls[name], nil
}

func (m *memView) SetSysctl(name, value string, persist bool) error {
	m.sysctls[name] = value
	return nil
}
