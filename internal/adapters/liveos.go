package adapters

import (
	"bufio"
	"context"
	"crypto/sha1"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"warden/internal/resource"
	"warden/internal/werr"
)

// LiveOS implements resource.LiveView against the real host: the
// /etc/passwd family of flat files for users and groups, the
// filesystem directly for File/Dir, a PackageManager/ServiceManager
// pair for packages and services, /etc/hosts for host entries, and
// /proc/sys (or sysctl.conf for persistence) for sysctls.
type LiveOS struct {
	Root string // filesystem root, "" for "/"; overridable so tests can sandbox

	Packages PackageManager
	Services ServiceManager
}

func NewLiveOS(pkgs PackageManager, svcs ServiceManager) *LiveOS {
	return &LiveOS{Packages: pkgs, Services: svcs}
}

func (l *LiveOS) path(p string) string {
	if l.Root == "" {
		return p
	}
	return l.Root + p
}

// --- Users ---------------------------------------------------------

func (l *LiveOS) LookupUser(name string) (resource.PasswdEntry, bool, error) {
	return lookupPasswd(l.path("/etc/passwd"), func(f []string) bool { return f[0] == name })
}

func (l *LiveOS) LookupUserByUID(uid uint32) (resource.PasswdEntry, bool, error) {
	want := strconv.FormatUint(uint64(uid), 10)
	return lookupPasswd(l.path("/etc/passwd"), func(f []string) bool { return f[2] == want })
}

func lookupPasswd(path string, match func(fields []string) bool) (resource.PasswdEntry, bool, error) {
	var zero resource.PasswdEntry
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, werr.Wrap(werr.IO, "open %s: %v", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 7 || !match(fields) {
			continue
		}
		uid, _ := strconv.ParseUint(fields[2], 10, 32)
		gid, _ := strconv.ParseUint(fields[3], 10, 32)
		return resource.PasswdEntry{
			Name: fields[0], Passwd: fields[1],
			UID: uint32(uid), GID: uint32(gid),
			Gecos: fields[4], Dir: fields[5], Shell: fields[6],
		}, true, nil
	}
	return zero, false, sc.Err()
}

func (l *LiveOS) WriteUser(e resource.PasswdEntry) error {
	line := fmt.Sprintf("%s:%s:%d:%d:%s:%s:%s", e.Name, e.Passwd, e.UID, e.GID, e.Gecos, e.Dir, e.Shell)
	return upsertLine(l.path("/etc/passwd"), e.Name, line)
}

func (l *LiveOS) DeleteUser(name string) error {
	return deleteLine(l.path("/etc/passwd"), name)
}

func (l *LiveOS) LookupShadow(name string) (resource.ShadowEntry, bool, error) {
	var zero resource.ShadowEntry
	f, err := os.Open(l.path("/etc/shadow"))
	if os.IsNotExist(err) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, werr.Wrap(werr.IO, "open shadow: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), ":")
		if len(fields) < 8 || fields[0] != name {
			continue
		}
		min, _ := strconv.ParseInt(orZero(fields[3]), 10, 64)
		max, _ := strconv.ParseInt(orZero(fields[4]), 10, 64)
		warn, _ := strconv.ParseInt(orZero(fields[5]), 10, 64)
		inact, _ := strconv.ParseInt(orZero(fields[6]), 10, 64)
		expire, _ := strconv.ParseInt(orZero(fields[7]), 10, 64)
		return resource.ShadowEntry{
			Name: fields[0], Passwd: fields[1],
			Min: min, Max: max, Warn: warn, Inact: inact, Expire: expire,
		}, true, nil
	}
	return zero, false, sc.Err()
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func (l *LiveOS) WriteShadow(e resource.ShadowEntry) error {
	line := fmt.Sprintf("%s:%s:0:%d:%d:%d:%d:%d:", e.Name, e.Passwd, e.Min, e.Max, e.Warn, e.Inact, e.Expire)
	return upsertLine(l.path("/etc/shadow"), e.Name, line)
}

// --- Groups ----------------------------------------------------------

func (l *LiveOS) LookupGroup(name string) (resource.GroupEntry, bool, error) {
	return lookupGroup(l.path("/etc/group"), func(f []string) bool { return f[0] == name })
}

func (l *LiveOS) LookupGroupByGID(gid uint32) (resource.GroupEntry, bool, error) {
	want := strconv.FormatUint(uint64(gid), 10)
	return lookupGroup(l.path("/etc/group"), func(f []string) bool { return f[2] == want })
}

func lookupGroup(path string, match func([]string) bool) (resource.GroupEntry, bool, error) {
	var zero resource.GroupEntry
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, werr.Wrap(werr.IO, "open %s: %v", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), ":")
		if len(fields) < 4 || !match(fields) {
			continue
		}
		gid, _ := strconv.ParseUint(fields[2], 10, 32)
		var members []string
		if fields[3] != "" {
			members = strings.Split(fields[3], ",")
		}
		return resource.GroupEntry{Name: fields[0], Passwd: fields[1], GID: uint32(gid), Members: members}, true, nil
	}
	return zero, false, sc.Err()
}

func (l *LiveOS) WriteGroup(e resource.GroupEntry) error {
	line := fmt.Sprintf("%s:%s:%d:%s", e.Name, e.Passwd, e.GID, strings.Join(e.Members, ","))
	return upsertLine(l.path("/etc/group"), e.Name, line)
}

func (l *LiveOS) DeleteGroup(name string) error {
	return deleteLine(l.path("/etc/group"), name)
}

func (l *LiveOS) LookupGshadow(name string) (resource.GshadowEntry, bool, error) {
	var zero resource.GshadowEntry
	f, err := os.Open(l.path("/etc/gshadow"))
	if os.IsNotExist(err) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, werr.Wrap(werr.IO, "open gshadow: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), ":")
		if len(fields) < 4 || fields[0] != name {
			continue
		}
		var admins []string
		if fields[2] != "" {
			admins = strings.Split(fields[2], ",")
		}
		return resource.GshadowEntry{Name: fields[0], Passwd: fields[1], Admins: admins}, true, nil
	}
	return zero, false, sc.Err()
}

func (l *LiveOS) WriteGshadow(e resource.GshadowEntry) error {
	line := fmt.Sprintf("%s:%s:%s:", e.Name, e.Passwd, strings.Join(e.Admins, ","))
	return upsertLine(l.path("/etc/gshadow"), e.Name, line)
}

// upsertLine replaces the line whose first ':'-delimited field equals
// key with newLine, appending newLine if no such line exists.
func upsertLine(path, key, newLine string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	replaced := false
	for i, line := range lines {
		if firstField(line) == key {
			lines[i] = newLine
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, newLine)
	}
	return writeLines(path, lines)
}

func deleteLine(path, key string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	out := lines[:0]
	for _, line := range lines {
		if firstField(line) != key {
			out = append(out, line)
		}
	}
	return writeLines(path, out)
}

func firstField(line string) string {
	if i := strings.IndexByte(line, ':'); i >= 0 {
		return line[:i]
	}
	return line
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, werr.Wrap(werr.IO, "open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, werr.Wrap(werr.IO, "read %s: %v", path, err)
	}
	return lines, nil
}

func writeLines(path string, lines []string) error {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return werr.Wrap(werr.IO, "write %s: %v", path, err)
	}
	return nil
}

// --- Filesystem ------------------------------------------------------

func (l *LiveOS) StatPath(path string) (resource.FileInfo, bool, error) {
	full := l.path(path)
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return resource.FileInfo{}, false, nil
	}
	if err != nil {
		return resource.FileInfo{}, false, werr.Wrap(werr.IO, "stat %s: %v", path, err)
	}
	var uid, gid uint32
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		uid, gid = st.Uid, st.Gid
	}
	fi := resource.FileInfo{UID: uid, GID: gid, Mode: uint32(info.Mode().Perm())}
	if !info.IsDir() {
		content, err := os.ReadFile(full)
		if err == nil {
			fi.Sha1 = sha1.Sum(content)
		}
	}
	return fi, true, nil
}

// FetchSource retrieves file content referenced by ref, a file:// or
// bare local path.
func (l *LiveOS) FetchSource(ref string) ([]byte, error) {
	p := strings.TrimPrefix(ref, "file://")
	data, err := os.ReadFile(l.path(p))
	if err != nil {
		return nil, werr.Wrap(werr.IO, "fetch source %s: %v", ref, err)
	}
	return data, nil
}

func (l *LiveOS) WriteFile(path string, content []byte, mode uint32, uid, gid uint32) error {
	full := l.path(path)
	if err := os.WriteFile(full, content, os.FileMode(mode)); err != nil {
		return werr.Wrap(werr.IO, "write %s: %v", path, err)
	}
	if err := os.Chown(full, int(uid), int(gid)); err != nil {
		return werr.Wrap(werr.IO, "chown %s: %v", path, err)
	}
	return nil
}

func (l *LiveOS) Chown(path string, uid, gid uint32) error {
	if err := os.Chown(l.path(path), int(uid), int(gid)); err != nil {
		return werr.Wrap(werr.IO, "chown %s: %v", path, err)
	}
	return nil
}

func (l *LiveOS) Chmod(path string, mode uint32) error {
	if err := os.Chmod(l.path(path), os.FileMode(mode)); err != nil {
		return werr.Wrap(werr.IO, "chmod %s: %v", path, err)
	}
	return nil
}

func (l *LiveOS) Mkdir(path string, mode uint32, uid, gid uint32) error {
	full := l.path(path)
	if err := os.MkdirAll(full, os.FileMode(mode)); err != nil {
		return werr.Wrap(werr.IO, "mkdir %s: %v", path, err)
	}
	if err := os.Chown(full, int(uid), int(gid)); err != nil {
		return werr.Wrap(werr.IO, "chown %s: %v", path, err)
	}
	return nil
}

func (l *LiveOS) RemovePath(path string) error {
	if err := os.RemoveAll(l.path(path)); err != nil {
		return werr.Wrap(werr.IO, "remove %s: %v", path, err)
	}
	return nil
}

// --- Packages and services -------------------------------------------

func (l *LiveOS) PackageInstalled(name string) (string, bool, error) {
	return l.Packages.Installed(context.Background(), name)
}

func (l *LiveOS) InstallPackage(name, version string) error {
	return l.Packages.Install(context.Background(), name, version)
}

func (l *LiveOS) RemovePackage(name string) error {
	return l.Packages.Remove(context.Background(), name)
}

func (l *LiveOS) ServiceStatus(name string) (bool, bool, error) {
	return l.Services.Status(context.Background(), name)
}

func (l *LiveOS) SetServiceRunning(name string, running bool) error {
	return l.Services.SetRunning(context.Background(), name, running)
}

func (l *LiveOS) SetServiceEnabled(name string, enabled bool) error {
	return l.Services.SetEnabled(context.Background(), name, enabled)
}

// --- Hosts file --------------------------------------------------------

func (l *LiveOS) LookupHost(fqdn string) (resource.HostEntry, bool, error) {
	lines, err := readLines(l.path("/etc/hosts"))
	if err != nil {
		return resource.HostEntry{}, false, err
	}
	var e resource.HostEntry
	found := false
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip, names := fields[0], fields[1:]
		if names[0] != fqdn {
			continue
		}
		found = true
		e.Hostname = fqdn
		if strings.Contains(ip, ":") {
			e.IPv6 = ip
		} else {
			e.IPv4 = ip
		}
		e.Aliases = names[1:]
	}
	return e, found, nil
}

func (l *LiveOS) WriteHost(e resource.HostEntry) error {
	lines, err := readLines(l.path("/etc/hosts"))
	if err != nil {
		return err
	}
	out := lines[:0]
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == e.Hostname {
			continue
		}
		out = append(out, line)
	}
	if e.IPv4 != "" {
		out = append(out, formatHostLine(e.IPv4, e.Hostname, e.Aliases))
	}
	if e.IPv6 != "" {
		out = append(out, formatHostLine(e.IPv6, e.Hostname, e.Aliases))
	}
	return writeLines(l.path("/etc/hosts"), out)
}

func formatHostLine(ip, hostname string, aliases []string) string {
	fields := append([]string{ip, hostname}, aliases...)
	return strings.Join(fields, "\t")
}

func (l *LiveOS) DeleteHost(fqdn string) error {
	lines, err := readLines(l.path("/etc/hosts"))
	if err != nil {
		return err
	}
	out := lines[:0]
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == fqdn {
			continue
		}
		out = append(out, line)
	}
	return writeLines(l.path("/etc/hosts"), out)
}

// --- Sysctl ------------------------------------------------------------

func (l *LiveOS) GetSysctl(name string) (string, error) {
	path := l.path("/proc/sys/" + strings.ReplaceAll(name, ".", "/"))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", werr.Wrap(werr.NotFound, "sysctl %s: %v", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (l *LiveOS) SetSysctl(name, value string, persist bool) error {
	path := l.path("/proc/sys/" + strings.ReplaceAll(name, ".", "/"))
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return werr.Wrap(werr.IO, "sysctl %s: %v", name, err)
	}
	if persist {
		return upsertLine(l.path("/etc/sysctl.conf"), name, name+" = "+value)
	}
	return nil
}
