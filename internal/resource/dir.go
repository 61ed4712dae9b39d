package resource

import (
	"fmt"

	"warden/internal/werr"
	"warden/pkg/pack"
)

// Dir attribute bits, following File's scheme minus content enforcement
//.
const (
	DirUID Mask = 1 << iota
	DirGID
	DirMode
	DirPresent
)

// Dir is the directory resource.
type Dir struct {
	key  string
	prio uint32
	enf  Mask
	diff Mask

	path    string
	uid     uint32
	gid     uint32
	mode    uint32
	present bool

	live   FileInfo
	exists bool
}

func NewDir(path string) *Dir {
	return &Dir{key: path, path: path}
}

func (d *Dir) Kind() Kind           { return KindDir }
func (d *Dir) Key() string          { return d.key }
func (d *Dir) Priority() uint32     { return d.prio }
func (d *Dir) SetPriority(p uint32) { d.prio = p }
func (d *Dir) Enforced() Mask       { return d.enf }
func (d *Dir) Diff() Mask           { return d.diff }

func (d *Dir) SetAttr(attr, value string) error {
	switch attr {
	case "owner":
		v, err := parseUint(value, 32)
		if err != nil {
			return invalidValue(KindDir, attr, value)
		}
		d.uid = uint32(v)
		d.enf |= DirUID
	case "group":
		v, err := parseUint(value, 32)
		if err != nil {
			return invalidValue(KindDir, attr, value)
		}
		d.gid = uint32(v)
		d.enf |= DirGID
	case "octal-mode":
		v, err := parseUint(value, 32)
		if err != nil {
			return invalidValue(KindDir, attr, value)
		}
		d.mode = uint32(v)
		d.enf |= DirMode
	case "present":
		v, err := parseBool(value)
		if err != nil {
			return invalidValue(KindDir, attr, value)
		}
		d.present = v
		d.enf |= DirPresent
	default:
		return unknownAttr(KindDir, attr)
	}
	return nil
}

func (d *Dir) UnsetAttr(attr string) error {
	switch attr {
	case "owner":
		d.enf ^= DirUID
	case "group":
		d.enf ^= DirGID
	case "octal-mode":
		d.enf ^= DirMode
	case "present":
		d.enf ^= DirPresent
	default:
		return unknownAttr(KindDir, attr)
	}
	return nil
}

func MergeDirs(d1, d2 *Dir) *Dir {
	lo, hi := d1, d2
	if lo.prio > hi.prio {
		lo, hi = hi, lo
	}
	out := *lo
	merged := &out
	if hi.enf.Has(DirUID) && !lo.enf.Has(DirUID) {
		merged.uid = hi.uid
		merged.enf |= DirUID
	}
	if hi.enf.Has(DirGID) && !lo.enf.Has(DirGID) {
		merged.gid = hi.gid
		merged.enf |= DirGID
	}
	if hi.enf.Has(DirMode) && !lo.enf.Has(DirMode) {
		merged.mode = hi.mode
		merged.enf |= DirMode
	}
	if hi.enf.Has(DirPresent) && !lo.enf.Has(DirPresent) {
		merged.present = hi.present
		merged.enf |= DirPresent
	}
	merged.prio = lo.prio
	return merged
}

func (d *Dir) Stat(view LiveView) error {
	d.diff = 0
	info, found, err := view.StatPath(d.path)
	if err != nil {
		return werr.Wrap(werr.IO, "stat %q", d.path)
	}
	d.exists = found
	if !found {
		if d.enf.Has(DirPresent) {
			if d.present {
				d.diff |= DirPresent
			}
			return nil
		}
		return werr.Wrap(werr.NotFound, "dir %q", d.path)
	}
	d.live = info
	if d.enf.Has(DirPresent) && !d.present {
		d.diff |= DirPresent
	}
	if d.enf.Has(DirUID) && d.uid != d.live.UID {
		d.diff |= DirUID
	}
	if d.enf.Has(DirGID) && d.gid != d.live.GID {
		d.diff |= DirGID
	}
	if d.enf.Has(DirMode) && d.mode != d.live.Mode {
		d.diff |= DirMode
	}
	return nil
}

func (d *Dir) Remediate(view LiveView) error {
	if d.diff.Has(DirPresent) && !d.present {
		if err := view.RemovePath(d.path); err != nil {
			return werr.Wrap(werr.RemediationFailed, "remove dir %q", d.path)
		}
		return d.Stat(view)
	}
	if d.diff.Has(DirPresent) && d.present && !d.exists {
		if err := view.Mkdir(d.path, d.mode, d.uid, d.gid); err != nil {
			return werr.Wrap(werr.RemediationFailed, "mkdir %q", d.path)
		}
		return d.Stat(view)
	}
	if d.diff.Has(DirUID) || d.diff.Has(DirGID) {
		uid, gid := d.live.UID, d.live.GID
		if d.enf.Has(DirUID) {
			uid = d.uid
		}
		if d.enf.Has(DirGID) {
			gid = d.gid
		}
		if err := view.Chown(d.path, uid, gid); err != nil {
			return werr.Wrap(werr.RemediationFailed, "chown dir %q", d.path)
		}
	}
	if d.diff.Has(DirMode) {
		if err := view.Chmod(d.path, d.mode); err != nil {
			return werr.Wrap(werr.RemediationFailed, "chmod dir %q", d.path)
		}
	}
	return d.Stat(view)
}

func (d *Dir) Pack() string {
	w := pack.NewWriter("res_dir::")
	w.String(d.key).Uint32(uint32(d.enf)).
		String(d.path).Uint32(d.uid).Uint32(d.gid).Uint32(d.mode).
		Uint8(boolToByte(d.present)).Uint32(d.prio)
	return w.Done()
}

func UnpackDir(packed string) (*Dir, error) {
	r := pack.NewReader(packed, "res_dir::")
	d := &Dir{key: r.String()}
	d.enf = Mask(r.Uint32())
	d.path = r.String()
	d.uid = r.Uint32()
	d.gid = r.Uint32()
	d.mode = r.Uint32()
	d.present = r.Uint8() != 0
	d.prio = r.Uint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("unpack dir: %w", r.Err())
	}
	return d, nil
}

func (d *Dir) Attrs() map[string]string {
	out := map[string]string{}
	if d.enf.Has(DirUID) {
		out["owner"] = fmt.Sprint(d.uid)
	}
	if d.enf.Has(DirGID) {
		out["group"] = fmt.Sprint(d.gid)
	}
	if d.enf.Has(DirMode) {
		out["octal-mode"] = fmt.Sprintf("%o", d.mode)
	}
	if d.enf.Has(DirPresent) {
		out["present"] = fmt.Sprint(d.present)
	}
	return out
}
