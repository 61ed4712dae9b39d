package resource

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"warden/internal/werr"
	"warden/pkg/pack"
)

// File attribute bits. UID/GID/MODE/SHA1 are ported directly from
// res_file.h's RES_FILE_* constants; Source and Present are additions
// the File row calls for that the original doesn't carry as separate bits.
const (
	FileUID Mask = 1 << iota
	FileGID
	FileMode
	FileSha1
	FileSource
	FilePresent
)

// File is the file resource. Content enforcement
// is distinct from owner/group/mode/presence enforcement: remediation
// of FileSha1 fetches the declared source reference out-of-band and
// writes it atomically.
type File struct {
	key  string
	prio uint32
	enf  Mask
	diff Mask

	path    string
	source  string
	uid     uint32
	gid     uint32
	mode    uint32
	sha1    [20]byte
	present bool

	live FileInfo
	exists bool
}

// NewFile allocates a File identified by its local path.
func NewFile(path string) *File {
	return &File{key: path, path: path}
}

func (f *File) Kind() Kind           { return KindFile }
func (f *File) Key() string          { return f.key }
func (f *File) Priority() uint32     { return f.prio }
func (f *File) SetPriority(p uint32) { f.prio = p }
func (f *File) Enforced() Mask       { return f.enf }
func (f *File) Diff() Mask           { return f.diff }

func (f *File) SetAttr(attr, value string) error {
	switch attr {
	case "owner":
		v, err := parseUint(value, 32)
		if err != nil {
			return invalidValue(KindFile, attr, value)
		}
		f.uid = uint32(v)
		f.enf |= FileUID
	case "group":
		v, err := parseUint(value, 32)
		if err != nil {
			return invalidValue(KindFile, attr, value)
		}
		f.gid = uint32(v)
		f.enf |= FileGID
	case "octal-mode":
		v, err := parseUint(value, 32)
		if err != nil {
			return invalidValue(KindFile, attr, value)
		}
		f.mode = uint32(v)
		f.enf |= FileMode
	case "source-reference":
		f.source = value
		f.enf |= FileSource
		f.enf |= FileSha1
	case "expected-content-digest":
		raw, err := hex.DecodeString(value)
		if err != nil || len(raw) != 20 {
			return invalidValue(KindFile, attr, value)
		}
		copy(f.sha1[:], raw)
		f.enf |= FileSha1
	case "present":
		v, err := parseBool(value)
		if err != nil {
			return invalidValue(KindFile, attr, value)
		}
		f.present = v
		f.enf |= FilePresent
	default:
		return unknownAttr(KindFile, attr)
	}
	return nil
}

func (f *File) UnsetAttr(attr string) error {
	switch attr {
	case "owner":
		f.enf ^= FileUID
	case "group":
		f.enf ^= FileGID
	case "octal-mode":
		f.enf ^= FileMode
	case "source-reference":
		f.enf ^= FileSource
	case "expected-content-digest":
		f.enf ^= FileSha1
	case "present":
		f.enf ^= FilePresent
	default:
		return unknownAttr(KindFile, attr)
	}
	return nil
}

// MergeFiles merges f2 into f1, ported from res_file_merge's priority
// contract (not its pointer-swap implementation).
func MergeFiles(f1, f2 *File) *File {
	lo, hi := f1, f2
	if lo.prio > hi.prio {
		lo, hi = hi, lo
	}
	out := *lo
	merged := &out
	if hi.enf.Has(FileUID) && !lo.enf.Has(FileUID) {
		merged.uid = hi.uid
		merged.enf |= FileUID
	}
	if hi.enf.Has(FileGID) && !lo.enf.Has(FileGID) {
		merged.gid = hi.gid
		merged.enf |= FileGID
	}
	if hi.enf.Has(FileMode) && !lo.enf.Has(FileMode) {
		merged.mode = hi.mode
		merged.enf |= FileMode
	}
	if hi.enf.Has(FileSha1) && !lo.enf.Has(FileSha1) {
		merged.sha1 = hi.sha1
		merged.source = hi.source
		merged.enf |= FileSha1
		if hi.enf.Has(FileSource) {
			merged.enf |= FileSource
		}
	}
	if hi.enf.Has(FilePresent) && !lo.enf.Has(FilePresent) {
		merged.present = hi.present
		merged.enf |= FilePresent
	}
	merged.prio = lo.prio
	return merged
}

func (f *File) Stat(view LiveView) error {
	f.diff = 0
	info, found, err := view.StatPath(f.path)
	if err != nil {
		return werr.Wrap(werr.IO, "stat %q", f.path)
	}
	f.exists = found
	if !found {
		if f.enf.Has(FilePresent) {
			if f.present {
				f.diff |= FilePresent
			}
			return nil
		}
		return werr.Wrap(werr.NotFound, "file %q", f.path)
	}
	f.live = info

	if f.enf.Has(FilePresent) && !f.present {
		f.diff |= FilePresent
	}
	if f.enf.Has(FileUID) && f.uid != f.live.UID {
		f.diff |= FileUID
	}
	if f.enf.Has(FileGID) && f.gid != f.live.GID {
		f.diff |= FileGID
	}
	if f.enf.Has(FileMode) && f.mode != f.live.Mode {
		f.diff |= FileMode
	}
	if f.enf.Has(FileSha1) && !bytes.Equal(f.sha1[:], f.live.Sha1[:]) {
		f.diff |= FileSha1
	}
	return nil
}

func (f *File) Remediate(view LiveView) error {
	if f.diff.Has(FilePresent) && !f.present {
		if err := view.RemovePath(f.path); err != nil {
			return werr.Wrap(werr.RemediationFailed, "remove %q", f.path)
		}
		return f.Stat(view)
	}
	if f.diff.Has(FilePresent) && f.present && !f.exists {
		content, err := fetchOrEmpty(view, f.source)
		if err != nil {
			return werr.Wrap(werr.RemediationFailed, "fetch source for %q", f.path)
		}
		if err := view.WriteFile(f.path, content, f.mode, f.uid, f.gid); err != nil {
			return werr.Wrap(werr.RemediationFailed, "create %q", f.path)
		}
		return f.Stat(view)
	}
	if f.diff.Has(FileSha1) {
		content, err := view.FetchSource(f.source)
		if err != nil {
			return werr.Wrap(werr.RemediationFailed, "fetch source %q", f.source)
		}
		sum := sha1.Sum(content)
		if sum != f.sha1 {
			return werr.Wrap(werr.InvalidValue, "source %q does not match declared digest", f.source)
		}
		if err := view.WriteFile(f.path, content, f.mode, f.uid, f.gid); err != nil {
			return werr.Wrap(werr.RemediationFailed, "write %q", f.path)
		}
	}
	if f.diff.Has(FileUID) || f.diff.Has(FileGID) {
		uid, gid := f.live.UID, f.live.GID
		if f.enf.Has(FileUID) {
			uid = f.uid
		}
		if f.enf.Has(FileGID) {
			gid = f.gid
		}
		if err := view.Chown(f.path, uid, gid); err != nil {
			return werr.Wrap(werr.RemediationFailed, "chown %q", f.path)
		}
	}
	if f.diff.Has(FileMode) {
		if err := view.Chmod(f.path, f.mode); err != nil {
			return werr.Wrap(werr.RemediationFailed, "chmod %q", f.path)
		}
	}
	return f.Stat(view)
}

func fetchOrEmpty(view LiveView, source string) ([]byte, error) {
	if source == "" {
		return nil, nil
	}
	return view.FetchSource(source)
}

func (f *File) Pack() string {
	w := pack.NewWriter("res_file::")
	w.String(f.key).Uint32(uint32(f.enf)).
		String(f.path).String(f.source).
		Uint32(f.uid).Uint32(f.gid).Uint32(f.mode).
		String(hex.EncodeToString(f.sha1[:])).
		Uint8(boolToByte(f.present)).Uint32(f.prio)
	return w.Done()
}

func UnpackFile(packed string) (*File, error) {
	r := pack.NewReader(packed, "res_file::")
	f := &File{key: r.String()}
	f.enf = Mask(r.Uint32())
	f.path = r.String()
	f.source = r.String()
	f.uid = r.Uint32()
	f.gid = r.Uint32()
	f.mode = r.Uint32()
	digest := r.String()
	f.present = r.Uint8() != 0
	f.prio = r.Uint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("unpack file: %w", r.Err())
	}
	if raw, err := hex.DecodeString(digest); err == nil && len(raw) == 20 {
		copy(f.sha1[:], raw)
	}
	return f, nil
}

func (f *File) Attrs() map[string]string {
	out := map[string]string{}
	if f.enf.Has(FileUID) {
		out["owner"] = fmt.Sprint(f.uid)
	}
	if f.enf.Has(FileGID) {
		out["group"] = fmt.Sprint(f.gid)
	}
	if f.enf.Has(FileMode) {
		out["octal-mode"] = fmt.Sprintf("%o", f.mode)
	}
	if f.enf.Has(FileSource) {
		out["source-reference"] = f.source
	}
	if f.enf.Has(FileSha1) {
		out["expected-content-digest"] = hex.EncodeToString(f.sha1[:])
	}
	if f.enf.Has(FilePresent) {
		out["present"] = fmt.Sprint(f.present)
	}
	return out
}
