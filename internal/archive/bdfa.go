// Package archive implements BDFA, the fixed-header packed-file
// archive format used as the wire body of FILE/DATA PDUs when a
// remediation needs to ship file content out-of-band. It is grounded
// directly on cw_bdfa_pack/cw_bdfa_unpack's on-disk layout.
package archive

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"warden/internal/werr"
)

const (
	magic      = "BDFA"
	trailerTag = "0001"

	magicLen = 4
	flagsLen = 4
	fieldLen = 8 // mode, uid, gid, mtime, filesize, namesize
	headerLen = magicLen + flagsLen + 6*fieldLen
)

// Entry is one file or directory record in a BDFA stream.
type Entry struct {
	Name    string // path relative to the archive root, "/"-separated
	Mode    uint32
	UID     uint32
	GID     uint32
	Mtime   uint32
	IsDir   bool
	Content []byte
}

// Write serializes entries to w as a BDFA archive, terminated by the
// flags="0001" trailer record.
func Write(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if err := writeEntry(w, e); err != nil {
			return err
		}
	}
	return writeTrailer(w)
}

func writeEntry(w io.Writer, e Entry) error {
	name := strings.TrimPrefix(e.Name, "/")
	nameBytes := append([]byte(name), 0)
	namesize := padTo4(len(nameBytes))

	filesize := uint32(0)
	if !e.IsDir {
		filesize = uint32(len(e.Content))
	}

	var hdr bytes.Buffer
	hdr.WriteString(magic)
	hdr.WriteString(toHex4(0))
	hdr.WriteString(toHex8(e.Mode))
	hdr.WriteString(toHex8(e.UID))
	hdr.WriteString(toHex8(e.GID))
	hdr.WriteString(toHex8(e.Mtime))
	hdr.WriteString(toHex8(filesize))
	hdr.WriteString(toHex8(uint32(namesize)))
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return werr.Wrap(werr.IO, "archive: write header: %v", err)
	}

	padded := make([]byte, namesize)
	copy(padded, nameBytes)
	if _, err := w.Write(padded); err != nil {
		return werr.Wrap(werr.IO, "archive: write name: %v", err)
	}

	if !e.IsDir {
		if _, err := w.Write(e.Content); err != nil {
			return werr.Wrap(werr.IO, "archive: write body: %v", err)
		}
	}
	return nil
}

func writeTrailer(w io.Writer) error {
	var hdr bytes.Buffer
	hdr.WriteString(magic)
	hdr.WriteString(trailerTag)
	hdr.WriteString(toHex8(0))
	hdr.WriteString(toHex8(0))
	hdr.WriteString(toHex8(0))
	hdr.WriteString(toHex8(0))
	hdr.WriteString(toHex8(0))
	hdr.WriteString(toHex8(0))
	_, err := w.Write(hdr.Bytes())
	if err != nil {
		return werr.Wrap(werr.IO, "archive: write trailer: %v", err)
	}
	return nil
}

// Read parses a BDFA stream into its entries, stopping at the
// flags="0001" trailer.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	hdr := make([]byte, headerLen)
	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			if err == io.EOF {
				return nil, werr.Wrap(werr.ParseError, "archive: missing trailer record")
			}
			return nil, werr.Wrap(werr.ParseError, "archive: short header read: %v", err)
		}
		if string(hdr[:magicLen]) != magic {
			return nil, werr.Wrap(werr.ParseError, "archive: bad magic %q", hdr[:magicLen])
		}
		flags := string(hdr[magicLen : magicLen+flagsLen])
		if flags == trailerTag {
			return entries, nil
		}

		off := magicLen + flagsLen
		mode := fromHex8(hdr[off : off+fieldLen])
		off += fieldLen
		uid := fromHex8(hdr[off : off+fieldLen])
		off += fieldLen
		gid := fromHex8(hdr[off : off+fieldLen])
		off += fieldLen
		mtime := fromHex8(hdr[off : off+fieldLen])
		off += fieldLen
		filesize := fromHex8(hdr[off : off+fieldLen])
		off += fieldLen
		namesize := fromHex8(hdr[off : off+fieldLen])

		nameBuf := make([]byte, namesize)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return nil, werr.Wrap(werr.ParseError, "archive: short name read: %v", err)
		}
		name := string(bytes.TrimRight(nameBuf, "\x00"))

		isDir := fs.FileMode(mode).IsDir()
		e := Entry{Name: name, Mode: mode, UID: uid, GID: gid, Mtime: mtime, IsDir: isDir}
		if !isDir {
			content := make([]byte, filesize)
			if _, err := io.ReadFull(r, content); err != nil {
				return nil, werr.Wrap(werr.ParseError, "archive: short body read: %v", err)
			}
			e.Content = content
		}
		entries = append(entries, e)
	}
}

// PackDir walks root and returns it as a sequence of BDFA entries,
// directories first wherever fs.WalkDir encounters them, matching the
// original's FTS_LOGICAL pre-order walk.
func PackDir(fsys fs.FS, root string) ([]Entry, error) {
	var entries []Entry
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel := strings.TrimPrefix(p, root)
		rel = strings.TrimPrefix(rel, "/")

		info, err := d.Info()
		if err != nil {
			return err
		}
		e := Entry{Name: rel, Mode: uint32(info.Mode().Perm()), Mtime: uint32(info.ModTime().Unix())}
		if d.IsDir() {
			e.Mode |= uint32(os.ModeDir)
			e.IsDir = true
		} else {
			content, err := fs.ReadFile(fsys, p)
			if err != nil {
				return err
			}
			e.Content = content
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, werr.Wrap(werr.IO, "archive: walk %s: %v", root, err)
	}
	return entries, nil
}

// UnpackDir materializes entries under root on disk.
func UnpackDir(root string, entries []Entry) error {
	for _, e := range entries {
		target := path.Join(root, e.Name)
		if e.IsDir {
			if err := os.MkdirAll(target, fs.FileMode(e.Mode&0o7777)); err != nil {
				return werr.Wrap(werr.IO, "archive: mkdir %s: %v", target, err)
			}
			continue
		}
		if err := os.MkdirAll(path.Dir(target), 0o755); err != nil {
			return werr.Wrap(werr.IO, "archive: mkdir parent of %s: %v", target, err)
		}
		if err := os.WriteFile(target, e.Content, fs.FileMode(e.Mode&0o7777)); err != nil {
			return werr.Wrap(werr.IO, "archive: write %s: %v", target, err)
		}
	}
	return nil
}

func padTo4(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

const hexDigits = "0123456789abcdef"

func toHex8(v uint32) string {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(b)
}

func toHex4(v uint16) string {
	b := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		b[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(b)
}

func fromHex8(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<4 | uint32(hexVal(c))
	}
	return v
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
