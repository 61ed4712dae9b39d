// Package pathcfg implements two small, related primitives that the
// master and agent both need when walking manifest and filesystem
// trees: path canonicalization/ancestor-walking, and the line-oriented
// key/value configuration format used by warden's own config files.
package pathcfg

import (
	"path"
	"strings"
)

// Canon collapses "." and ".." segments out of p, the way the original
// cw_path walker did one segment at a time. Go's path.Clean already
// performs the same collapse in one pass, so it stands in directly
// rather than re-deriving the segment loop by hand.
func Canon(p string) string {
	if p == "" {
		return "."
	}
	clean := path.Clean(filepathToSlash(p))
	return clean
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// Ancestors returns the chain of ancestor directories of p, nearest
// first, down to and including the root. For "/a/b/c" it
// returns ["/a/b", "/a", "/"]. This mirrors path_pop's walk back up the
// segment list one directory at a time.
func Ancestors(p string) []string {
	clean := Canon(p)
	if clean == "/" || clean == "." {
		return nil
	}
	var out []string
	for {
		dir := path.Dir(clean)
		if dir == clean || dir == "." {
			break
		}
		out = append(out, dir)
		clean = dir
		if dir == "/" {
			break
		}
	}
	return out
}

// Parent returns the immediate parent directory of p, or "" if p is
// already the root.
func Parent(p string) string {
	clean := Canon(p)
	if clean == "/" || clean == "." {
		return ""
	}
	dir := path.Dir(clean)
	if dir == clean {
		return ""
	}
	return dir
}

// Push appends segment onto base, canonicalizing the result the way
// path_push advances the walk by one component.
func Push(base, segment string) string {
	return Canon(path.Join(base, segment))
}

// Pop removes the last segment of p, equivalent to Parent but named to
// match the push/pop pairing the original walker exposed.
func Pop(p string) string {
	return Parent(p)
}
