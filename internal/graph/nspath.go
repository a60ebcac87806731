package graph

import (
	"fmt"
	"path"
	"strings"
)

// Namespace path helpers shared by the codec, the resolver and every Store.
// Paths are slash-delimited and absolute; "/" is the root.

// Canonical collapses repeated slashes, strips a trailing slash and requires
// a leading one. "." and ".." segments are rejected: stored paths never
// contain them (use Resolve for relative references).
func Canonical(p string) (string, error) {
	if p == "" {
		return "/", nil
	}
	if p[0] != '/' {
		p = "/" + p
	}
	segs := Split(p)
	for _, s := range segs {
		if s == "." || s == ".." {
			return "", fmt.Errorf("%q: %w", p, ErrBadPath)
		}
	}
	return "/" + strings.Join(segs, "/"), nil
}

// Split returns the non-empty segments of p.
// E.g. "/a//b/" → ["a", "b"]; "/" → [].
func Split(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Join appends a child name to a canonical parent path.
func Join(parent, name string) string {
	if parent == "/" || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}

// Parent returns the parent of a canonical path. The parent of "/" is "/".
func Parent(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// Base returns the last segment of a canonical path ("" for "/").
func Base(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// Resolve turns a reference into an absolute canonical path. Absolute
// references are cleaned as-is; relative ones are joined onto from, which is
// treated as a directory: "." is from itself and ".." its parent.
// E.g. Resolve("/t/derived", "../X") → "/t/X".
func Resolve(from, ref string) string {
	if strings.HasPrefix(ref, "/") {
		return path.Clean(ref)
	}
	return path.Clean(Join(from, ref))
}

// Within reports whether p equals root or lies below it.
func Within(root, p string) bool {
	if root == "/" {
		return strings.HasPrefix(p, "/")
	}
	return p == root || strings.HasPrefix(p, root+"/")
}

// Ancestors returns the proper ancestors of p from the top down, excluding "/".
// E.g. "/a/b/c" → ["/a", "/a/b"].
func Ancestors(p string) []string {
	segs := Split(p)
	if len(segs) < 2 {
		return nil
	}
	out := make([]string, 0, len(segs)-1)
	cur := ""
	for _, s := range segs[:len(segs)-1] {
		cur += "/" + s
		out = append(out, cur)
	}
	return out
}

// ValidName reports whether name can be used as a single node name.
func ValidName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name: %w", ErrBadPath)
	case name == "." || name == "..":
		return fmt.Errorf("%q: %w", name, ErrBadPath)
	case strings.ContainsRune(name, '/'):
		return fmt.Errorf("%q contains '/': %w", name, ErrBadPath)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%q contains NUL: %w", name, ErrBadPath)
	}
	return nil
}
