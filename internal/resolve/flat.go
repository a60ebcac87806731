package resolve

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/agentic-research/nsjson/internal/pathtree"
)

// FlatTree maps flat keys to resolved leaf values in first-written order.
// Keys use the pathtree format: "[]" marks array-valued segments and array
// elements are zero-padded.
type FlatTree struct {
	m *orderedmap.OrderedMap[string, any]
	// dirs counts the keys strictly below each prefix.
	dirs map[string]int
}

func NewFlatTree() *FlatTree {
	return &FlatTree{m: orderedmap.New[string, any](), dirs: make(map[string]int)}
}

func (f *FlatTree) Len() int { return f.m.Len() }

func (f *FlatTree) Get(k string) (any, bool) { return f.m.Get(k) }

// HasAny reports whether k is a key or has keys below it.
func (f *FlatTree) HasAny(k string) bool {
	if _, ok := f.m.Get(k); ok {
		return true
	}
	return f.dirs[k] > 0
}

// HasChildren reports whether any key lies below k.
func (f *FlatTree) HasChildren(k string) bool { return f.dirs[k] > 0 }

// Set writes v at k. Empty-container markers on the ancestors of k are
// dropped: the container now has a member.
func (f *FlatTree) Set(k string, v any) {
	if _, ok := f.m.Get(k); ok {
		f.m.Set(k, v)
		return
	}
	forAncestors(k, func(a string) {
		if old, ok := f.m.Get(a); ok && pathtree.IsEmpty(old) {
			f.Delete(a)
		}
	})
	f.m.Set(k, v)
	forAncestors(k, func(a string) { f.dirs[a]++ })
}

// Delete removes the single key k.
func (f *FlatTree) Delete(k string) {
	if _, ok := f.m.Delete(k); !ok {
		return
	}
	forAncestors(k, func(a string) {
		if f.dirs[a]--; f.dirs[a] <= 0 {
			delete(f.dirs, a)
		}
	})
}

// RemoveMember removes whatever a member holds at k: the scalar at k, an
// array at k+"[]", and every key below either.
func (f *FlatTree) RemoveMember(k string) {
	f.Delete(k)
	f.Delete(k + pathtree.ArrayMark)
	if f.dirs[k] == 0 && f.dirs[k+pathtree.ArrayMark] == 0 {
		return
	}
	var doomed []string
	for pair := f.m.Oldest(); pair != nil; pair = pair.Next() {
		if strings.HasPrefix(pair.Key, k+"/") || strings.HasPrefix(pair.Key, k+pathtree.ArrayMark+"/") {
			doomed = append(doomed, pair.Key)
		}
	}
	for _, d := range doomed {
		f.Delete(d)
	}
}

// Entries returns every key and value in insertion order.
func (f *FlatTree) Entries() []pathtree.Entry {
	out := make([]pathtree.Entry, 0, f.m.Len())
	for pair := f.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pathtree.Entry{Key: pair.Key, Value: pair.Value})
	}
	return out
}

// forAncestors calls fn for each proper prefix of k that ends before a '/'.
// E.g. "/a/b[]/c" → "", "/a", "/a/b[]".
func forAncestors(k string, fn func(string)) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			fn(k[:i])
		}
	}
}
