// Package pathtree rebuilds a nested document from flat path keys.
//
// Keys are relative to the document root. "" is the root itself, keys
// under an object root start with "/", keys under an array root start with
// "[]". A segment ending in "[]" opens an array; segments inside an array
// are zero-padded element indices, so sorted key order is element order.
//
//	/name                       → {"name": ...}
//	/tags[]/000000000000000000  → {"tags": [...]}
//	[]/000000000000000001/id    → [{}, {"id": ...}]
package pathtree

import (
	"fmt"
	"sort"
	"strings"
)

// ArrayMark is the suffix that marks an array-valued segment.
const ArrayMark = "[]"

type emptyMarker struct{}

func (emptyMarker) String() string { return "<empty>" }

// Empty is stored at a key whose container exists but has no members.
// The container kind comes from the key: "[]" suffix for arrays.
var Empty any = emptyMarker{}

// IsEmpty reports whether v is the empty-container marker.
func IsEmpty(v any) bool {
	_, ok := v.(emptyMarker)
	return ok
}

// Entry is one flat key and its leaf value.
type Entry struct {
	Key   string
	Value any
}

// frame is an open container on the writer stack.
type frame struct {
	seg   string // segment that opened the container ("" for the root)
	isArr bool
	obj   map[string]any
	arr   []any
}

func newFrame(seg string, isArr bool) *frame {
	f := &frame{seg: seg, isArr: isArr}
	if isArr {
		f.arr = []any{}
	} else {
		f.obj = map[string]any{}
	}
	return f
}

func (f *frame) put(seg string, v any) {
	if f.isArr {
		f.arr = append(f.arr, v)
		return
	}
	f.obj[strings.TrimSuffix(seg, ArrayMark)] = v
}

func (f *frame) value() any {
	if f.isArr {
		return f.arr
	}
	return f.obj
}

// Build reconstructs the document. Entries are sorted by key first; the
// slice is reordered in place.
func Build(entries []Entry) (any, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("pathtree: no entries")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	if entries[0].Key == "" && len(entries) == 1 {
		if IsEmpty(entries[0].Value) {
			return map[string]any{}, nil
		}
		return entries[0].Value, nil
	}

	rootArr := strings.HasPrefix(entries[0].Key, ArrayMark)
	stack := []*frame{newFrame("", rootArr)}

	closeTo := func(depth int) {
		for len(stack) > depth {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			stack[len(stack)-1].put(top.seg, top.value())
		}
	}

	for _, e := range entries {
		segs, isArr, err := split(e.Key)
		if err != nil {
			return nil, err
		}
		if isArr != rootArr {
			return nil, fmt.Errorf("pathtree: key %q mixes array and object root", e.Key)
		}
		if len(segs) == 0 {
			// root marker next to real members carries no information
			if IsEmpty(e.Value) {
				continue
			}
			return nil, fmt.Errorf("pathtree: root value %q next to members", e.Key)
		}

		// keep the open frames that are a prefix of this key
		common := 0
		for common < len(stack)-1 && common < len(segs)-1 && stack[common+1].seg == segs[common] {
			common++
		}
		closeTo(common + 1)

		for _, s := range segs[len(stack)-1 : len(segs)-1] {
			stack = append(stack, newFrame(s, strings.HasSuffix(s, ArrayMark)))
		}

		leaf := segs[len(segs)-1]
		v := e.Value
		if IsEmpty(v) {
			v = newFrame(leaf, strings.HasSuffix(leaf, ArrayMark)).value()
		}
		stack[len(stack)-1].put(leaf, v)
	}
	closeTo(1)
	return stack[0].value(), nil
}

// split returns the segments of a key and whether it lives under an array
// root.
func split(key string) ([]string, bool, error) {
	isArr := false
	if strings.HasPrefix(key, ArrayMark) {
		isArr = true
		key = key[len(ArrayMark):]
	}
	if key == "" {
		return nil, isArr, nil
	}
	if key[0] != '/' {
		return nil, false, fmt.Errorf("pathtree: malformed key %q", key)
	}
	return strings.Split(key[1:], "/"), isArr, nil
}
