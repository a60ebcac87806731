package resolve

import (
	"errors"
	"strings"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/codec"
	"github.com/agentic-research/nsjson/internal/graph"
	"github.com/agentic-research/nsjson/internal/pathtree"
	"github.com/agentic-research/nsjson/internal/script"
)

// deferredState tracks the leaves being resolved, for loop reporting.
type deferredState struct {
	active map[string]int // flat key → position in chain
	chain  []string       // canonical paths of the active leaves
}

// resolveDeferred replaces every pending leaf in the FlatTree with its
// final value. A reference to another pending leaf is resolved first;
// a reference that is not in the FlatTree is read from the source.
func (r *run) resolveDeferred() (int, error) {
	var keys []string
	for _, e := range r.flat.Entries() {
		if _, ok := e.Value.(*pending); ok {
			keys = append(keys, e.Key)
		}
	}
	st := &deferredState{active: make(map[string]int)}
	for _, k := range keys {
		if _, err := r.settle(k, st); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// settle resolves the leaf at flat key k and stores the result.
func (r *run) settle(k string, st *deferredState) (any, error) {
	v, _ := r.flat.Get(k)
	pd, ok := v.(*pending)
	if !ok {
		return v, nil
	}
	if i, ok := st.active[k]; ok {
		seq := append(append([]string(nil), st.chain[i:]...), pd.at)
		return nil, &api.Error{Code: api.IncrementalCycle, Path: pd.at, Cycle: seq}
	}
	st.active[k] = len(st.chain)
	st.chain = append(st.chain, pd.at)

	var out any
	var err error
	switch pd.c.Func {
	case script.Value:
		out, err = r.lookup(script.Target(pd.at, pd.c.Ref), st)
	case script.Eval:
		out, err = script.Substitute(pd.c, pd.at, func(target string) (any, error) {
			return r.lookup(target, st)
		})
	default:
		out = pd.c.Text
	}
	if err != nil {
		return nil, err
	}

	delete(st.active, k)
	st.chain = st.chain[:len(st.chain)-1]
	r.flat.Set(k, out)
	return out, nil
}

// lookup returns the resolved scalar at a canonical path.
func (r *run) lookup(target string, st *deferredState) (any, error) {
	k := r.flatKey(target)
	if v, ok := r.flat.Get(k); ok {
		if pathtree.IsEmpty(v) {
			return nil, api.Errorf(api.IncrementalValueOfObject, target, "empty container")
		}
		if r.flat.HasChildren(k) {
			return nil, api.Errorf(api.IncrementalValueOfObject, target, "container")
		}
		return r.settle(k, st)
	}
	if r.flat.HasChildren(k) {
		return nil, api.Errorf(api.IncrementalValueOfObject, target, "container")
	}

	v, err := r.src.load(r.ctx, target)
	if err != nil {
		var ae *api.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, api.Wrap(api.GetDataFailed, target, err)
	}
	if kind, _ := api.KindOf(v); kind.IsContainer() {
		return nil, api.Errorf(api.IncrementalValueOfObject, target, "%s", kind)
	}
	return v, nil
}

// flatKey maps a canonical path onto the FlatTree's key space. A segment
// becomes array-valued when the FlatTree holds an array there; segments
// inside arrays are padded.
func (r *run) flatKey(p string) string {
	cur := ""
	if r.flat.HasAny(pathtree.ArrayMark) {
		cur = pathtree.ArrayMark
	}
	for _, seg := range graph.Split(p) {
		if strings.HasSuffix(cur, pathtree.ArrayMark) {
			if i, ok := codec.ParseIndex(seg); ok {
				seg = codec.IndexName(i)
			}
		}
		next := cur + "/" + seg
		if r.flat.HasAny(next + pathtree.ArrayMark) {
			next += pathtree.ArrayMark
		}
		cur = next
	}
	return cur
}
