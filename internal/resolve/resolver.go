// Package resolve flattens a template subtree: it builds the document
// graph, merges base nodes into derived nodes, resolves value() and eval()
// leaves and produces the flat path → value mapping the pathtree writer
// turns back into a document.
package resolve

import (
	"context"
	"log/slog"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/codec"
	"github.com/agentic-research/nsjson/internal/graph"
	"github.com/agentic-research/nsjson/internal/pathtree"
	"github.com/agentic-research/nsjson/internal/script"
)

// Options configures one resolution run.
type Options struct {
	Vocabulary api.Vocabulary
	// Overlay, when HasOverlay is set, is used as the document stored at
	// the root instead of reading the store.
	Overlay    any
	HasOverlay bool
	Logger     *slog.Logger
}

// Stats describes a finished run.
type Stats struct {
	Nodes      int // graph nodes, placeholders included
	Emitted    int // node visits, a base shared by two nodes counts twice
	Resolved   int // distinct nodes fully resolved
	Deferred   int // value() and eval() leaves resolved after the walk
	StoreReads int // subtrees loaded from the store
}

// pending is a script leaf waiting in the FlatTree for phase two.
type pending struct {
	c  *script.Compiled
	at string // canonical path the leaf was placed at
}

// run is the state of one resolution. It is discarded afterwards.
type run struct {
	ctx     context.Context
	g       *Graph
	b       *Builder
	src     *source
	flat    *FlatTree
	gray    *roaring.Bitmap
	black   *roaring.Bitmap
	stack   []NodeID
	emitted int
}

// Flatten resolves the template at root and returns its flat entries,
// keyed relative to root.
func Flatten(ctx context.Context, store graph.Store, root string, opts Options) ([]pathtree.Entry, Stats, error) {
	p, err := graph.Canonical(root)
	if err != nil {
		return nil, Stats{}, err
	}
	g := NewGraph()
	r := &run{
		ctx:   ctx,
		g:     g,
		b:     NewBuilder(g, opts.Vocabulary),
		src:   &source{store: store},
		flat:  NewFlatTree(),
		gray:  roaring.New(),
		black: roaring.New(),
	}
	if opts.HasOverlay {
		r.src.overlay, r.src.overlayRoot, r.src.hasOverlay = opts.Overlay, p, true
	}

	doc, err := r.src.load(ctx, p)
	if err != nil {
		return nil, Stats{}, err
	}
	if k, _ := api.KindOf(doc); !k.IsContainer() {
		// A scalar root has nothing to inherit.
		return []pathtree.Entry{{Key: "", Value: doc}}, Stats{StoreReads: r.src.reads}, nil
	}
	rootNode, err := r.b.Build(p, doc)
	if err != nil {
		return nil, Stats{}, err
	}

	rootKey := flatRoot(p)
	if rootNode.Kind == api.Array {
		rootKey += pathtree.ArrayMark
	}
	if err := r.emit(rootNode.ID, rootKey, p); err != nil {
		return nil, Stats{}, err
	}
	deferred, err := r.resolveDeferred()
	if err != nil {
		return nil, Stats{}, err
	}
	entries, err := relativize(r.flat.Entries(), flatRoot(p))
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{
		Nodes:      g.Len(),
		Emitted:    r.emitted,
		Resolved:   int(r.black.GetCardinality()),
		Deferred:   deferred,
		StoreReads: r.src.reads,
	}
	if opts.Logger != nil {
		opts.Logger.DebugContext(ctx, "template flattened",
			"root", p, "nodes", stats.Nodes, "emitted", stats.Emitted,
			"deferred", stats.Deferred, "store_reads", stats.StoreReads, "keys", len(entries))
	}
	return entries, stats, nil
}

// Resolve flattens the template at root and rebuilds it as a document.
func Resolve(ctx context.Context, store graph.Store, root string, opts Options) (any, error) {
	entries, _, err := Flatten(ctx, store, root, opts)
	if err != nil {
		return nil, err
	}
	return pathtree.Build(entries)
}

// flatRoot is the flat key of a canonical root path.
func flatRoot(p string) string {
	if p == "/" {
		return ""
	}
	return p
}

// confirm loads a placeholder node from its source.
func (r *run) confirm(n *Node) error {
	if n.Confirmed {
		return nil
	}
	v, err := r.src.load(r.ctx, n.Path)
	if err != nil {
		return err
	}
	_, err = r.b.Build(n.Path, v)
	return err
}

// emit writes node id at flat key key. canon is the canonical path the
// content is placed at, which differs from the node's own path when the
// node is a base of another.
func (r *run) emit(id NodeID, key, canon string) error {
	if r.gray.Contains(uint32(id)) {
		return r.cycle(id)
	}
	r.gray.Add(uint32(id))
	r.stack = append(r.stack, id)
	r.emitted++

	n := r.g.Node(id)
	if err := r.confirm(n); err != nil {
		return err
	}

	// Bases first, in declared order, so later bases and then the node's
	// own members overwrite what came before.
	for _, bid := range n.Bases {
		base := r.g.Node(bid)
		if err := r.confirm(base); err != nil {
			return err
		}
		if base.Kind != api.Object || n.Kind != api.Object {
			return api.Errorf(api.IncrementalNotObject, base.Path, "base of %s is %s", n.Path, base.Kind)
		}
		if err := r.emit(bid, key, canon); err != nil {
			return err
		}
	}

	for pair := n.members.Oldest(); pair != nil; pair = pair.Next() {
		name, m := pair.Key, pair.Value
		seg := name
		if n.Kind == api.Array {
			if i, ok := codec.ParseIndex(name); ok {
				seg = codec.IndexName(i)
			}
		}
		mkey := key + "/" + seg
		mcanon := graph.Join(canon, name)

		switch {
		case m.tomb:
			r.flat.RemoveMember(mkey)
		case m.hasChild:
			child := r.g.Node(m.child)
			if child.Kind == api.Array {
				// arrays replace whatever was inherited
				r.flat.RemoveMember(mkey)
				mkey += pathtree.ArrayMark
			} else {
				// an object merges with an inherited object only
				r.flat.Delete(mkey)
				r.flat.RemoveMember(mkey + pathtree.ArrayMark)
			}
			if err := r.emit(m.child, mkey, mcanon); err != nil {
				return err
			}
		case m.script != nil:
			r.flat.RemoveMember(mkey)
			r.flat.Set(mkey, &pending{c: m.script, at: mcanon})
		default:
			r.flat.RemoveMember(mkey)
			r.flat.Set(mkey, m.value)
		}
	}

	if !r.flat.HasAny(key) {
		r.flat.Set(key, pathtree.Empty)
	}

	r.gray.Remove(uint32(id))
	r.black.Add(uint32(id))
	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

// cycle reports the active stack from the first visit of id, closed by id.
func (r *run) cycle(id NodeID) error {
	start := 0
	for i, s := range r.stack {
		if s == id {
			start = i
			break
		}
	}
	seq := append(r.g.paths(r.stack[start:]), r.g.Node(id).Path)
	return &api.Error{Code: api.IncrementalCycle, Path: r.g.Node(id).Path, Cycle: seq}
}

// relativize strips the root prefix from every key. Base content is re-keyed
// under the deriving node, so a key outside root means a corrupt flat tree.
func relativize(entries []pathtree.Entry, root string) ([]pathtree.Entry, error) {
	for i, e := range entries {
		rest, ok := strings.CutPrefix(e.Key, root)
		if !ok || (rest != "" && !strings.HasPrefix(rest, "/") && !strings.HasPrefix(rest, pathtree.ArrayMark)) {
			return nil, api.Errorf(api.IncrementalOutOfTree, e.Key, "not below %q", root)
		}
		entries[i].Key = rest
	}
	return entries, nil
}
