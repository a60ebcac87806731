package codec

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/graph"
)

// Plan builds the ordered batch that writes doc at root in the given mode.
// The store is only read; nothing is applied until the caller submits the
// ops through Store.Multi.
func Plan(ctx context.Context, store graph.Store, root string, doc any, mode api.Mode) ([]graph.Op, error) {
	p, err := graph.Canonical(root)
	if err != nil {
		return nil, err
	}
	pl := &planner{ctx: ctx, store: store}
	switch mode {
	case api.Replace:
		err = pl.replace(p, doc)
	case api.Update:
		err = pl.update(p, doc, true)
	case api.Delete:
		err = pl.remove(p)
	default:
		err = fmt.Errorf("unknown mode %v", mode)
	}
	if err != nil {
		return nil, err
	}
	return pl.ops, nil
}

// Write plans and applies one batch.
func Write(ctx context.Context, store graph.Store, root string, doc any, mode api.Mode) (int, error) {
	ops, err := Plan(ctx, store, root, doc, mode)
	if err != nil {
		return 0, err
	}
	if len(ops) == 0 {
		return 0, nil
	}
	if err := store.Multi(ctx, ops); err != nil {
		return 0, fmt.Errorf("apply %d ops at %s: %w", len(ops), root, err)
	}
	return len(ops), nil
}

type planner struct {
	ctx   context.Context
	store graph.Store
	ops   []graph.Op
}

func (pl *planner) emit(op graph.Op) { pl.ops = append(pl.ops, op) }

func (pl *planner) exists(p string) (bool, error) {
	ok, err := pl.store.Exists(pl.ctx, p)
	if err != nil {
		return false, api.Wrap(api.GetDataFailed, p, err)
	}
	return ok, nil
}

func (pl *planner) replace(p string, doc any) error {
	if err := validate(p, doc, false); err != nil {
		return err
	}
	if p == "/" {
		if err := pl.deleteChildren(p); err != nil {
			return err
		}
		return pl.writeInto(p, doc)
	}
	ok, err := pl.exists(p)
	if err != nil {
		return err
	}
	if ok {
		if err := pl.deleteSubtree(p); err != nil {
			return err
		}
	} else if err := pl.ensureAncestors(p); err != nil {
		return err
	}
	pl.create(p, doc)
	return nil
}

func (pl *planner) remove(p string) error {
	if p == "/" {
		if err := pl.deleteChildren(p); err != nil {
			return err
		}
		pl.emit(graph.SetDataOp(p, nil))
		return nil
	}
	ok, err := pl.exists(p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", p, graph.ErrNotFound)
	}
	return pl.deleteSubtree(p)
}

// update overwrites nodes in place. Members absent from doc are kept;
// a null member removes the stored subtree.
func (pl *planner) update(p string, doc any, top bool) error {
	if top {
		if err := validate(p, doc, true); err != nil {
			return err
		}
	}
	if doc == nil {
		if p == "/" {
			if err := pl.deleteChildren(p); err != nil {
				return err
			}
			pl.emit(graph.SetDataOp(p, nil))
			return nil
		}
		ok, err := pl.exists(p)
		if err != nil || !ok {
			return err
		}
		return pl.deleteSubtree(p)
	}

	data, err := pl.store.GetData(pl.ctx, p)
	if errors.Is(err, graph.ErrNotFound) {
		if top {
			if err := pl.ensureAncestors(p); err != nil {
				return err
			}
		}
		pl.create(p, doc)
		return nil
	}
	if err != nil {
		return api.Wrap(api.GetDataFailed, p, err)
	}
	old, _, err := DecodeTag(data)
	if err != nil {
		return api.Wrap(api.GetDataFailed, p, err)
	}

	kind, isFloat := api.KindOf(doc)
	if !sameShape(old, kind) {
		if p == "/" {
			if err := pl.deleteChildren(p); err != nil {
				return err
			}
			return pl.writeInto(p, doc)
		}
		if err := pl.deleteSubtree(p); err != nil {
			return err
		}
		pl.create(p, doc)
		return nil
	}

	pl.emit(graph.SetDataOp(p, EncodeTag(kind, isFloat)))
	switch kind {
	case api.Object:
		obj := doc.(map[string]any)
		for _, k := range sortedKeys(obj) {
			if err := pl.update(graph.Join(p, k), obj[k], false); err != nil {
				return err
			}
		}
	case api.String, api.Number:
		payload, _ := EncodePayload(doc)
		pp := graph.Join(p, PayloadName)
		ok, err := pl.exists(pp)
		if err != nil {
			return err
		}
		if ok {
			pl.emit(graph.SetDataOp(pp, payload))
		} else {
			pl.emit(graph.CreateOp(pp, payload))
		}
	}
	return nil
}

// sameShape reports whether a stored node of kind old can be rewritten in
// place as kind next without touching its children.
func sameShape(old, next api.Kind) bool {
	switch {
	case old == api.Object || next == api.Object:
		return old == next
	case old == api.Array || next == api.Array:
		return false
	}
	return old.HasPayload() == next.HasPayload()
}

// writeInto stores doc at an existing, childless node.
func (pl *planner) writeInto(p string, doc any) error {
	kind, isFloat := api.KindOf(doc)
	pl.emit(graph.SetDataOp(p, EncodeTag(kind, isFloat)))
	pl.createChildren(p, doc, kind)
	return nil
}

// create emits the creation of p and everything below it.
func (pl *planner) create(p string, doc any) {
	kind, isFloat := api.KindOf(doc)
	pl.emit(graph.CreateOp(p, EncodeTag(kind, isFloat)))
	pl.createChildren(p, doc, kind)
}

func (pl *planner) createChildren(p string, doc any, kind api.Kind) {
	switch kind {
	case api.Object:
		obj := doc.(map[string]any)
		for _, k := range sortedKeys(obj) {
			pl.create(graph.Join(p, k), obj[k])
		}
	case api.Array:
		for i, el := range doc.([]any) {
			pl.create(graph.Join(p, IndexName(i)), el)
		}
	case api.String, api.Number:
		payload, _ := EncodePayload(doc)
		pl.emit(graph.CreateOp(graph.Join(p, PayloadName), payload))
	}
}

// ensureAncestors creates missing ancestors of p with empty data.
func (pl *planner) ensureAncestors(p string) error {
	missing := false
	for _, a := range graph.Ancestors(p) {
		if !missing {
			ok, err := pl.exists(a)
			if err != nil {
				return err
			}
			missing = !ok
		}
		if missing {
			pl.emit(graph.CreateOp(a, nil))
		}
	}
	return nil
}

// deleteSubtree emits deletes for p and its descendants, children first.
func (pl *planner) deleteSubtree(p string) error {
	if err := pl.deleteChildren(p); err != nil {
		return err
	}
	pl.emit(graph.DeleteOp(p))
	return nil
}

func (pl *planner) deleteChildren(p string) error {
	names, err := pl.store.GetChildren(pl.ctx, p)
	if err != nil {
		return api.Wrap(api.GetDataFailed, p, err)
	}
	for _, n := range names {
		if err := pl.deleteSubtree(graph.Join(p, n)); err != nil {
			return err
		}
	}
	return nil
}

// validate rejects documents the namespace cannot hold before any op is
// emitted, so a failing call never produces a partial batch.
func validate(p string, doc any, update bool) error {
	switch x := doc.(type) {
	case map[string]any:
		for k, v := range x {
			if err := graph.ValidName(k); err != nil {
				return api.Wrap(api.InvalidMemberName, p, err)
			}
			if err := validate(graph.Join(p, k), v, update); err != nil {
				return err
			}
		}
	case []any:
		if update {
			return &api.Error{Code: api.CannotUpdateArray, Path: p}
		}
		for i, v := range x {
			if err := validate(graph.Join(p, IndexName(i)), v, update); err != nil {
				return err
			}
		}
	default:
		k, _ := api.KindOf(doc)
		if k == api.Undefined {
			return api.Errorf(api.InvalidValue, p, "unsupported value type %T", doc)
		}
		if k == api.Number && !finite(doc) {
			return api.Errorf(api.InvalidValue, p, "number %v is not finite", doc)
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
