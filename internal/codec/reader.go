package codec

import (
	"context"
	"fmt"
	"sort"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/graph"
)

// Read decodes the subtree at root into a document value (map[string]any,
// []any, string, int64, float64, bool or nil). Store failures come back as
// GetDataFailed wrapping the store error, so errors.Is(err,
// graph.ErrNotFound) identifies a missing root.
func Read(ctx context.Context, store graph.Store, root string) (any, error) {
	p, err := graph.Canonical(root)
	if err != nil {
		return nil, err
	}
	return read(ctx, store, p)
}

func read(ctx context.Context, store graph.Store, p string) (any, error) {
	data, err := store.GetData(ctx, p)
	if err != nil {
		return nil, api.Wrap(api.GetDataFailed, p, err)
	}
	kind, isFloat, err := DecodeTag(data)
	if err != nil {
		return nil, api.Wrap(api.GetDataFailed, p, err)
	}

	switch kind {
	case api.Object:
		names, err := store.GetChildren(ctx, p)
		if err != nil {
			return nil, api.Wrap(api.GetDataFailed, p, err)
		}
		obj := make(map[string]any, len(names))
		for _, n := range names {
			v, err := read(ctx, store, graph.Join(p, n))
			if err != nil {
				return nil, err
			}
			obj[n] = v
		}
		return obj, nil

	case api.Array:
		names, err := store.GetChildren(ctx, p)
		if err != nil {
			return nil, api.Wrap(api.GetDataFailed, p, err)
		}
		// Not every store lists children sorted.
		sort.Strings(names)
		arr := make([]any, 0, len(names))
		for _, n := range names {
			v, err := read(ctx, store, graph.Join(p, n))
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil

	case api.String, api.Number:
		pp := graph.Join(p, PayloadName)
		payload, err := store.GetData(ctx, pp)
		if err != nil {
			return nil, api.Wrap(api.GetDataFailed, pp, err)
		}
		v, err := DecodePayload(kind, isFloat, payload)
		if err != nil {
			return nil, api.Wrap(api.GetDataFailed, pp, err)
		}
		return v, nil
	}

	if v, ok := ScalarValue(kind); ok {
		return v, nil
	}
	return nil, api.Wrap(api.GetDataFailed, p, fmt.Errorf("unexpected kind %s", kind))
}

// ReadKind returns the stored kind of the node at p.
func ReadKind(ctx context.Context, store graph.Store, p string) (api.Kind, error) {
	data, err := store.GetData(ctx, p)
	if err != nil {
		return api.Undefined, api.Wrap(api.GetDataFailed, p, err)
	}
	kind, _, err := DecodeTag(data)
	if err != nil {
		return api.Undefined, api.Wrap(api.GetDataFailed, p, err)
	}
	return kind, nil
}

// Locate maps a document path, where array elements are plain decimal
// indices ("/list/2"), to the stored node path ("/list/000000000000000002").
// Segments below arrays are padded; every other segment is kept.
func Locate(ctx context.Context, store graph.Store, docPath string) (string, error) {
	p, err := graph.Canonical(docPath)
	if err != nil {
		return "", err
	}
	cur := "/"
	for _, seg := range graph.Split(p) {
		kind, err := ReadKind(ctx, store, cur)
		if err != nil {
			return "", err
		}
		if kind == api.Array {
			if i, ok := ParseIndex(seg); ok {
				seg = IndexName(i)
			}
		}
		cur = graph.Join(cur, seg)
	}
	return cur, nil
}
