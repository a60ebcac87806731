package resolve

import (
	"context"
	"fmt"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/codec"
	"github.com/agentic-research/nsjson/internal/graph"
)

// source loads document values by canonical path. An overlay document, if
// set, shadows the store for every path at or below overlayRoot.
type source struct {
	store       graph.Store
	overlay     any
	overlayRoot string
	hasOverlay  bool
	reads       int
}

func (s *source) load(ctx context.Context, p string) (any, error) {
	if s.hasOverlay && graph.Within(s.overlayRoot, p) {
		return s.fromOverlay(p)
	}
	s.reads++
	storePath, err := codec.Locate(ctx, s.store, p)
	if err != nil {
		return nil, err
	}
	return codec.Read(ctx, s.store, storePath)
}

func (s *source) fromOverlay(p string) (any, error) {
	cur := s.overlay
	rel := graph.Split(p)[len(graph.Split(s.overlayRoot)):]
	for _, seg := range rel {
		switch x := cur.(type) {
		case map[string]any:
			v, ok := x[seg]
			if !ok {
				return nil, api.Wrap(api.GetDataFailed, p, fmt.Errorf("%s: %w", p, graph.ErrNotFound))
			}
			cur = v
		case []any:
			i, ok := codec.ParseIndex(seg)
			if !ok || i >= len(x) {
				return nil, api.Wrap(api.GetDataFailed, p, fmt.Errorf("%s: %w", p, graph.ErrNotFound))
			}
			cur = x[i]
		default:
			return nil, api.Wrap(api.GetDataFailed, p, fmt.Errorf("%s: %w", p, graph.ErrNotFound))
		}
	}
	return cur, nil
}
