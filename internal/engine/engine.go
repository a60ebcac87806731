// Package engine holds the entry points the CLI and the MCP server call:
// serialize a namespace subtree, write a document into it, delete it, and
// resolve it as a template.
package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/zeebo/blake3"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/codec"
	"github.com/agentic-research/nsjson/internal/docio"
	"github.com/agentic-research/nsjson/internal/graph"
	"github.com/agentic-research/nsjson/internal/resolve"
)

// Engine drives one namespace. It holds no per-call state, so one Engine
// may serve concurrent calls; calls on overlapping subtrees are not
// coordinated beyond the store's own batch atomicity.
type Engine struct {
	Store      graph.Store
	Vocabulary api.Vocabulary
	logger     *slog.Logger
}

func New(store graph.Store, vocab api.Vocabulary, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Store:      graph.NewLoggedStore(store, logger),
		Vocabulary: vocab.WithDefaults(),
		logger:     logger.With("component", "engine"),
	}
}

func (e *Engine) done(ctx context.Context, op, root string, start time.Time, err error, attrs ...any) {
	attrs = append(attrs, "op", op, "root", root, "elapsed", time.Since(start))
	if err != nil {
		e.logger.WarnContext(ctx, "call failed", append(attrs, "err", err)...)
		return
	}
	e.logger.InfoContext(ctx, "call done", attrs...)
}

// Exists reports whether root is present.
func (e *Engine) Exists(ctx context.Context, root string) (bool, error) {
	p, err := graph.Canonical(root)
	if err != nil {
		return false, err
	}
	return e.Store.Exists(ctx, p)
}

// Serialize reads the subtree at root back into a document.
func (e *Engine) Serialize(ctx context.Context, root string) (doc any, err error) {
	start := time.Now()
	defer func() { e.done(ctx, "serialize", root, start, err) }()
	return codec.Read(ctx, e.Store, root)
}

// Plan returns the batch Deserialize would submit, without applying it.
func (e *Engine) Plan(ctx context.Context, doc any, root string, mode api.Mode) ([]graph.Op, error) {
	return codec.Plan(ctx, e.Store, root, doc, mode)
}

// Deserialize writes doc at root in one atomic batch.
func (e *Engine) Deserialize(ctx context.Context, doc any, root string, mode api.Mode) (err error) {
	start := time.Now()
	n := 0
	defer func() { e.done(ctx, "deserialize", root, start, err, "mode", mode.String(), "ops", n) }()
	n, err = codec.Write(ctx, e.Store, root, doc, mode)
	return err
}

// Delete removes the subtree at root. A missing root yields an error
// wrapping graph.ErrNotFound.
func (e *Engine) Delete(ctx context.Context, root string) error {
	return e.Deserialize(ctx, nil, root, api.Delete)
}

// ResolveOption adjusts one ResolveTemplate call.
type ResolveOption func(*resolve.Options)

// WithOverlay resolves doc as if it were stored at the root.
func WithOverlay(doc any) ResolveOption {
	return func(o *resolve.Options) {
		o.Overlay = doc
		o.HasOverlay = true
	}
}

// WithScriptPrefix overrides the vocabulary's script prefix.
func WithScriptPrefix(prefix string) ResolveOption {
	return func(o *resolve.Options) { o.Vocabulary.ScriptPrefix = prefix }
}

// ResolveTemplate flattens the template at root, merging bases and
// evaluating scripts, and returns the resulting document.
func (e *Engine) ResolveTemplate(ctx context.Context, root string, opts ...ResolveOption) (doc any, err error) {
	start := time.Now()
	o := resolve.Options{Vocabulary: e.Vocabulary, Logger: e.logger}
	for _, fn := range opts {
		fn(&o)
	}
	defer func() {
		e.done(ctx, "resolve", root, start, err, "script_prefix", o.Vocabulary.ScriptPrefix, "overlay", o.HasOverlay)
	}()
	return resolve.Resolve(ctx, e.Store, root, o)
}

// Patch applies an RFC 6902 JSON Patch (or, with merge, an RFC 7386 merge
// patch) to the subtree at root and writes the result back in Replace
// mode. It returns the patched document.
func (e *Engine) Patch(ctx context.Context, root string, patch []byte, merge bool) (any, error) {
	doc, err := e.Serialize(ctx, root)
	if err != nil {
		return nil, err
	}
	current := docio.Compact(doc)

	var out []byte
	if merge {
		out, err = jsonpatch.MergePatch(current, patch)
	} else {
		var p jsonpatch.Patch
		if p, err = jsonpatch.DecodePatch(patch); err == nil {
			out, err = p.Apply(current)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", root, err)
	}

	next, err := docio.Parse(out, docio.JSON)
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", root, err)
	}
	if err := e.Deserialize(ctx, next, root, api.Replace); err != nil {
		return nil, err
	}
	return next, nil
}

// Digest returns the hex BLAKE3-256 digest of the subtree's compact JSON
// form with sorted members. Equal documents give equal digests regardless
// of the store backend.
func (e *Engine) Digest(ctx context.Context, root string) (string, error) {
	doc, err := e.Serialize(ctx, root)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(docio.Compact(doc))
	return hex.EncodeToString(sum[:]), nil
}
