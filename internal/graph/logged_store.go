package graph

import (
	"context"
	"log/slog"
	"time"
)

// LoggedStore wraps a Store and emits a debug record for every call.
// It is safe for concurrent use if the wrapped Store is.
type LoggedStore struct {
	inner  Store
	logger *slog.Logger
}

func NewLoggedStore(inner Store, logger *slog.Logger) *LoggedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggedStore{inner: inner, logger: logger.With("component", "store")}
}

// Unwrap returns the decorated store.
func (s *LoggedStore) Unwrap() Store { return s.inner }

func (s *LoggedStore) log(ctx context.Context, call, path string, start time.Time, err error, attrs ...any) {
	attrs = append(attrs, "call", call, "path", path, "elapsed", time.Since(start))
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	s.logger.DebugContext(ctx, "store call", attrs...)
}

// Exists delegates to the wrapped store.
func (s *LoggedStore) Exists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, path)
	s.log(ctx, "exists", path, start, err, "exists", ok)
	return ok, err
}

// GetData delegates to the wrapped store.
func (s *LoggedStore) GetData(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	data, err := s.inner.GetData(ctx, path)
	s.log(ctx, "getData", path, start, err, "bytes", len(data))
	return data, err
}

// GetChildren delegates to the wrapped store.
func (s *LoggedStore) GetChildren(ctx context.Context, path string) ([]string, error) {
	start := time.Now()
	names, err := s.inner.GetChildren(ctx, path)
	s.log(ctx, "getChildren", path, start, err, "children", len(names))
	return names, err
}

// Create delegates to the wrapped store.
func (s *LoggedStore) Create(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	err := s.inner.Create(ctx, path, data)
	s.log(ctx, "create", path, start, err)
	return err
}

// SetData delegates to the wrapped store.
func (s *LoggedStore) SetData(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	err := s.inner.SetData(ctx, path, data)
	s.log(ctx, "setData", path, start, err)
	return err
}

// Delete delegates to the wrapped store.
func (s *LoggedStore) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, path)
	s.log(ctx, "delete", path, start, err)
	return err
}

// Multi delegates to the wrapped store.
func (s *LoggedStore) Multi(ctx context.Context, ops []Op) error {
	start := time.Now()
	err := s.inner.Multi(ctx, ops)
	first := ""
	if len(ops) > 0 {
		first = ops[0].Path
	}
	s.log(ctx, "multi", first, start, err, "ops", len(ops))
	return err
}

var _ Store = (*LoggedStore)(nil)
