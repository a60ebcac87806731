package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentic-research/nsjson/internal/graph"
)

// openStore dials the store named by a URL:
//
//	mem:                              in-process, lost on exit
//	sqlite:<file>                     file-backed
//	zk:<host:port>[,host:port][/root] ZooKeeper ensemble, optional chroot
func openStore(ctx context.Context, url string, timeout time.Duration, logger *slog.Logger) (graph.Store, func() error, error) {
	scheme, rest, ok := strings.Cut(url, ":")
	if !ok {
		return nil, nil, fmt.Errorf("invalid store url %q: missing scheme", url)
	}
	switch scheme {
	case "mem":
		return graph.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		if rest == "" {
			return nil, nil, fmt.Errorf("invalid store url %q: missing file", url)
		}
		s, err := graph.OpenSQLiteStore(rest)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "zk":
		dialCtx, cancel := context.WithTimeout(ctx, 5*timeout)
		defer cancel()
		s, err := graph.DialZK(dialCtx, rest, graph.ZKOptions{SessionTimeout: timeout, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("invalid store url %q: unknown scheme %q", url, scheme)
}
