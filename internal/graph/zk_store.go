package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// ZKStore is the production Store backed by a ZooKeeper ensemble.
// Connection bootstrap is deliberately thin: one session, no watches, no
// retry. Callers own reconnection policy.
type ZKStore struct {
	conn   *zk.Conn
	chroot string // prefix applied to every path, "" for none
	acl    []zk.ACL
}

// ZKOptions configures DialZK.
type ZKOptions struct {
	SessionTimeout time.Duration
	ACL            []zk.ACL // defaults to world:anyone with all permissions
	Logger         *slog.Logger
}

// zkLogger routes the client's Printf logging into slog.
type zkLogger struct{ l *slog.Logger }

func (z zkLogger) Printf(format string, args ...any) {
	z.l.Debug(fmt.Sprintf(format, args...), "component", "zk")
}

// DialZK connects to a connection string of the form
// "host:port[,host:port...][/chroot]" and waits until a session is
// established or ctx is done.
func DialZK(ctx context.Context, connString string, opts ZKOptions) (*ZKStore, error) {
	servers, chroot := splitConnString(connString)
	if len(servers) == 0 {
		return nil, fmt.Errorf("zk: no servers in %q", connString)
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	acl := opts.ACL
	if len(acl) == 0 {
		acl = zk.WorldACL(zk.PermAll)
	}

	conn, events, err := zk.Connect(servers, opts.SessionTimeout, zk.WithLogger(zkLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("zk connect %s: %w", connString, err)
	}

	wait, cancel := context.WithTimeout(ctx, opts.SessionTimeout)
	defer cancel()
	for {
		select {
		case ev := <-events:
			logger.Debug("zk session event", "state", ev.State.String())
			if ev.State == zk.StateHasSession {
				return &ZKStore{conn: conn, chroot: chroot, acl: acl}, nil
			}
			if ev.State == zk.StateAuthFailed || ev.State == zk.StateExpired {
				conn.Close()
				return nil, fmt.Errorf("zk session %s: %s", connString, ev.State)
			}
		case <-wait.Done():
			conn.Close()
			return nil, fmt.Errorf("zk connect %s: %s (%w)", connString, conn.State(), wait.Err())
		}
	}
}

func splitConnString(s string) (servers []string, chroot string) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		chroot = strings.TrimSuffix(s[i:], "/")
		s = s[:i]
	}
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			servers = append(servers, h)
		}
	}
	return servers, chroot
}

func (s *ZKStore) full(path string) (string, error) {
	p, err := Canonical(path)
	if err != nil {
		return "", err
	}
	if s.chroot == "" {
		return p, nil
	}
	if p == "/" {
		return s.chroot, nil
	}
	return s.chroot + p, nil
}

func mapZKErr(p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, zk.ErrNoNode):
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	case errors.Is(err, zk.ErrNodeExists):
		return fmt.Errorf("%s: %w", p, ErrNodeExists)
	case errors.Is(err, zk.ErrNotEmpty):
		return fmt.Errorf("%s: %w", p, ErrNotEmpty)
	}
	return fmt.Errorf("zk %s: %w", p, err)
}

// Exists implements Store.
func (s *ZKStore) Exists(ctx context.Context, path string) (bool, error) {
	p, err := s.full(path)
	if err != nil {
		return false, err
	}
	ok, _, err := s.conn.Exists(p)
	return ok, mapZKErr(p, err)
}

// GetData implements Store.
func (s *ZKStore) GetData(ctx context.Context, path string) ([]byte, error) {
	p, err := s.full(path)
	if err != nil {
		return nil, err
	}
	data, _, err := s.conn.Get(p)
	return data, mapZKErr(p, err)
}

// GetChildren implements Store. The reserved /zookeeper node is hidden.
func (s *ZKStore) GetChildren(ctx context.Context, path string) ([]string, error) {
	p, err := s.full(path)
	if err != nil {
		return nil, err
	}
	names, _, err := s.conn.Children(p)
	if err != nil {
		return nil, mapZKErr(p, err)
	}
	if p == "/" {
		out := names[:0]
		for _, n := range names {
			if n != "zookeeper" {
				out = append(out, n)
			}
		}
		names = out
	}
	return names, nil
}

// Create implements Store.
func (s *ZKStore) Create(ctx context.Context, path string, data []byte) error {
	p, err := s.full(path)
	if err != nil {
		return err
	}
	_, err = s.conn.Create(p, data, 0, s.acl)
	return mapZKErr(p, err)
}

// SetData implements Store.
func (s *ZKStore) SetData(ctx context.Context, path string, data []byte) error {
	p, err := s.full(path)
	if err != nil {
		return err
	}
	_, err = s.conn.Set(p, data, -1)
	return mapZKErr(p, err)
}

// Delete implements Store.
func (s *ZKStore) Delete(ctx context.Context, path string) error {
	p, err := s.full(path)
	if err != nil {
		return err
	}
	return mapZKErr(p, s.conn.Delete(p, -1))
}

// Multi implements Store through the server's own multi-op, which is
// all-or-nothing on the ensemble.
func (s *ZKStore) Multi(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	reqs := make([]any, len(ops))
	for i, op := range ops {
		p, err := s.full(op.Path)
		if err != nil {
			return &OpError{Index: i, Op: op, Err: err}
		}
		switch op.Kind {
		case OpCreate:
			reqs[i] = &zk.CreateRequest{Path: p, Data: op.Data, Acl: s.acl}
		case OpSetData:
			reqs[i] = &zk.SetDataRequest{Path: p, Data: op.Data, Version: -1}
		case OpDelete:
			reqs[i] = &zk.DeleteRequest{Path: p, Version: -1}
		default:
			return &OpError{Index: i, Op: op, Err: fmt.Errorf("unknown op kind %v", op.Kind)}
		}
	}
	resps, err := s.conn.Multi(reqs...)
	for i, r := range resps {
		if r.Error != nil && i < len(ops) {
			return &OpError{Index: i, Op: ops[i], Err: mapZKErr(ops[i].Path, r.Error)}
		}
	}
	if err != nil {
		return fmt.Errorf("zk multi: %w", err)
	}
	return nil
}

// Close ends the session.
func (s *ZKStore) Close() error {
	s.conn.Close()
	return nil
}

// Verify interface compliance at compile time.
var _ Store = (*ZKStore)(nil)
