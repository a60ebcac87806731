package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("node not found")
	ErrNodeExists = errors.New("node already exists")
	ErrNotEmpty   = errors.New("node has children")
	ErrBadPath    = errors.New("invalid node path")
)

// Node is one addressable location in the namespace.
// ID is the canonical absolute path ("/" for the root).
type Node struct {
	ID       string
	Data     []byte
	Children []string // child names (not paths), kept sorted
	Version  int32    // bumped on every SetData
	ModTime  time.Time
}

func (n *Node) clone() *Node {
	c := *n
	c.Data = append([]byte(nil), n.Data...)
	c.Children = append([]string(nil), n.Children...)
	return &c
}

// OpKind is the type of a batched namespace mutation.
type OpKind int

const (
	OpCreate OpKind = iota
	OpSetData
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpSetData:
		return "setData"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Op is one element of an atomic batch submitted through Store.Multi.
type Op struct {
	Kind OpKind
	Path string
	Data []byte
}

func CreateOp(path string, data []byte) Op  { return Op{Kind: OpCreate, Path: path, Data: data} }
func SetDataOp(path string, data []byte) Op { return Op{Kind: OpSetData, Path: path, Data: data} }
func DeleteOp(path string) Op               { return Op{Kind: OpDelete, Path: path} }

func (o Op) String() string {
	return o.Kind.String() + " " + o.Path
}

// OpError reports which operation of a batch failed. The batch as a whole
// was not applied.
type OpError struct {
	Index int
	Op    Op
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("multi: op %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Store is the hierarchical namespace the codec reads and writes.
// This allows us to swap the backend (Memory -> SQLite -> ZooKeeper).
//
// Implementations must treat "/" as always present. Create fails with
// ErrNodeExists if the node is present and ErrNotFound if its parent is not;
// SetData fails with ErrNotFound if absent; Delete fails with ErrNotEmpty if
// the node still has children.
type Store interface {
	Exists(ctx context.Context, path string) (bool, error)
	GetData(ctx context.Context, path string) ([]byte, error)
	GetChildren(ctx context.Context, path string) ([]string, error)
	Create(ctx context.Context, path string, data []byte) error
	SetData(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// Multi applies ops in order, all or nothing.
	Multi(ctx context.Context, ops []Op) error
}

// -----------------------------------------------------------------------------
// In-Memory Store
// -----------------------------------------------------------------------------

// MemoryStore keeps the whole namespace in a map keyed by canonical path.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: map[string]*Node{
			"/": {ID: "/"},
		},
		now: time.Now,
	}
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	p, err := Canonical(path)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[p]
	return ok, nil
}

// GetData implements Store.
func (s *MemoryStore) GetData(ctx context.Context, path string) ([]byte, error) {
	n, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), n.Data...), nil
}

// GetChildren implements Store.
func (s *MemoryStore) GetChildren(ctx context.Context, path string) ([]string, error) {
	n, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), n.Children...), nil
}

// GetNode returns a copy of the node at path.
func (s *MemoryStore) GetNode(path string) (*Node, error) {
	n, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *MemoryStore) lookup(path string) (*Node, error) {
	p, err := Canonical(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[p]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return n.clone(), nil
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, path string, data []byte) error {
	return s.Multi(ctx, []Op{CreateOp(path, data)})
}

// SetData implements Store.
func (s *MemoryStore) SetData(ctx context.Context, path string, data []byte) error {
	return s.Multi(ctx, []Op{SetDataOp(path, data)})
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	return s.Multi(ctx, []Op{DeleteOp(path)})
}

// Multi implements Store. Every node an op touches is saved before the op
// runs; on failure the saved copies are put back.
func (s *MemoryStore) Multi(ctx context.Context, ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	undo := make(map[string]*Node)
	save := func(p string) {
		if _, done := undo[p]; done {
			return
		}
		if n, ok := s.nodes[p]; ok {
			undo[p] = n.clone()
		} else {
			undo[p] = nil
		}
	}
	rollback := func() {
		for p, n := range undo {
			if n == nil {
				delete(s.nodes, p)
			} else {
				s.nodes[p] = n
			}
		}
	}

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			rollback()
			return err
		}
		p, err := Canonical(op.Path)
		if err == nil {
			save(p)
			if p != "/" {
				save(Parent(p))
			}
			err = s.apply(op.Kind, p, op.Data)
		}
		if err != nil {
			rollback()
			return &OpError{Index: i, Op: op, Err: err}
		}
	}
	return nil
}

// apply performs one mutation. Must be called with s.mu held.
func (s *MemoryStore) apply(kind OpKind, p string, data []byte) error {
	switch kind {
	case OpCreate:
		if _, ok := s.nodes[p]; ok {
			return ErrNodeExists
		}
		parent, ok := s.nodes[Parent(p)]
		if !ok {
			return ErrNotFound
		}
		s.nodes[p] = &Node{ID: p, Data: append([]byte(nil), data...), ModTime: s.now()}
		parent.Children = insertSorted(parent.Children, Base(p))
	case OpSetData:
		n, ok := s.nodes[p]
		if !ok {
			return ErrNotFound
		}
		n.Data = append([]byte(nil), data...)
		n.Version++
		n.ModTime = s.now()
	case OpDelete:
		if p == "/" {
			return ErrBadPath
		}
		n, ok := s.nodes[p]
		if !ok {
			return ErrNotFound
		}
		if len(n.Children) > 0 {
			return ErrNotEmpty
		}
		delete(s.nodes, p)
		if parent, ok := s.nodes[Parent(p)]; ok {
			parent.Children = removeSorted(parent.Children, Base(p))
		}
	default:
		return fmt.Errorf("unknown op kind %v", kind)
	}
	return nil
}

// Len returns the number of nodes, including the root.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func insertSorted(names []string, name string) []string {
	i := sort.SearchStrings(names, name)
	if i < len(names) && names[i] == name {
		return names
	}
	names = append(names, "")
	copy(names[i+1:], names[i:])
	names[i] = name
	return names
}

func removeSorted(names []string, name string) []string {
	i := sort.SearchStrings(names, name)
	if i < len(names) && names[i] == name {
		return append(names[:i], names[i+1:]...)
	}
	return names
}

// Verify interface compliance at compile time.
var _ Store = (*MemoryStore)(nil)
