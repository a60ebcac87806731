package resolve

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/script"
)

// NodeID is a handle into the Graph arena.
type NodeID uint32

// member is one declared member of a container node: a child container,
// a scalar terminal, a compiled script, or a tombstone.
type member struct {
	child    NodeID
	hasChild bool
	tomb     bool
	value    any
	script   *script.Compiled // Value or Eval leaf
}

// Node is one container in the document graph. Scalars are members of
// their parent, never nodes of their own.
type Node struct {
	ID   NodeID
	Path string   // canonical; array elements use plain decimal indices
	Kind api.Kind // Undefined until the node is confirmed

	// members in declared order, tombstones included
	members *orderedmap.OrderedMap[string, member]
	// Ordered lists every member name as it was declared, including the
	// base property.
	Ordered []string

	Bases     []NodeID
	Inherits  []NodeID
	Confirmed bool
}

// Empty reports whether the node declares no members and no bases.
func (n *Node) Empty() bool {
	return n.members.Len() == 0 && len(n.Bases) == 0
}

// Graph is the arena of nodes for one resolution run. Nodes refer to each
// other by NodeID, so base cycles are representable.
type Graph struct {
	nodes  []*Node
	byPath map[string]NodeID
}

func NewGraph() *Graph {
	return &Graph{byPath: make(map[string]NodeID)}
}

// Len returns the number of nodes, placeholders included.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node for id.
func (g *Graph) Node(id NodeID) *Node { return g.nodes[id] }

// Lookup returns the node registered for a canonical path.
func (g *Graph) Lookup(p string) (*Node, bool) {
	id, ok := g.byPath[p]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// ensure returns the node for p, creating an unconfirmed placeholder if
// none exists yet.
func (g *Graph) ensure(p string) *Node {
	if id, ok := g.byPath[p]; ok {
		return g.nodes[id]
	}
	n := &Node{
		ID:      NodeID(len(g.nodes)),
		Path:    p,
		members: orderedmap.New[string, member](),
	}
	g.nodes = append(g.nodes, n)
	g.byPath[p] = n.ID
	return n
}

// link records that derived inherits from base.
func (g *Graph) link(derived, base *Node) {
	derived.Bases = append(derived.Bases, base.ID)
	base.Inherits = append(base.Inherits, derived.ID)
}

func (g *Graph) paths(ids []NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id].Path
	}
	return out
}
