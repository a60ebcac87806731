package resolve

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/graph"
	"github.com/agentic-research/nsjson/internal/script"
)

// Builder turns document values into Graph nodes, registering base
// references and compiling script leaves on the way.
type Builder struct {
	g        *Graph
	vocab    api.Vocabulary
	compiler *script.Compiler
}

func NewBuilder(g *Graph, vocab api.Vocabulary) *Builder {
	vocab = vocab.WithDefaults()
	return &Builder{g: g, vocab: vocab, compiler: script.NewCompiler(vocab.ScriptPrefix)}
}

// Build confirms the node at canonical path p from v. A node that is
// already confirmed is left as is. Object members are visited in sorted
// key order, which is the declared order of the node.
func (b *Builder) Build(p string, v any) (*Node, error) {
	n := b.g.ensure(p)
	if n.Confirmed {
		return n, nil
	}

	switch x := v.(type) {
	case map[string]any:
		n.Kind = api.Object
		n.Confirmed = true
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n.Ordered = append(n.Ordered, k)
			if err := b.objectMember(n, k, x[k]); err != nil {
				return nil, err
			}
		}
	case []any:
		n.Kind = api.Array
		n.Confirmed = true
		for i, el := range x {
			name := strconv.Itoa(i)
			n.Ordered = append(n.Ordered, name)
			if err := b.value(n, name, el); err != nil {
				return nil, err
			}
		}
	default:
		k, _ := api.KindOf(v)
		return nil, api.Errorf(api.IncrementalNotObject, p, "%s is not a container", k)
	}
	return n, nil
}

func (b *Builder) objectMember(n *Node, name string, v any) error {
	if name == b.vocab.BaseProperty {
		return b.bases(n, v)
	}
	if m := b.vocab.DeleteMarker; len(name) > len(m) && strings.HasPrefix(name, m) {
		n.members.Set(name[len(m):], member{tomb: true})
		return nil
	}
	return b.value(n, name, v)
}

// bases records each reference of a base property as a placeholder edge.
// Nothing is loaded here.
func (b *Builder) bases(n *Node, v any) error {
	var refs []string
	switch x := v.(type) {
	case string:
		refs = []string{x}
	case []any:
		for _, el := range x {
			s, ok := el.(string)
			if !ok {
				return api.Errorf(api.IncrementalBasePropertyValueKind, n.Path, "array element %T", el)
			}
			refs = append(refs, s)
		}
	default:
		return api.Errorf(api.IncrementalBasePropertyValueKind, n.Path, "got %T", v)
	}
	for _, ref := range refs {
		if ref == "" {
			return api.Errorf(api.IncrementalBasePropertyValueKind, n.Path, "empty reference")
		}
		b.g.link(n, b.g.ensure(graph.Resolve(n.Path, ref)))
	}
	return nil
}

func (b *Builder) value(n *Node, name string, v any) error {
	p := graph.Join(n.Path, name)
	switch x := v.(type) {
	case map[string]any, []any:
		c, err := b.Build(p, v)
		if err != nil {
			return err
		}
		n.members.Set(name, member{child: c.ID, hasChild: true})
	case string:
		c, err := b.compiler.Compile(x, p)
		if err != nil {
			return err
		}
		if c.Func == script.Literal {
			n.members.Set(name, member{value: c.Text})
		} else {
			n.members.Set(name, member{script: c})
		}
	default:
		n.members.Set(name, member{value: v})
	}
	return nil
}
