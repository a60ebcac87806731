// Package script compiles the value()/path()/eval() expressions that may
// appear in string leaves of a template document.
//
// A script leaf has the form "<prefix>:func(args)". path() is evaluated at
// compile time from the leaf's own path segments. value() becomes a pending
// reference to another leaf. eval() keeps its literal text, expands nested
// path() calls and replaces nested value() calls with placeholder tokens
// that are substituted once every reference has been resolved.
//
// value() references stay relative until the leaf is placed: a leaf that
// is inherited into another node resolves them against its new location.
package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/graph"
)

// Func identifies a script function.
type Func int

const (
	// Literal is a plain string, or the already expanded result of path().
	Literal Func = iota
	// Value is a reference to another leaf.
	Value
	// Eval is a template with placeholder tokens.
	Eval
)

func (f Func) String() string {
	switch f {
	case Literal:
		return "literal"
	case Value:
		return "value"
	case Eval:
		return "eval"
	}
	return fmt.Sprintf("Func(%d)", int(f))
}

// Token is one deferred value() occurrence inside an eval() template.
type Token struct {
	Text string // placeholder text as it appears in the template
	Ref  string // reference as written, relative to the leaf
}

// Compiled is a compiled string leaf.
type Compiled struct {
	Func   Func
	Text   string  // literal text (Literal) or template (Eval)
	Ref    string  // reference as written (Value)
	Tokens []Token // placeholders (Eval)
}

var innerCall = regexp.MustCompile(`(value|path)\(([^()]*)\)`)

// Compiler compiles leaves for one resolution run. Placeholder tokens embed
// a per-run random nonce and a counter, so they never collide with text a
// document could already contain.
type Compiler struct {
	prefix  string
	grammar *regexp.Regexp
	nonce   string
	n       int
	exprs   map[string]*exprCache
}

// NewCompiler returns a compiler for the given prefix. An empty prefix
// turns every string into a literal.
func NewCompiler(prefix string) *Compiler {
	c := &Compiler{prefix: prefix, nonce: uuid.NewString(), exprs: map[string]*exprCache{}}
	if prefix != "" {
		c.grammar = regexp.MustCompile(`(?s)^` + regexp.QuoteMeta(prefix) + `:(eval|value|path)\((.*)\)$`)
	}
	return c
}

// IsScript reports whether s is meant to be compiled as a script.
func (c *Compiler) IsScript(s string) bool {
	return c.grammar != nil && strings.HasPrefix(s, c.prefix+":")
}

// Compile compiles the string leaf s found at the absolute path at.
func (c *Compiler) Compile(s, at string) (*Compiled, error) {
	if !c.IsScript(s) {
		return &Compiled{Func: Literal, Text: s}, nil
	}
	m := c.grammar.FindStringSubmatch(s)
	if m == nil {
		return nil, api.Errorf(api.IncrementalInvalidScript, at, "%q does not match %s:func(args)", s, c.prefix)
	}
	fn, args := m[1], m[2]
	switch fn {
	case "path":
		text, err := c.path(args, at)
		if err != nil {
			return nil, err
		}
		return &Compiled{Func: Literal, Text: text}, nil
	case "value":
		ref, err := reference(args, at)
		if err != nil {
			return nil, err
		}
		return &Compiled{Func: Value, Ref: ref}, nil
	}
	return c.eval(args, at)
}

func (c *Compiler) eval(body, at string) (*Compiled, error) {
	out := &Compiled{Func: Eval}
	var firstErr error
	out.Text = innerCall.ReplaceAllStringFunc(body, func(call string) string {
		if firstErr != nil {
			return call
		}
		m := innerCall.FindStringSubmatch(call)
		if m[1] == "path" {
			text, err := c.path(m[2], at)
			if err != nil {
				firstErr = err
				return call
			}
			return text
		}
		ref, err := reference(m[2], at)
		if err != nil {
			firstErr = err
			return call
		}
		c.n++
		tok := Token{Text: "{{" + c.nonce + "#" + strconv.Itoa(c.n) + "}}", Ref: ref}
		out.Tokens = append(out.Tokens, tok)
		return tok.Text
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// reference validates a value() argument.
func reference(arg, at string) (string, error) {
	ref := unquote(strings.TrimSpace(arg))
	if ref == "" {
		return "", api.Errorf(api.IncrementalInvalidScript, at, "value() needs a path")
	}
	return ref, nil
}

// Target resolves ref for a leaf placed at the absolute path at.
// E.g. Target("/svc/url", "../host") → "/svc/host".
func Target(at, ref string) string {
	return graph.Resolve(at, ref)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// Substitute replaces every token in an eval() template placed at the
// absolute path at with the string form of its resolved value. lookup
// receives absolute paths.
func Substitute(c *Compiled, at string, lookup func(target string) (any, error)) (string, error) {
	text := c.Text
	for _, tok := range c.Tokens {
		v, err := lookup(Target(at, tok.Ref))
		if err != nil {
			return "", err
		}
		text = strings.Replace(text, tok.Text, Stringify(v), 1)
	}
	return text, nil
}

// Stringify renders a resolved value for text substitution: strings
// verbatim, everything else as compact JSON.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return oj.JSON(v)
}
