package script

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/graph"
)

// pathEnv is the environment path() arguments are evaluated in, so
// "length-1" addresses the last segment.
func pathEnv(length int) map[string]any {
	return map[string]any{"length": length}
}

type exprCache struct {
	program *vm.Program
}

// path evaluates path(from[,count]) over the segments of at.
func (c *Compiler) path(args, at string) (string, error) {
	segs := graph.Split(at)
	n := len(segs)

	parts := strings.Split(args, ",")
	if len(parts) > 2 || strings.TrimSpace(parts[0]) == "" {
		return "", api.Errorf(api.IncrementalInvalidPathArg, at, "path(%s): want from[,count]", args)
	}
	from, err := c.intArg(parts[0], n, at)
	if err != nil {
		return "", err
	}
	if from < -n || from >= n {
		return "", api.Errorf(api.IncrementalInvalidPathArg, at, "path(%s): from %d outside [%d,%d)", args, from, -n, n)
	}
	if from < 0 {
		from += n
	}

	count := n - from
	if len(parts) == 2 {
		if count, err = c.intArg(parts[1], n, at); err != nil {
			return "", err
		}
	}
	if count <= 0 || from+count > n {
		return "", api.Errorf(api.IncrementalInvalidPathArg, at, "path(%s): count %d invalid for %d segments", args, count, n)
	}
	return strings.Join(segs[from:from+count], "/"), nil
}

// intArg evaluates one integer argument. Programs are cached per source
// text for the lifetime of the compiler.
func (c *Compiler) intArg(src string, length int, at string) (int, error) {
	src = strings.TrimSpace(src)
	cached, ok := c.exprs[src]
	if !ok {
		program, err := expr.Compile(src, expr.Env(pathEnv(0)), expr.AsInt())
		if err != nil {
			return 0, &api.Error{Code: api.IncrementalInvalidPathArg, Path: at, Msg: "path(" + src + ")", Err: err}
		}
		cached = &exprCache{program: program}
		c.exprs[src] = cached
	}
	out, err := expr.Run(cached.program, pathEnv(length))
	if err != nil {
		return 0, &api.Error{Code: api.IncrementalInvalidPathArg, Path: at, Msg: "path(" + src + ")", Err: err}
	}
	v, ok := out.(int)
	if !ok {
		return 0, api.Errorf(api.IncrementalInvalidPathArg, at, "path(%s): not an integer", src)
	}
	return v, nil
}
