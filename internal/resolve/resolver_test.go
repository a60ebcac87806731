package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/codec"
	"github.com/agentic-research/nsjson/internal/graph"
	"github.com/agentic-research/nsjson/internal/pathtree"
)

// seed writes each document at its path into a fresh store.
func seed(t *testing.T, docs map[string]any) *graph.MemoryStore {
	t.Helper()
	s := graph.NewMemoryStore()
	for p, doc := range docs {
		_, err := codec.Write(context.Background(), s, p, doc, api.Replace)
		require.NoError(t, err, "seed %s", p)
	}
	return s
}

func scripted() Options {
	return Options{Vocabulary: api.Vocabulary{ScriptPrefix: "js"}}
}

func resolveOK(t *testing.T, s graph.Store, root string, opts Options) any {
	t.Helper()
	got, err := Resolve(context.Background(), s, root, opts)
	require.NoError(t, err)
	return got
}

func assertDoc(t *testing.T, want, got any) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved document mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_Inheritance(t *testing.T) {
	t.Run("own member overrides base", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"X":       map[string]any{"a": int64(1), "b": int64(2)},
			"derived": map[string]any{"base": "../X", "a": int64(3)},
		}})
		assertDoc(t, map[string]any{"a": int64(3), "b": int64(2)}, resolveOK(t, s, "/t/derived", Options{}))
	})

	t.Run("deletion marker removes inherited member", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"X":       map[string]any{"a": int64(1), "b": int64(2)},
			"derived": map[string]any{"base": "../X", "-b": nil},
		}})
		assertDoc(t, map[string]any{"a": int64(1)}, resolveOK(t, s, "/t/derived", Options{}))
	})

	t.Run("deleting everything leaves an empty object", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"X":       map[string]any{"a": int64(1)},
			"derived": map[string]any{"base": "../X", "-a": nil},
		}})
		assertDoc(t, map[string]any{}, resolveOK(t, s, "/t/derived", Options{}))
	})

	t.Run("later bases overwrite earlier ones", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"X1": map[string]any{"a": int64(1), "b": int64(1)},
			"X2": map[string]any{"b": int64(2), "c": int64(2)},
			"D":  map[string]any{"base": []any{"../X1", "../X2"}, "c": int64(3)},
		}})
		assertDoc(t, map[string]any{"a": int64(1), "b": int64(2), "c": int64(3)}, resolveOK(t, s, "/t/D", Options{}))
	})

	t.Run("chained bases", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"X": map[string]any{"a": int64(1), "b": int64(1), "c": int64(1)},
			"C": map[string]any{"base": "../X", "b": int64(2)},
			"D": map[string]any{"base": "../C", "c": int64(3)},
		}})
		assertDoc(t, map[string]any{"a": int64(1), "b": int64(2), "c": int64(3)}, resolveOK(t, s, "/t/D", Options{}))
	})

	t.Run("objects merge and arrays replace", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"X": map[string]any{
				"list": []any{int64(1), int64(2)},
				"obj":  map[string]any{"k": int64(1), "j": int64(1)},
				"s":    "scalar",
			},
			"D": map[string]any{
				"base": "../X",
				"list": []any{int64(3)},
				"obj":  map[string]any{"j": int64(2)},
				"s":    map[string]any{"now": "object"},
			},
		}})
		assertDoc(t, map[string]any{
			"list": []any{int64(3)},
			"obj":  map[string]any{"k": int64(1), "j": int64(2)},
			"s":    map[string]any{"now": "object"},
		}, resolveOK(t, s, "/t/D", Options{}))
	})

	t.Run("nested base and absolute reference", func(t *testing.T) {
		s := seed(t, map[string]any{
			"/lib/defaults": map[string]any{"timeout": int64(30), "retries": int64(3)},
			"/app": map[string]any{
				"name": "svc",
				"http": map[string]any{"base": "/lib/defaults", "timeout": int64(5)},
			},
		})
		assertDoc(t, map[string]any{
			"name": "svc",
			"http": map[string]any{"timeout": int64(5), "retries": int64(3)},
		}, resolveOK(t, s, "/app", Options{}))
	})

	t.Run("array root with inherited element", func(t *testing.T) {
		s := seed(t, map[string]any{
			"/X":   map[string]any{"k": "v"},
			"/arr": []any{map[string]any{"base": "../../X"}, int64(2), []any{}},
		})
		assertDoc(t, []any{map[string]any{"k": "v"}, int64(2), []any{}}, resolveOK(t, s, "/arr", Options{}))
	})

	t.Run("custom vocabulary", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"X": map[string]any{"a": int64(1), "b": int64(2), "base": "kept"},
			"D": map[string]any{"$extends": "../X", "!a": nil},
		}})
		opts := Options{Vocabulary: api.Vocabulary{BaseProperty: "$extends", DeleteMarker: "!"}}
		assertDoc(t, map[string]any{"b": int64(2), "base": "kept"}, resolveOK(t, s, "/t/D", opts))
	})

	t.Run("scalar root", func(t *testing.T) {
		s := seed(t, map[string]any{"/v": int64(7)})
		assert.Equal(t, int64(7), resolveOK(t, s, "/v", Options{}))
	})
}

func TestResolve_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("cycle reports sequence", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"A": map[string]any{"base": "../B"},
			"B": map[string]any{"base": "../A"},
		}})
		_, err := Resolve(ctx, s, "/t/A", Options{})
		require.Error(t, err)
		var ae *api.Error
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, api.IncrementalCycle, ae.Code)
		assert.Equal(t, []string{"/t/A", "/t/B", "/t/A"}, ae.Cycle)
	})

	t.Run("self containment is a cycle", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"inner": map[string]any{"base": ".."},
		}})
		_, err := Resolve(ctx, s, "/t", Options{})
		assert.ErrorIs(t, err, api.ErrCycle)
	})

	t.Run("base is not an object", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"X": "scalar",
			"L": []any{int64(1)},
			"D": map[string]any{"base": "../X"},
			"E": map[string]any{"base": "../L"},
		}})
		_, err := Resolve(ctx, s, "/t/D", Options{})
		assert.ErrorIs(t, err, api.ErrNotObject)
		_, err = Resolve(ctx, s, "/t/E", Options{})
		assert.ErrorIs(t, err, api.ErrNotObject)
	})

	t.Run("base property kind", func(t *testing.T) {
		for _, bad := range []any{int64(5), []any{"ok", int64(1)}, map[string]any{}, ""} {
			s := seed(t, map[string]any{"/D": map[string]any{"base": bad}})
			_, err := Resolve(ctx, s, "/D", Options{})
			assert.ErrorIs(t, err, api.ErrBasePropertyKind, "base %v", bad)
		}
	})

	t.Run("missing base", func(t *testing.T) {
		s := seed(t, map[string]any{"/D": map[string]any{"base": "../nowhere"}})
		_, err := Resolve(ctx, s, "/D", Options{})
		assert.ErrorIs(t, err, api.ErrGetDataFailed)
		assert.ErrorIs(t, err, graph.ErrNotFound)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := Resolve(ctx, graph.NewMemoryStore(), "/none", Options{})
		assert.ErrorIs(t, err, graph.ErrNotFound)
	})
}

func TestResolve_Scripts(t *testing.T) {
	ctx := context.Background()

	t.Run("forward value reference", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"a": map[string]any{"x": "js:value(../y)", "y": "later"},
		}})
		assertDoc(t, map[string]any{"a": map[string]any{"x": "later", "y": "later"}}, resolveOK(t, s, "/t", scripted()))
	})

	t.Run("path arguments", func(t *testing.T) {
		s := seed(t, map[string]any{
			"/a": map[string]any{"b": map[string]any{"c": "js:path(0,1)"}},
			"/p": map[string]any{"q": map[string]any{"c": "js:path(-1)"}},
		})
		assertDoc(t, map[string]any{"b": map[string]any{"c": "a"}}, resolveOK(t, s, "/a", scripted()))
		assertDoc(t, map[string]any{"q": map[string]any{"c": "c"}}, resolveOK(t, s, "/p", scripted()))
	})

	t.Run("eval substitutes values", func(t *testing.T) {
		s := seed(t, map[string]any{"/svc": map[string]any{
			"host": "example.org",
			"port": int64(8080),
			"url":  "js:eval(http://value(../host):value(../port)/path(0,1))",
		}})
		got := resolveOK(t, s, "/svc", scripted())
		assert.Equal(t, "http://example.org:8080/svc", got.(map[string]any)["url"])
	})

	t.Run("value chain", func(t *testing.T) {
		s := seed(t, map[string]any{"/c": map[string]any{
			"a": "js:value(../b)",
			"b": "js:eval(<value(../c)>)",
			"c": 1.5,
		}})
		assertDoc(t, map[string]any{"a": "<1.5>", "b": "<1.5>", "c": 1.5}, resolveOK(t, s, "/c", scripted()))
	})

	t.Run("inherited script sees derived values", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"X": map[string]any{"host": "base", "url": "js:value(../host)"},
			"D": map[string]any{"base": "../X", "host": "derived"},
		}})
		assertDoc(t, map[string]any{"host": "derived", "url": "derived"}, resolveOK(t, s, "/t/D", scripted()))
	})

	t.Run("value outside the document reads the store", func(t *testing.T) {
		s := seed(t, map[string]any{
			"/shared": map[string]any{"list": []any{"zero", "one"}},
			"/t":      map[string]any{"x": "js:value(/shared/list/1)"},
		})
		assertDoc(t, map[string]any{"x": "one"}, resolveOK(t, s, "/t", scripted()))
	})

	t.Run("value of array element in document", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"list":  []any{"zero", map[string]any{"id": int64(9)}},
			"first": "js:value(../list/0)",
			"id":    "js:value(../list/1/id)",
		}})
		got := resolveOK(t, s, "/t", scripted()).(map[string]any)
		assert.Equal(t, "zero", got["first"])
		assert.Equal(t, int64(9), got["id"])
	})

	t.Run("scripts are literal without a prefix", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{"x": "js:value(../y)"}})
		assertDoc(t, map[string]any{"x": "js:value(../y)"}, resolveOK(t, s, "/t", Options{}))
	})

	t.Run("value of container", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"obj":   map[string]any{"k": int64(1)},
			"empty": map[string]any{},
			"x":     "js:value(../obj)",
		}})
		_, err := Resolve(ctx, s, "/t", scripted())
		assert.ErrorIs(t, err, api.ErrValueOfObject)

		s = seed(t, map[string]any{"/t": map[string]any{"empty": []any{}, "x": "js:value(../empty)"}})
		_, err = Resolve(ctx, s, "/t", scripted())
		assert.ErrorIs(t, err, api.ErrValueOfObject)
	})

	t.Run("value loop", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{
			"a": "js:value(../b)",
			"b": "js:eval(x value(../a))",
		}})
		_, err := Resolve(ctx, s, "/t", scripted())
		require.Error(t, err)
		var ae *api.Error
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, api.IncrementalCycle, ae.Code)
		assert.Equal(t, []string{"/t/a", "/t/b", "/t/a"}, ae.Cycle)
	})

	t.Run("missing value target", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{"x": "js:value(../nope)"}})
		_, err := Resolve(ctx, s, "/t", scripted())
		assert.ErrorIs(t, err, api.ErrGetDataFailed)
		assert.ErrorIs(t, err, graph.ErrNotFound)
	})

	t.Run("invalid script", func(t *testing.T) {
		s := seed(t, map[string]any{"/t": map[string]any{"x": "js:bogus"}})
		_, err := Resolve(ctx, s, "/t", scripted())
		assert.ErrorIs(t, err, api.ErrInvalidScript)

		s = seed(t, map[string]any{"/t": map[string]any{"x": "js:path(9)"}})
		_, err = Resolve(ctx, s, "/t", scripted())
		assert.ErrorIs(t, err, api.ErrInvalidPathArg)
	})
}

func TestResolve_Overlay(t *testing.T) {
	s := seed(t, map[string]any{"/t/X": map[string]any{"a": int64(1)}})
	opts := Options{
		Overlay:    map[string]any{"base": "../X", "b": int64(2)},
		HasOverlay: true,
	}
	assertDoc(t, map[string]any{"a": int64(1), "b": int64(2)}, resolveOK(t, s, "/t/new", opts))

	ok, err := s.Exists(context.Background(), "/t/new")
	require.NoError(t, err)
	assert.False(t, ok, "overlay is never written")
}

func TestFlatten_Stats(t *testing.T) {
	s := seed(t, map[string]any{"/t": map[string]any{
		"X":  map[string]any{"a": int64(1)},
		"D1": map[string]any{"base": "../X"},
		"D2": map[string]any{"base": "../X", "v": "js:value(../a)"},
	}})
	entries, stats, err := Flatten(context.Background(), s, "/t", scripted())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Nodes)
	assert.Equal(t, 4, stats.Resolved)
	assert.Equal(t, 6, stats.Emitted, "X is emitted for itself and for each derived node")
	assert.Equal(t, 1, stats.Deferred)
	assert.Equal(t, 1, stats.StoreReads)
	assert.Len(t, entries, 4)
}

func TestRelativize(t *testing.T) {
	got, err := relativize([]pathtree.Entry{
		{Key: "/t", Value: "root"},
		{Key: "/t/a", Value: int64(1)},
		{Key: "/t[]/000000000000000000", Value: "elem"},
	}, "/t")
	require.NoError(t, err)
	assert.Equal(t, []pathtree.Entry{
		{Key: "", Value: "root"},
		{Key: "/a", Value: int64(1)},
		{Key: "[]/000000000000000000", Value: "elem"},
	}, got)

	for _, key := range []string{"/other/x", "/tx", "/"} {
		_, err := relativize([]pathtree.Entry{{Key: "/t/a", Value: int64(1)}, {Key: key, Value: int64(2)}}, "/t")
		require.Error(t, err, key)
		assert.ErrorIs(t, err, api.ErrOutOfTree, key)

		var ae *api.Error
		require.True(t, errors.As(err, &ae), key)
		assert.Equal(t, key, ae.Path)
	}
}
