package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/docio"
)

// cli runs commands against one SQLite namespace and an in-memory
// filesystem for document files.
type cli struct {
	t     *testing.T
	store string
	fs    billy.Filesystem
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	return &cli{
		t:     t,
		store: "sqlite:" + filepath.Join(t.TempDir(), "ns.db"),
		fs:    memfs.New(),
	}
}

func (c *cli) file(name, content string) {
	c.t.Helper()
	require.NoError(c.t, util.WriteFile(c.fs, name, []byte(content), 0o644))
}

func (c *cli) run(stdin string, args ...string) (string, string, error) {
	root := newRootCmd(&options{fs: c.fs})
	var out, errb bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errb)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--store", c.store}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errb.String(), err
}

func (c *cli) ok(stdin string, args ...string) (string, string) {
	c.t.Helper()
	out, errOut, err := c.run(stdin, args...)
	require.NoError(c.t, err, "nsjson %v: %s", args, errOut)
	return out, errOut
}

func parse(t *testing.T, s string) any {
	t.Helper()
	v, err := docio.Parse([]byte(s), docio.JSON)
	require.NoError(t, err)
	return v
}

func TestWriteRead(t *testing.T) {
	c := newCLI(t)
	c.file("svc.yaml", "name: api\nports: [80, 443]\nratio: 0.5\n")

	_, errOut := c.ok("", "write", "svc.yaml", "-p", "/services/api")
	assert.Contains(t, errOut, msgUpdated)

	want := map[string]any{"name": "api", "ports": []any{int64(80), int64(443)}, "ratio": 0.5}
	out, _ := c.ok("", "read", "-p", "/services/api")
	assert.Equal(t, want, parse(t, out))

	out, _ = c.ok("", "read", "-p", "/services", "--select", "$.api.ports[0]")
	assert.JSONEq(t, `[80]`, out)

	c.ok("", "read", "-p", "/services/api", "--yaml", "out.json")
	data, err := util.ReadFile(c.fs, "out.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: api")

	c.ok("", "read", "-p", "/services/api", "copy.json")
	got, err := docio.ReadFile(c.fs, "copy.json", nil)
	require.NoError(t, err)
	assert.Equal(t, any(want), got)
}

func TestReadWrite_KeepsWholeFloats(t *testing.T) {
	c := newCLI(t)
	c.ok(`{"ratio": 1.0, "n": 1}`, "write", "-p", "/f")

	out, _ := c.ok("", "read", "-p", "/f")
	assert.JSONEq(t, `{"n": 1, "ratio": 1.0}`, out)
	assert.Contains(t, out, `"ratio": 1.0`)

	c.ok(out, "write", "-p", "/g")
	again, _ := c.ok("", "read", "-p", "/g")
	assert.Equal(t, map[string]any{"n": int64(1), "ratio": 1.0}, parse(t, again))
}

func TestWrite_StdinAndUpdate(t *testing.T) {
	c := newCLI(t)
	c.ok(`{"a": 1, "b": {"c": true}, "list": [1]}`, "write", "-p", "/x")
	c.ok(`{"a": 2, "b": null}`, "write", "-", "-u", "-p", "/x")

	out, _ := c.ok("", "read", "-p", "/x")
	assert.Equal(t, map[string]any{"a": int64(2), "list": []any{int64(1)}}, parse(t, out))

	_, _, err := c.run(`{"list": [2]}`, "write", "-u", "-p", "/x")
	assert.ErrorIs(t, err, api.ErrCannotUpdateArray)
}

func TestWrite_DryRun(t *testing.T) {
	c := newCLI(t)
	c.ok(`{"a": 1}`, "write", "-p", "/d")

	out, _ := c.ok(`{"a": 2, "b": "new"}`, "write", "--dry-run", "-p", "/d")
	assert.Contains(t, out, "delete /d/a")
	assert.Contains(t, out, "create /d/b")
	assert.Contains(t, out, "@@")

	stored, _ := c.ok("", "read", "-p", "/d")
	assert.Equal(t, map[string]any{"a": int64(1)}, parse(t, stored), "dry run must not write")
}

func TestMissingSubtree(t *testing.T) {
	c := newCLI(t)
	for _, args := range [][]string{
		{"read", "-p", "/nope"},
		{"read", "-i", "-p", "/nope"},
		{"delete", "-p", "/nope"},
		{"digest", "-p", "/nope"},
	} {
		_, errOut, err := c.run("", args...)
		assert.ErrorIs(t, err, errReported, "%v", args)
		assert.Contains(t, errOut, msgNotExist, "%v", args)
	}
}

func TestDelete(t *testing.T) {
	c := newCLI(t)
	c.ok(`{"a": {"b": 1}}`, "write", "-p", "/del")
	_, errOut := c.ok("", "delete", "-p", "/del")
	assert.Contains(t, errOut, msgDeleted)

	_, _, err := c.run("", "read", "-p", "/del")
	assert.ErrorIs(t, err, errReported)
}

func TestReadIncremental(t *testing.T) {
	c := newCLI(t)
	c.ok(`{
		"common": {"host": "example.org", "port": 80, "url": "js:eval(http://value(../host):value(../port))"},
		"prod": {"base": "../common", "port": 443, "-host": null}
	}`, "write", "-p", "/tpl")

	_, _, err := c.run("", "read", "-i", "-p", "/tpl/prod", "--script-prefix", "js")
	assert.ErrorIs(t, err, api.ErrGetDataFailed, "url reads a deleted member")

	c.ok(`{"prod": {"-host": null}}`, "write", "-u", "-p", "/tpl")
	out, _ := c.ok("", "read", "-i", "-p", "/tpl/prod", "--script-prefix", "js")
	assert.Equal(t, map[string]any{
		"host": "example.org",
		"port": int64(443),
		"url":  "http://example.org:443",
	}, parse(t, out))

	out, _ = c.ok("", "read", "-i", "-p", "/tpl/prod")
	assert.Equal(t, "js:eval(http://value(../host):value(../port))", parse(t, out).(map[string]any)["url"])
}

func TestReadTemplateFile(t *testing.T) {
	c := newCLI(t)
	c.ok(`{"base": {"a": 1, "b": 2}}`, "write", "-p", "/tpl")
	c.file("site.jsonc", `{
		// derived from the stored base
		"base": "../base",
		"-a": null,
		"c": 3,
	}`)

	out, _ := c.ok("", "read", "--template-file", "site.jsonc", "-p", "/tpl/site")
	assert.Equal(t, map[string]any{"b": int64(2), "c": int64(3)}, parse(t, out))
}

func TestConfigVocabulary(t *testing.T) {
	c := newCLI(t)
	c.file("vocab.yaml", "base_property: extends\ndelete_marker: \"!\"\nscript_prefix: tmpl\n")
	c.ok(`{
		"X": {"a": 1, "b": 2},
		"D": {"extends": "../X", "!a": null, "c": "tmpl:value(../b)"}
	}`, "write", "-p", "/v")

	out, _ := c.ok("", "read", "-i", "--config", "vocab.yaml", "-p", "/v/D")
	assert.Equal(t, map[string]any{"b": int64(2), "c": int64(2)}, parse(t, out))
}

func TestPatch(t *testing.T) {
	c := newCLI(t)
	c.ok(`{"a": 1, "tags": ["x"]}`, "write", "-p", "/p")

	c.file("ops.yaml", "- op: add\n  path: /tags/-\n  value: zed\n- op: replace\n  path: /a\n  value: 2\n")
	_, errOut := c.ok("", "patch", "ops.yaml", "-p", "/p")
	assert.Contains(t, errOut, msgPatched)

	c.ok(`{"b": {"c": 1}, "a": null}`, "patch", "-", "--merge", "-p", "/p")
	out, _ := c.ok("", "read", "-p", "/p")
	assert.Equal(t, map[string]any{"tags": []any{"x", "zed"}, "b": map[string]any{"c": int64(1)}}, parse(t, out))
}

func TestDigest(t *testing.T) {
	c := newCLI(t)
	c.ok(`{"a": 1, "b": [true, null]}`, "write", "-p", "/one")
	c.ok(`{"b": [true, null], "a": 1}`, "write", "-p", "/two")

	one, _ := c.ok("", "digest", "-p", "/one")
	two, _ := c.ok("", "digest", "-p", "/two")
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}  /one\n$`), one)
	assert.Equal(t, strings.Fields(one)[0], strings.Fields(two)[0])
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := openStore(ctx, "mem:", 0, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NoError(t, closeFn())

	for _, url := range []string{"nope", "sqlite:", "etcd:localhost:2379", "zk:"} {
		_, _, err := openStore(ctx, url, 0, nil)
		assert.Error(t, err, url)
	}
}
