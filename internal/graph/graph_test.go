package graph

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_RootAlwaysExists(t *testing.T) {
	store := NewMemoryStore()

	ok, err := store.Exists(context.Background(), "/")
	if err != nil {
		t.Fatalf("Exists(/) returned error: %v", err)
	}
	if !ok {
		t.Error("root should exist in a fresh store")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestMemoryStore_GetNodeNormalizesSlashes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, "/foo", []byte("x")); err != nil {
		t.Fatal(err)
	}

	node, err := store.GetNode("foo//")
	if err != nil {
		t.Fatalf("GetNode(foo//) should resolve to /foo: %v", err)
	}
	if node.ID != "/foo" {
		t.Errorf("ID = %q, want %q", node.ID, "/foo")
	}
}

func TestMemoryStore_GetNodeNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetNode("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ReturnedDataIsACopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, "/a", []byte("abc")); err != nil {
		t.Fatal(err)
	}

	data, err := store.GetData(ctx, "/a")
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 'z'

	again, _ := store.GetData(ctx, "/a")
	if string(again) != "abc" {
		t.Errorf("stored data mutated through returned slice: %q", again)
	}
}

func TestMemoryStore_SetDataBumpsVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, "/a", nil); err != nil {
		t.Fatal(err)
	}
	if err := store.SetData(ctx, "/a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := store.SetData(ctx, "/a", []byte("2")); err != nil {
		t.Fatal(err)
	}

	node, err := store.GetNode("/a")
	if err != nil {
		t.Fatal(err)
	}
	if node.Version != 2 {
		t.Errorf("Version = %d, want 2", node.Version)
	}
}

func TestMemoryStore_MultiHonoursCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Multi(ctx, []Op{CreateOp("/a", nil)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ok, _ := store.Exists(context.Background(), "/a"); ok {
		t.Error("no op should be applied after cancellation")
	}
}

func TestCanonical(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"a":       "/a",
		"/a//b/":  "/a/b",
		"//x///y": "/x/y",
	}
	for in, want := range cases {
		got, err := Canonical(in)
		if err != nil {
			t.Errorf("Canonical(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Canonical(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := Canonical("/a/../b"); !errors.Is(err, ErrBadPath) {
		t.Errorf("Canonical with .. should fail, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		from, ref, want string
	}{
		{"/t/derived", "../X", "/t/X"},
		{"/t/derived", "X", "/t/derived/X"},
		{"/t/derived", ".", "/t/derived"},
		{"/t/derived", "/abs/path", "/abs/path"},
		{"/a", "../../..", "/"},
		{"/a/b/leaf", "../sibling", "/a/b/sibling"},
	}
	for _, c := range cases {
		if got := Resolve(c.from, c.ref); got != c.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", c.from, c.ref, got, c.want)
		}
	}
}

func TestPathHelpers(t *testing.T) {
	if got := Parent("/a/b"); got != "/a" {
		t.Errorf("Parent = %q", got)
	}
	if got := Parent("/a"); got != "/" {
		t.Errorf("Parent(/a) = %q", got)
	}
	if got := Base("/a/b"); got != "b" {
		t.Errorf("Base = %q", got)
	}
	if got := Join("/", "x"); got != "/x" {
		t.Errorf("Join(/, x) = %q", got)
	}
	if !Within("/a", "/a/b") || Within("/a", "/ab") || !Within("/", "/x") {
		t.Error("Within boundary handling is wrong")
	}
	anc := Ancestors("/a/b/c")
	if len(anc) != 2 || anc[0] != "/a" || anc[1] != "/a/b" {
		t.Errorf("Ancestors = %v", anc)
	}
	for _, bad := range []string{"", ".", "..", "a/b"} {
		if ValidName(bad) == nil {
			t.Errorf("ValidName(%q) should fail", bad)
		}
	}
	if err := ValidName("_"); err != nil {
		t.Errorf("ValidName(_) = %v", err)
	}
}
