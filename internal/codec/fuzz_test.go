package codec

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/graph"
)

func FuzzRoundTrip(f *testing.F) {
	f.Add(`{"name": "foo", "value": 1, "ratio": 1.0}`)
	f.Add(`[[], {}, [null, true, false], "x"]`)
	f.Add(`{"a": {"b": {"c": [1, 2, {"d": "e"}]}}}`)
	f.Add(`"scalar"`)
	f.Add(`{"big": 18446744073709551615, "neg": -9223372036854775809}`)

	f.Fuzz(func(t *testing.T, data string) {
		doc, err := oj.ParseString(data)
		if err != nil {
			return // only documents are interesting
		}
		ctx := context.Background()
		s := graph.NewMemoryStore()
		if _, err := Write(ctx, s, "/fuzz", doc, api.Replace); err != nil {
			// Member names that cannot be node names and non-finite
			// numbers are rejected, never half-written.
			if s.Len() != 1 {
				t.Fatalf("failed write left %d nodes", s.Len())
			}
			return
		}
		got, err := Read(ctx, s, "/fuzz")
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if diff := cmp.Diff(stored(doc), got); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

// stored maps json.Number values to what the namespace keeps for them.
func stored(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stored(e)
		}
	case []any:
		for i, e := range x {
			x[i] = stored(e)
		}
	case json.Number:
		n, _ := numberValue(x)
		return n
	}
	return v
}
