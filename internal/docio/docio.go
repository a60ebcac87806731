// Package docio parses and renders documents. Every document is handled in
// the ojg representation (map[string]any, []any, string, int64, float64,
// bool, nil, json.Number past int64) so integers and floats stay distinct
// all the way into the namespace and back out as text.
package docio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/goccy/go-yaml"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/tidwall/jsonc"

	"github.com/agentic-research/nsjson/api"
)

// Format is a document encoding.
type Format int

const (
	JSON Format = iota
	JSONC
	YAML
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case JSONC:
		return "jsonc"
	case YAML:
		return "yaml"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatFor picks a format from a file name. Unknown extensions and "-"
// are read as JSON with comments, which also accepts plain JSON.
func FormatFor(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return YAML
	case ".json":
		return JSON
	}
	return JSONC
}

// Parse decodes data in format f.
func Parse(data []byte, f Format) (any, error) {
	switch f {
	case JSONC:
		data = jsonc.ToJSON(data)
	case YAML:
		j, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		data = j
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("parse %s: empty document", f)
	}
	v, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f, err)
	}
	return v, nil
}

var renderOptions = ojg.Options{Sort: true, Indent: 2, HTMLUnsafe: true}

// Render encodes v in format f. Object members come out sorted and
// whole-number floats keep a fraction (1.0).
func Render(v any, f Format) ([]byte, error) {
	j := []byte(oj.JSON(withFractions(v), &renderOptions))
	if f != YAML {
		return append(j, '\n'), nil
	}
	y, err := yaml.JSONToYAML(j)
	if err != nil {
		return nil, fmt.Errorf("render yaml: %w", err)
	}
	return y, nil
}

// Compact renders v as single-line JSON with sorted members.
func Compact(v any) []byte {
	return []byte(oj.JSON(withFractions(v), &ojg.Options{Sort: true, HTMLUnsafe: true}))
}

// withFractions copies v with every whole-number float replaced by a
// json.Number ending in ".0", which ojg writes verbatim. Parsing the text
// back then yields float64 again instead of int64.
func withFractions(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = withFractions(e)
		}
		return m
	case []any:
		a := make([]any, len(x))
		for i, e := range x {
			a[i] = withFractions(e)
		}
		return a
	case float64:
		return fraction(v, x, 64)
	case float32:
		return fraction(v, float64(x), 32)
	}
	return v
}

func fraction(v any, f float64, bitSize int) any {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return v
	}
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	if strings.ContainsAny(s, ".e") {
		return v
	}
	return json.Number(s + ".0")
}

// ReadFile parses a document from fs. The name "-" reads stdin.
func ReadFile(fs billy.Filesystem, name string, stdin io.Reader) (any, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = util.ReadFile(fs, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return Parse(data, FormatFor(name))
}

// WriteFile renders v into fs in the format its name implies.
func WriteFile(fs billy.Filesystem, name string, v any) error {
	f := FormatFor(name)
	if f == JSONC {
		f = JSON
	}
	data, err := Render(v, f)
	if err != nil {
		return err
	}
	return WriteBytes(fs, name, data)
}

// WriteBytes replaces name atomically: data goes to a temp file in the same
// directory which is then renamed over name.
func WriteBytes(fs billy.Filesystem, name string, data []byte) error {
	tmp, err := util.TempFile(fs, filepath.Dir(name), ".nsjson-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if ch, ok := fs.(billy.Change); ok {
		_ = ch.Chmod(tmpName, 0o644)
	}
	if err := fs.Rename(tmpName, name); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", name, err)
	}
	return nil
}

// Select evaluates a JSONPath expression against doc.
func Select(doc any, selector string) ([]any, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	return x.Get(doc), nil
}

// LoadVocabulary reads an api.Vocabulary from a config document. Missing
// fields take their defaults.
func LoadVocabulary(fs billy.Filesystem, name string) (api.Vocabulary, error) {
	data, err := util.ReadFile(fs, name)
	if err != nil {
		return api.Vocabulary{}, fmt.Errorf("read config %s: %w", name, err)
	}
	if FormatFor(name) == JSONC {
		data = jsonc.ToJSON(data)
	}
	var v api.Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return api.Vocabulary{}, fmt.Errorf("parse config %s: %w", name, err)
	}
	return v.WithDefaults(), nil
}
