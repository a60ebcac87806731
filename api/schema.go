package api

import (
	"encoding/json"
	"fmt"
	"math"
)

// Vocabulary is the reserved JSON vocabulary recognised while resolving
// templates. It is usually loaded from the --config file.
type Vocabulary struct {
	// BaseProperty names the member that declares inheritance.
	// Its value is a string or an array of strings (relative or absolute paths).
	BaseProperty string `json:"base_property,omitempty" yaml:"base_property,omitempty"`
	// DeleteMarker is the leading character that turns a member name into a
	// tombstone for an inherited member (e.g. "-b" removes "b").
	DeleteMarker string `json:"delete_marker,omitempty" yaml:"delete_marker,omitempty"`
	// ScriptPrefix enables the value()/path()/eval() mini-language for string
	// leaves of the form "<prefix>:func(args)". Empty disables scripts.
	ScriptPrefix string `json:"script_prefix,omitempty" yaml:"script_prefix,omitempty"`
}

// DefaultVocabulary returns the vocabulary used when no config is given.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		BaseProperty: "base",
		DeleteMarker: "-",
	}
}

// WithDefaults fills empty fields from DefaultVocabulary.
// ScriptPrefix is left alone: empty means scripts are off.
func (v Vocabulary) WithDefaults() Vocabulary {
	d := DefaultVocabulary()
	if v.BaseProperty == "" {
		v.BaseProperty = d.BaseProperty
	}
	if v.DeleteMarker == "" {
		v.DeleteMarker = d.DeleteMarker
	}
	return v
}

// Mode selects how a document is written into the namespace.
type Mode int

const (
	// Replace deletes the target subtree and recreates it from the document.
	Replace Mode = iota
	// Update overwrites existing nodes in place; null members delete.
	Update
	// Delete removes the target subtree and writes nothing.
	Delete
)

func (m Mode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Kind is the JSON value kind of a namespace node. The ordinals are part of
// the stored format and must not be renumbered.
type Kind int64

const (
	Undefined Kind = iota
	Object
	Array
	String
	Number
	True
	False
	Null
)

func (k Kind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Object:
		return "object"
	case Array:
		return "array"
	case String:
		return "string"
	case Number:
		return "number"
	case True:
		return "true"
	case False:
		return "false"
	case Null:
		return "null"
	}
	return fmt.Sprintf("Kind(%d)", int64(k))
}

// IsContainer reports whether values of this kind have members.
func (k Kind) IsContainer() bool {
	return k == Object || k == Array
}

// HasPayload reports whether a scalar of this kind stores its value in a
// separate payload node.
func (k Kind) HasPayload() bool {
	return k == String || k == Number
}

// KindOf classifies a decoded document value. Documents use the ojg
// representation: map[string]any, []any, string, int64, float64, bool, nil,
// and json.Number for integers beyond int64.
// The second result is true for numbers stored as float64: floats, uint64
// values above MaxInt64 and json.Number values that do not fit int64.
func KindOf(v any) (Kind, bool) {
	switch x := v.(type) {
	case nil:
		return Null, false
	case map[string]any:
		return Object, false
	case []any:
		return Array, false
	case string:
		return String, false
	case bool:
		if x {
			return True, false
		}
		return False, false
	case int64, int, int32, uint32:
		return Number, false
	case uint64:
		return Number, x > math.MaxInt64
	case float64, float32:
		return Number, true
	case json.Number:
		_, err := x.Int64()
		return Number, err != nil
	}
	return Undefined, false
}
