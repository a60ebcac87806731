package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/agentic-research/nsjson/api"
)

const (
	// TagSize is the byte length of a stored type tag and of a numeric payload.
	TagSize = 8

	// FloatFlag is or-ed into a Number tag when the payload is a double.
	FloatFlag int64 = 0x10000

	// PayloadName is the reserved child holding a String or Number payload.
	PayloadName = "_"

	// IndexWidth is the zero-padded width of array element names, wide
	// enough that string order equals numeric order for any int64 index.
	IndexWidth = 18
)

// EncodeTag returns the stored type tag for a value kind.
func EncodeTag(k api.Kind, isFloat bool) []byte {
	v := int64(k)
	if k == api.Number && isFloat {
		v |= FloatFlag
	}
	buf := make([]byte, TagSize)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

// DecodeTag classifies a node from its data. Empty data (an ancestor
// created only to hold a subtree) reads as an Object.
func DecodeTag(data []byte) (api.Kind, bool, error) {
	if len(data) == 0 {
		return api.Object, false, nil
	}
	if len(data) != TagSize {
		return api.Undefined, false, fmt.Errorf("type tag: want %d bytes, got %d", TagSize, len(data))
	}
	v := int64(binary.LittleEndian.Uint64(data))
	isFloat := v&FloatFlag != 0
	k := api.Kind(v &^ FloatFlag)
	if k <= api.Undefined || k > api.Null {
		return api.Undefined, false, fmt.Errorf("type tag: unknown kind %d", v)
	}
	if isFloat && k != api.Number {
		return api.Undefined, false, fmt.Errorf("type tag: float flag on %s", k)
	}
	return k, isFloat, nil
}

// EncodePayload returns the payload bytes for a String or Number value.
func EncodePayload(v any) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return []byte(x), nil
	case float64:
		return putUint64(math.Float64bits(x)), nil
	case float32:
		return putUint64(math.Float64bits(float64(x))), nil
	case int64:
		return putUint64(uint64(x)), nil
	case int:
		return putUint64(uint64(int64(x))), nil
	case int32:
		return putUint64(uint64(int64(x))), nil
	case uint32:
		return putUint64(uint64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return putUint64(math.Float64bits(float64(x))), nil
		}
		return putUint64(x), nil
	case json.Number:
		n, err := numberValue(x)
		if err != nil {
			return nil, err
		}
		return EncodePayload(n)
	}
	return nil, fmt.Errorf("no payload for %T", v)
}

// numberValue maps n onto int64 when it fits and float64 otherwise, the same
// split api.KindOf makes for the float flag.
func numberValue(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("number %s: %w", n, err)
	}
	return f, nil
}

// finite reports whether a Number value is neither NaN nor infinite.
func finite(v any) bool {
	switch x := v.(type) {
	case float64:
		return !math.IsInf(x, 0) && !math.IsNaN(x)
	case float32:
		return finite(float64(x))
	case json.Number:
		n, err := numberValue(x)
		return err == nil && finite(n)
	}
	return true
}

func putUint64(v uint64) []byte {
	buf := make([]byte, TagSize)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// DecodePayload turns payload bytes back into a document value using the
// kind and float flag read from the tag.
func DecodePayload(k api.Kind, isFloat bool, data []byte) (any, error) {
	switch k {
	case api.String:
		return string(data), nil
	case api.Number:
		if len(data) != TagSize {
			return nil, fmt.Errorf("number payload: want %d bytes, got %d", TagSize, len(data))
		}
		bits := binary.LittleEndian.Uint64(data)
		if isFloat {
			return math.Float64frombits(bits), nil
		}
		return int64(bits), nil
	}
	return nil, fmt.Errorf("%s has no payload", k)
}

// ScalarValue returns the document value of a payload-less scalar kind.
func ScalarValue(k api.Kind) (any, bool) {
	switch k {
	case api.True:
		return true, true
	case api.False:
		return false, true
	case api.Null:
		return nil, true
	}
	return nil, false
}

// IndexName is the node name of array element i.
// E.g. 7 → "000000000000000007".
func IndexName(i int) string {
	s := strconv.Itoa(i)
	if len(s) >= IndexWidth {
		return s
	}
	b := make([]byte, IndexWidth)
	pad := IndexWidth - len(s)
	for j := 0; j < pad; j++ {
		b[j] = '0'
	}
	copy(b[pad:], s)
	return string(b)
}

// ParseIndex parses an element name or a plain decimal index.
func ParseIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return n, true
}
