package vkapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"
	"github.com/tidwall/gjson"
)

var (
	ErrOddKeyValues      = errors.New("key/value parameter list has odd length")
	ErrInvalidParamKey   = errors.New("parameter key must be a string")
	ErrInvalidJSONParams = errors.New("parameters are not a json object")
)

// Params is any of the accepted parameter shapes of an API call. The set is
// closed: KeyValues, QueryString, RawMap, JSONObject, Struct and *Values.
type Params interface {
	isParams()
}

// KeyValues is a flat k1, v1, k2, v2 list. Keys must be strings.
type KeyValues []any

// QueryString is an url-encoded "a=1&b=2" string.
type QueryString string

// RawMap is emitted with its keys sorted.
type RawMap map[string]any

// JSONObject is a serialized JSON object whose top-level fields become parameters.
type JSONObject string

// Struct wraps a struct with `url:"..."` field tags.
type Struct struct {
	V any
}

func (KeyValues) isParams()   {}
func (QueryString) isParams() {}
func (RawMap) isParams()      {}
func (JSONObject) isParams()  {}
func (Struct) isParams()      {}
func (*Values) isParams()     {}

// P is shorthand for KeyValues.
func P(kv ...any) KeyValues {
	return kv
}

// Values is the canonical, insertion-ordered parameter map every Params
// variant is converted into before it is sent.
type Values struct {
	keys []string
	vals map[string]string
}

func NewValues() *Values {
	return &Values{vals: make(map[string]string)}
}

// Set replaces the value of an existing key in place or appends a new key.
func (v *Values) Set(key, value string) *Values {
	if _, ok := v.vals[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.vals[key] = value
	return v
}

func (v *Values) SetAny(key string, value any) *Values {
	return v.Set(key, formatValue(value))
}

func (v *Values) Get(key string) (string, bool) {
	if v == nil {
		return "", false
	}
	val, ok := v.vals[key]
	return val, ok
}

func (v *Values) Delete(key string) {
	if _, ok := v.vals[key]; !ok {
		return
	}
	delete(v.vals, key)
	v.keys = slices.DeleteFunc(v.keys, func(k string) bool { return k == key })
}

func (v *Values) Len() int {
	if v == nil {
		return 0
	}
	return len(v.keys)
}

func (v *Values) Keys() []string {
	if v == nil {
		return nil
	}
	return slices.Clone(v.keys)
}

func (v *Values) Clone() *Values {
	clone := NewValues()
	if v == nil {
		return clone
	}
	clone.keys = slices.Clone(v.keys)
	for key, val := range v.vals {
		clone.vals[key] = val
	}
	return clone
}

// Merge copies every key of other into v, other's values winning.
func (v *Values) Merge(other *Values) *Values {
	for _, key := range other.Keys() {
		val, _ := other.Get(key)
		v.Set(key, val)
	}
	return v
}

// Encode returns the form encoding in insertion order.
func (v *Values) Encode() string {
	if v.Len() == 0 {
		return ""
	}
	var buf strings.Builder
	for i, key := range v.keys {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(key))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(v.vals[key]))
	}
	return buf.String()
}

// MarshalJSON encodes the values as a JSON object with string values, in
// insertion order. This is the argument form used inside execute code.
func (v *Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range v.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(v.vals[key])
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v *Values) String() string {
	return v.Encode()
}

// ToValues converts any Params variant into a fresh Values. A nil Params
// yields an empty Values.
func ToValues(params Params) (*Values, error) {
	out := NewValues()
	switch typed := params.(type) {
	case nil:
	case *Values:
		if typed != nil {
			out = typed.Clone()
		}
	case KeyValues:
		if len(typed)%2 != 0 {
			return nil, fmt.Errorf("%w (%d items)", ErrOddKeyValues, len(typed))
		}
		for i := 0; i < len(typed); i += 2 {
			key, ok := typed[i].(string)
			if !ok {
				return nil, fmt.Errorf("%w: got %T at index %d", ErrInvalidParamKey, typed[i], i)
			}
			out.SetAny(key, typed[i+1])
		}
	case QueryString:
		parsed, err := url.ParseQuery(strings.TrimPrefix(string(typed), "?"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse query string params: %w", err)
		}
		for _, key := range sortedKeys(parsed) {
			out.Set(key, strings.Join(parsed[key], ","))
		}
	case RawMap:
		for _, key := range sortedKeys(typed) {
			out.SetAny(key, typed[key])
		}
	case JSONObject:
		parsed := gjson.Parse(string(typed))
		if !parsed.IsObject() {
			return nil, ErrInvalidJSONParams
		}
		parsed.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.JSON {
				out.Set(key.String(), value.Raw)
			} else {
				out.Set(key.String(), value.String())
			}
			return true
		})
	case Struct:
		encoded, err := query.Values(typed.V)
		if err != nil {
			return nil, fmt.Errorf("failed to encode struct params: %w", err)
		}
		for _, key := range sortedKeys(encoded) {
			out.Set(key, strings.Join(encoded[key], ","))
		}
	default:
		return nil, fmt.Errorf("unsupported params type %T", params)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case bool:
		if typed {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(typed)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.RawMessage:
		return string(typed)
	case fmt.Stringer:
		return typed.String()
	case []string:
		return strings.Join(typed, ",")
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = formatValue(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}
