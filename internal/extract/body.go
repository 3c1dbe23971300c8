package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Fields is the canonical key-value view of an inbound payload, whatever
// encoding it arrived in.
type Fields map[string]any

// BodyKind tells which decoder produced a Fields value.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyJSON
	BodyForm
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyForm:
		return "form"
	default:
		return "empty"
	}
}

// ParseBody decodes raw request bytes: JSON object first, then URL-encoded
// form. An empty body yields empty Fields. Only a form body with broken
// escapes is an error.
func ParseBody(raw []byte) (Fields, BodyKind, error) {
	if !utf8.Valid(raw) {
		raw = bytes.ToValidUTF8(raw, []byte("\uFFFD"))
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Fields{}, BodyEmpty, nil
	}

	if v, ok := decodeJSON(text); ok {
		if obj, isObj := v.(map[string]any); isObj {
			return Fields(obj), BodyJSON, nil
		}
		return Fields{}, BodyJSON, nil
	}

	values, err := url.ParseQuery(text)
	if err != nil {
		return nil, BodyForm, fmt.Errorf("malformed form body: %w", err)
	}
	out := make(Fields, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		out[k] = list
	}
	return out, BodyForm, nil
}

func decodeJSON(text string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return v, true
}

// Lookup returns the first value stored under keys that is not empty.
func (f Fields) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := f[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// String returns the first non-empty value under keys as text.
func (f Fields) String(keys ...string) string {
	v, ok := f.Lookup(keys...)
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Object returns the first value under keys that is an object or a JSON
// encoded object.
func (f Fields) Object(keys ...string) Fields {
	for _, k := range keys {
		switch v := f[k].(type) {
		case map[string]any:
			return Fields(v)
		case Fields:
			return v
		case string:
			if decoded, ok := decodeJSON(strings.TrimSpace(v)); ok {
				if obj, isObj := decoded.(map[string]any); isObj {
					return Fields(obj)
				}
			}
		}
	}
	return nil
}

// Keys lists the field names present.
func (f Fields) Keys() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	return out
}

// Stringify renders a decoded value the way it appeared on the wire.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
