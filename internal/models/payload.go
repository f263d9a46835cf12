package models

import (
	"encoding/json"
	"fmt"
)

// Object kinds carried in the "object" field of every payload.
const (
	KindObject = "object"
	KindModel  = "model"
	KindMap    = "map"
	KindScene  = "scene"
)

// Payload is the nested key-value document exchanged between the scene server
// and its clients. Nested documents may be Payload or map[string]any (the
// latter after a JSON round trip); both are treated alike.
type Payload map[string]any

// ID returns the payload's id, or "" if it has none.
func (p Payload) ID() string {
	s, _ := p["id"].(string)
	return s
}

// Kind returns the payload's object tag.
func (p Payload) Kind() string {
	s, _ := p["object"].(string)
	return s
}

// Doc returns the nested document stored under key, or nil.
func (p Payload) Doc(key string) Payload {
	m, ok := AsDoc(p[key])
	if !ok {
		return nil
	}
	return m
}

// Lookup walks nested documents along path and returns the value found there.
func (p Payload) Lookup(path ...string) (any, bool) {
	var cur any = p
	for _, key := range path {
		m, ok := AsDoc(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string stored at path, or "" when absent or not a string.
func (p Payload) String(path ...string) string {
	v, _ := p.Lookup(path...)
	s, _ := v.(string)
	return s
}

// Set stores value at path, creating intermediate documents as needed.
func (p Payload) Set(value any, path ...string) {
	if len(path) == 0 {
		return
	}
	cur := p
	for _, key := range path[:len(path)-1] {
		next, ok := AsDoc(cur[key])
		if !ok {
			next = Payload{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return cloneValue(p).(Payload)
}

// Stub returns the {id, object} reference form of p.
func (p Payload) Stub() Payload {
	return Payload{"id": p.ID(), "object": p.Kind()}
}

// IsStub reports whether p only carries the {id, object} reference fields.
func (p Payload) IsStub() bool {
	for k := range p {
		if k != "id" && k != "object" {
			return false
		}
	}
	return true
}

// Decode converts an arbitrary JSON-shaped value into a Payload.
func Decode(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// AsDoc reports whether v is a nested document and returns it as a Payload.
func AsDoc(v any) (Payload, bool) {
	switch m := v.(type) {
	case Payload:
		return m, m != nil
	case map[string]any:
		return Payload(m), m != nil
	}
	return nil, false
}

// AsList reports whether v is a sequence and returns its elements.
func AsList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []Payload:
		out := make([]any, len(l))
		for i, p := range l {
			out[i] = p
		}
		return out, true
	}
	return nil, false
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Payload:
		out := make(Payload, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(Payload, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []Payload:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []float32:
		return append([]float32(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case []int:
		return append([]int(nil), t...)
	case []string:
		return append([]string(nil), t...)
	}
	return v
}
