package models

import "math"

// Scene represents an ordered collection of data references plus the color,
// style, focus and environment directives a renderer applies to them.
// It is a thin view over a scene Payload.
type Scene struct {
	Payload
}

// AsScene wraps p. A nil payload yields a zero Scene.
func AsScene(p Payload) Scene {
	return Scene{Payload: p}
}

// Revision is the store-assigned revision, 0 if the scene was never stored.
func (s Scene) Revision() uint64 {
	return toUint(s.Payload["revision"])
}

// Data returns the scene's data entries in order. Entries may be full
// payloads or {id, object} stubs.
func (s Scene) Data() []Payload {
	return docs(s.Payload["data"])
}

// Colors returns the scene's color directives in order.
func (s Scene) Colors() []Payload {
	return docs(s.Payload["colors"])
}

// Styles returns the scene's style directives in order.
func (s Scene) Styles() []Payload {
	return docs(s.Payload["styles"])
}

// Focus returns the focus directive, or nil.
func (s Scene) Focus() Payload {
	return s.Doc("focus")
}

// Environment returns the environment directive, or nil.
func (s Scene) Environment() Payload {
	return s.Doc("environment")
}

// FocusPoint returns the focus xyz coordinate when one is set.
func FocusPoint(focus Payload) ([3]float64, bool) {
	var out [3]float64
	l, ok := AsList(focus["xyz"])
	if !ok {
		switch v := focus["xyz"].(type) {
		case []float64:
			l = make([]any, len(v))
			for i, f := range v {
				l[i] = f
			}
		default:
			return out, false
		}
	}
	if len(l) != 3 {
		return out, false
	}
	for i, v := range l {
		f, ok := toFloat(v)
		if !ok {
			return out, false
		}
		out[i] = f
	}
	return out, true
}

func docs(v any) []Payload {
	l, ok := AsList(v)
	if !ok {
		return nil
	}
	out := make([]Payload, 0, len(l))
	for _, e := range l {
		if d, ok := AsDoc(e); ok {
			out = append(out, d)
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toUint(v any) uint64 {
	f, ok := toFloat(v)
	if !ok || f < 0 || math.IsNaN(f) {
		return 0
	}
	return uint64(f)
}
