package models

// Merge layers override on top of template and returns the result as a new
// document. Nested documents are merged key by key; on a leaf conflict the
// override wins. Neither argument is modified.
//
// Merge is the only way defaults are applied to a payload, and it is
// idempotent: Merge(t, Merge(t, x)) equals Merge(t, x).
func Merge(template, override Payload) Payload {
	out := template.Clone()
	if out == nil {
		out = Payload{}
	}
	mergeInto(out, override)
	return out
}

func mergeInto(dst, src Payload) {
	for key, value := range src {
		if sub, ok := AsDoc(value); ok {
			if cur, ok := AsDoc(dst[key]); ok {
				mergeInto(cur, sub)
				dst[key] = cur
				continue
			}
		}
		dst[key] = cloneValue(value)
	}
}
