package models

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a content hash of p. Map keys are marshalled in sorted
// order, so equal documents hash equally regardless of construction order.
func Fingerprint(p Payload) string {
	if p == nil {
		return ""
	}
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}
