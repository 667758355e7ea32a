// Package canonical provides RFC 8785 (JSON Canonicalization Scheme)
// compliant serialization for deterministic hashing of chain payloads.
//
// The integrity chain is only verifiable across versions because every
// hashed byte sequence goes through the same canonical form: map keys
// sorted lexicographically by UTF-8 bytes, no insignificant whitespace,
// no HTML escaping, non-ASCII characters preserved as-is.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Genesis is the sentinel used as "prev" in the hashed payload when the
// chain has no predecessor.
const Genesis = "GENESIS"

// Payload is the exact structure hashed for each submission. Field
// order in the canonical bytes is lexicographic regardless of struct
// order: data, id, prev, ts, type, vin.
type Payload struct {
	Data json.RawMessage `json:"data"`
	ID   int64           `json:"id"`
	Prev string          `json:"prev"`
	TS   string          `json:"ts"`
	Type string          `json:"type"`
	VIN  string          `json:"vin"`
}

// Marshal serializes v and transforms the result into RFC 8785
// canonical form.
func Marshal(v any) ([]byte, error) {
	intermediate, err := marshalNoHTMLEscape(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// Transform canonicalizes raw JSON bytes. It is idempotent: applying it
// to already-canonical bytes returns the same bytes.
func Transform(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// Hash returns the SHA-256 lowercase-hex digest of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashPayload computes the integrity hash for one chain payload.
func HashPayload(p Payload) (string, error) {
	return Hash(p)
}

// HashBytes computes the SHA-256 hash of raw bytes as lowercase hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// marshalNoHTMLEscape marshals without the <, >, & escaping that
// json.Marshal applies. jcs.Transform handles key order and number
// formatting; this keeps multi-byte characters byte-identical going in.
func marshalNoHTMLEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
