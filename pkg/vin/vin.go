// Package vin provides VIN validation and vehicle-attribute decoding.
package vin

import "strings"

// Valid reports whether s is a well-formed VIN: exactly 17 characters
// from [A-HJ-NPR-Z0-9] (ISO 3779: the letters I, O and Q are excluded).
func Valid(s string) bool {
	if len(s) != 17 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
			if c == 'I' || c == 'O' || c == 'Q' {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Normalize trims and uppercases a candidate VIN. It does not validate.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
