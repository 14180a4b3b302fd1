// Package validation contains input validation helpers.
package validation

import "unicode"

// IsValidCPF reports whether s has the shape of a CPF: exactly 11
// digits. Check digits are deliberately not verified; the registry
// this service fronts accepts synthetic identifiers.
func IsValidCPF(s string) bool {
	if len(s) != 11 {
		return false
	}

	for _, ch := range s {
		if !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}
