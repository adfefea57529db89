// Package asset handles asset identifier parsing and validation.
//
// An asset identifier is the address of an external fungible-token
// contract: "0x" followed by 40 hex characters. The all-zero address is
// a reserved sentinel for the platform's native asset.
package asset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Native is the reserved identifier for the platform's native asset.
const Native = "0x0000000000000000000000000000000000000000"

// addressRegex matches a 20-byte hex address with 0x prefix.
var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var (
	ErrInvalidAddress = errors.New("asset: invalid address format")
)

// Parse validates an asset identifier and returns its canonical
// (lowercase) form. The native sentinel parses like any other address.
func Parse(id string) (string, error) {
	if !addressRegex.MatchString(id) {
		return "", fmt.Errorf("%w: %q (expected 0x + 40 hex chars)", ErrInvalidAddress, id)
	}
	return strings.ToLower(id), nil
}

// IsNative reports whether id is the native-asset sentinel.
// The id must already be canonical (see Parse).
func IsNative(id string) bool {
	return id == Native
}
