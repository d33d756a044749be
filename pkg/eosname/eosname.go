// Package eosname encodes chain account names into their canonical 64-bit
// representation and derives the composite hexadecimal keys used for
// secondary-index range lookups on ledger tables.
package eosname

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

const (
	charmap = ".12345abcdefghijklmnopqrstuvwxyz"
	maxLen  = 12
)

var (
	// ErrNameTooLong is returned for identifiers longer than 12 characters.
	ErrNameTooLong = errors.New("name can be up to 12 characters long")
	// ErrInvalidCharacter is returned for characters outside the name alphabet.
	ErrInvalidCharacter = errors.New("invalid character in name")
)

// EncodeName returns the canonical numeric representation of a name as an
// unsigned decimal string. Names are packed 5 bits per character (the
// reserved 13th slot stays zero), then byte-reversed to little-endian.
func EncodeName(name string) (string, error) {
	v, err := encode(name)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(v, 10), nil
}

// BuildChecksumKey derives the 32-hex-character lower/upper bound for a
// three-field secondary index scan. Slot order is fixed by the ledger
// schema: [a][zero][b][c], each slot 8 uppercase hex characters.
func BuildChecksumKey(a, b, c string) (string, error) {
	ea, err := encode(a)
	if err != nil {
		return "", fmt.Errorf("encode %q: %w", a, err)
	}
	eb, err := encode(b)
	if err != nil {
		return "", fmt.Errorf("encode %q: %w", b, err)
	}
	ec, err := encode(c)
	if err != nil {
		return "", fmt.Errorf("encode %q: %w", c, err)
	}
	return fmt.Sprintf("%08X%08X%08X%08X", uint32(ea), 0, uint32(eb), uint32(ec)), nil
}

func encode(name string) (uint64, error) {
	if len(name) > maxLen {
		return 0, fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}

	var value uint64
	for i := 0; i < maxLen; i++ {
		var c int
		if i < len(name) {
			c = strings.IndexByte(charmap, name[i])
			if c < 0 {
				return 0, fmt.Errorf("%w: %q in %q", ErrInvalidCharacter, name[i], name)
			}
		}
		value = value<<5 | uint64(c)
	}
	// reserved 4-bit slot
	value <<= 4

	return bits.ReverseBytes64(value), nil
}
