package gpgkit

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/crypto/openpgp/armor" //nolint:staticcheck // armor framing only, no openpgp crypto
)

// ArmorType returns the block type of ASCII-armored data, for example
// "PGP PUBLIC KEY BLOCK" or "PGP SIGNATURE".
func ArmorType(data []byte) (string, error) {
	block, err := armor.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding armor: %w", err)
	}
	return block.Type, nil
}

// SameArmoredKey reports whether two armored blocks carry the same type and
// the same packets. Armor headers such as Version and Comment are ignored.
func SameArmoredKey(a, b []byte) (bool, error) {
	typeA, bodyA, err := dearmor(a)
	if err != nil {
		return false, err
	}
	typeB, bodyB, err := dearmor(b)
	if err != nil {
		return false, err
	}
	return typeA == typeB && bytes.Equal(bodyA, bodyB), nil
}

func dearmor(data []byte) (string, []byte, error) {
	block, err := armor.Decode(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("decoding armor: %w", err)
	}
	body, err := io.ReadAll(block.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading armored body: %w", err)
	}
	return block.Type, body, nil
}
