// Package byteutil provides small byte/hex helpers shared by the
// ledger, account, TXO and transaction-log packages.
package byteutil

import (
	"encoding/hex"
	"fmt"
)

// ToHex encodes b as a lowercase hex string with no prefix — the wire
// form for every content-addressed identifier in this service
// (account_id, txo_id, transaction_log_id, public keys, key images).
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// FromHex decodes a hex string with no prefix into bytes.
func FromHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return b, nil
}

// FromHexFixed decodes s and requires the result to be exactly n bytes,
// the shape every 32-byte identifier and key in this service takes.
func FromHexFixed(s string, n int) ([]byte, error) {
	b, err := FromHex(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}

// PadLeft pads b with zeros on the left until it reaches length.
func PadLeft(b []byte, length int) []byte {
	if len(b) >= length {
		return b
	}
	result := make([]byte, length)
	copy(result[length-len(b):], b)
	return result
}
