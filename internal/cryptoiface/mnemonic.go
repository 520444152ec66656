package cryptoiface

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// bip39Mnemonic implements Mnemonic using tyler-smith/go-bip39 for
// version 2 phrases. Version 1 phrases are not BIP-39 at all — they
// are the legacy hex encoding of 32 raw entropy bytes that predates
// this service's adoption of BIP-39, kept importable via
// encodeVersion1/decodeVersion1.
type bip39Mnemonic struct{}

// NewMnemonic returns the production Mnemonic implementation.
func NewMnemonic() Mnemonic { return bip39Mnemonic{} }

func (bip39Mnemonic) Generate(version int) (string, error) {
	switch version {
	case 2:
		entropy := make([]byte, 32)
		if _, err := rand.Read(entropy); err != nil {
			return "", fmt.Errorf("generate entropy: %w", err)
		}
		phrase, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return "", fmt.Errorf("encode mnemonic: %w", err)
		}
		return phrase, nil
	case 1:
		entropy := make([]byte, 32)
		if _, err := rand.Read(entropy); err != nil {
			return "", fmt.Errorf("generate entropy: %w", err)
		}
		return encodeVersion1(entropy), nil
	default:
		return "", fmt.Errorf("unsupported mnemonic version %d", version)
	}
}

func (bip39Mnemonic) ToEntropy(phrase string) ([]byte, int, error) {
	if bip39.IsMnemonicValid(phrase) {
		entropy, err := bip39.EntropyFromMnemonic(phrase)
		if err != nil {
			return nil, 0, fmt.Errorf("decode bip39 mnemonic: %w", err)
		}
		return entropy, 2, nil
	}
	if entropy, ok := decodeVersion1(phrase); ok {
		return entropy, 1, nil
	}
	return nil, 0, fmt.Errorf("invalid mnemonic")
}

// ToAccountKey derives (view, spend) scalars deterministically from
// entropy, mixing in accountIndex so each BIP-44-style account index
// under the same entropy yields an independent key pair.
func (bip39Mnemonic) ToAccountKey(entropy []byte, version int, accountIndex uint32) (*Scalar, *Scalar, error) {
	if len(entropy) == 0 {
		return nil, nil, fmt.Errorf("empty entropy")
	}
	idx := make([]byte, 4)
	binary.LittleEndian.PutUint32(idx, accountIndex)

	viewSeed := sha512.Sum512(append(append([]byte("mc-view-v"), byte(version)), append(entropy, idx...)...))
	spendSeed := sha512.Sum512(append(append([]byte("mc-spend-v"), byte(version)), append(entropy, idx...)...))

	viewKey, err := NewScalarFromBytes(viewSeed[:32])
	if err != nil {
		return nil, nil, fmt.Errorf("derive view key: %w", err)
	}
	spendKey, err := NewScalarFromBytes(spendSeed[:32])
	if err != nil {
		return nil, nil, fmt.Errorf("derive spend key: %w", err)
	}
	return viewKey, spendKey, nil
}

// encodeVersion1/decodeVersion1 round-trip 32 bytes of raw entropy as
// plain hex, the service's legacy "root entropy" import format that
// predates BIP-39 adoption — it carries no wordlist checksum, so it is
// distinguished from a version-2 phrase by not being valid BIP-39.
func encodeVersion1(entropy []byte) string {
	return hex.EncodeToString(entropy)
}

func decodeVersion1(phrase string) ([]byte, bool) {
	entropy, err := hex.DecodeString(phrase)
	if err != nil || len(entropy) != 32 {
		return nil, false
	}
	return entropy, true
}
