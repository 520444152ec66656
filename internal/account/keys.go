// Package account implements the Account Store: account and
// subaddress key derivation, creation, import, and lifecycle, layered
// on top of internal/persist's raw account rows.
package account

import (
	"github.com/duskledger/walletd/internal/cryptoiface"
)

// Keys holds the root view/spend key pair for one account. SpendPrivate
// is nil for a view-only account.
type Keys struct {
	ViewPrivate  *cryptoiface.Scalar
	ViewPublic   *cryptoiface.Point
	SpendPrivate *cryptoiface.Scalar
	SpendPublic  *cryptoiface.Point
}

var mnemonic = cryptoiface.NewMnemonic()

// GenerateMnemonic returns a fresh recovery phrase. version 2 produces
// a BIP-39 phrase; version 1 exists only for importing pre-BIP-39
// accounts and is never offered for new account creation.
func GenerateMnemonic() (string, error) {
	return mnemonic.Generate(2)
}

// KeysFromMnemonic recovers the root key pair for accountIndex from a
// recovery phrase of either supported version, along with the raw
// entropy and version the phrase decoded to (so a caller creating an
// account can seal that entropy without re-decoding the phrase).
func KeysFromMnemonic(phrase string, accountIndex uint32) (keys *Keys, entropy []byte, version int, err error) {
	entropy, version, err = mnemonic.ToEntropy(phrase)
	if err != nil {
		return nil, nil, 0, err
	}
	keys, err = keysFromEntropy(entropy, version, accountIndex)
	if err != nil {
		return nil, nil, 0, err
	}
	return keys, entropy, version, nil
}

// KeysFromLegacyEntropy recovers the root key pair from raw version-1,
// 32-byte root entropy (the pre-mnemonic import path).
func KeysFromLegacyEntropy(entropy []byte, accountIndex uint32) (*Keys, error) {
	return keysFromEntropy(entropy, 1, accountIndex)
}

// KeysFromEntropyAndVersion recovers a root key pair directly from
// already-decoded entropy and its derivation version, skipping the
// phrase-decoding step — the path a gift code's claim operation uses
// since it stores the ephemeral account's raw entropy in the B58
// payload rather than a re-encoded mnemonic phrase.
func KeysFromEntropyAndVersion(entropy []byte, version int, accountIndex uint32) (*Keys, error) {
	return keysFromEntropy(entropy, version, accountIndex)
}

func keysFromEntropy(entropy []byte, version int, accountIndex uint32) (*Keys, error) {
	viewScalar, spendScalar, err := mnemonic.ToAccountKey(entropy, version, accountIndex)
	if err != nil {
		return nil, err
	}
	return &Keys{
		ViewPrivate:  viewScalar,
		ViewPublic:   cryptoiface.ScalarBaseMul(viewScalar),
		SpendPrivate: spendScalar,
		SpendPublic:  cryptoiface.ScalarBaseMul(spendScalar),
	}, nil
}

// ViewOnlyKeys holds the key material a view-only account possesses:
// the full view private key, but only the spend account's public key.
type ViewOnlyKeys struct {
	ViewPrivate *cryptoiface.Scalar
	ViewPublic  *cryptoiface.Point
	SpendPublic *cryptoiface.Point
}

// ViewOnly projects a full key pair down to its view-only counterpart,
// the material shared with a watch-only signer co-process.
func (k *Keys) ViewOnly() *ViewOnlyKeys {
	return &ViewOnlyKeys{
		ViewPrivate: k.ViewPrivate,
		ViewPublic:  k.ViewPublic,
		SpendPublic: k.SpendPublic,
	}
}
