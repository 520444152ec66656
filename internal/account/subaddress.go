package account

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/duskledger/walletd/internal/cryptoiface"
)

// expanderParams is an arbitrary, fixed network-params object.
// hdkeychain.NewMaster only consults it for the version bytes it
// stamps into the serialized extended key, which this package never
// serializes or transmits — only the raw child key bytes are used, as
// a deterministic expansion of the account's view-private entropy into
// one subtree per subaddress index. No secp256k1 key material derived
// here is ever used as a signing key.
var expanderParams = &chaincfg.MainNetParams

// subaddressExpander turns an account's view-private scalar into an
// HD tree keyed by subaddress index, reusing hdkeychain's BIP-32
// child-derivation walk as a domain-specific entropy expander rather
// than for its native secp256k1 keys.
type subaddressExpander struct {
	master *hdkeychain.ExtendedKey
}

func newSubaddressExpander(viewPrivate *cryptoiface.Scalar) (*subaddressExpander, error) {
	seed := cryptoiface.ScalarFromHash([]byte("mc-subaddress-expander-seed"), viewPrivate.Bytes()).Bytes()
	// hdkeychain requires a 16-64 byte seed; a scalar is 32 bytes.
	master, err := hdkeychain.NewMaster(seed, expanderParams)
	if err != nil {
		return nil, fmt.Errorf("derive subaddress expander master key: %w", err)
	}
	return &subaddressExpander{master: master}, nil
}

// expand derives the 32-byte child entropy for one subaddress index.
// A u64 index is split into two hardened 32-bit derivation steps since
// hdkeychain's child indices are uint32.
func (e *subaddressExpander) expand(index uint64) ([]byte, error) {
	hi := uint32(index >> 32)
	lo := uint32(index)

	level1, err := e.master.Derive(hdkeychain.HardenedKeyStart + hi)
	if err != nil {
		return nil, fmt.Errorf("derive subaddress index high word: %w", err)
	}
	level2, err := level1.Derive(hdkeychain.HardenedKeyStart + lo)
	if err != nil {
		return nil, fmt.Errorf("derive subaddress index low word: %w", err)
	}
	raw, err := level2.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize subaddress child key: %w", err)
	}
	return raw, nil
}

// SubaddressKeys holds the derived key material for one subaddress.
type SubaddressKeys struct {
	Index       uint64
	SpendPublic *cryptoiface.Point
	ViewPublic  *cryptoiface.Point

	// SpendPrivate is populated only when deriving for a full account;
	// a view-only account can recognize but never spend from a
	// subaddress, so it has no use for this scalar.
	SpendPrivate *cryptoiface.Scalar
}

// DeriveSubaddress computes the spend/view key pair for subaddress
// index i of an account, following the CryptoNote-style subaddress
// construction: D_i = B + Hs(a, i)*G (recognizable spend key),
// C_i = a*D_i (recognizable view key), where a is the account's view
// private scalar and B its spend public key.
//
// spendPrivate is nil for view-only derivation; in that case the
// returned SubaddressKeys.SpendPrivate is also nil.
func DeriveSubaddress(viewPrivate *cryptoiface.Scalar, spendPublic *cryptoiface.Point, spendPrivate *cryptoiface.Scalar, index uint64) (*SubaddressKeys, error) {
	expander, err := newSubaddressExpander(viewPrivate)
	if err != nil {
		return nil, err
	}
	childEntropy, err := expander.expand(index)
	if err != nil {
		return nil, err
	}

	m := cryptoiface.ScalarFromHash([]byte("mc-subaddress-scalar"), childEntropy)

	subSpendPublic := spendPublic.Add(cryptoiface.ScalarBaseMul(m))
	subViewPublic := cryptoiface.ScalarMul(viewPrivate, subSpendPublic)

	keys := &SubaddressKeys{
		Index:       index,
		SpendPublic: subSpendPublic,
		ViewPublic:  subViewPublic,
	}
	if spendPrivate != nil {
		keys.SpendPrivate = spendPrivate.Add(m)
	}
	return keys, nil
}
