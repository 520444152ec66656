package cryptoiface

import "encoding/binary"

// MaskedAmount is the wire-visible (value, token_id) pair after
// masking with a per-output shared secret — what actually appears in
// a TXO on the ledger. Recovering the plaintext requires the shared
// secret, which only the recipient's view key (or a ring member
// pretending to be the recipient) can derive.
type MaskedAmount struct {
	MaskedValue   uint64
	MaskedTokenID uint64
}

// AmountMasker abstracts masked-amount construction/recovery. Real
// implementations (e.g. a MobileCoin-style masked-amount scheme) use a
// keystream derived from the shared secret via a KDF; this package
// treats the exact KDF as an implementation detail behind the
// interface, matching how RingSigner/RangeProver are scoped.
type AmountMasker interface {
	Mask(value, tokenID uint64, sharedSecret *Point) MaskedAmount
	Unmask(masked MaskedAmount, sharedSecret *Point) (value, tokenID uint64)
}

type xorAmountMasker struct{}

// NewAmountMasker returns the production AmountMasker implementation.
func NewAmountMasker() AmountMasker { return xorAmountMasker{} }

func amountKeystream(sharedSecret *Point, domain string) uint64 {
	s := ScalarFromHash([]byte(domain), sharedSecret.Bytes())
	b := s.Bytes()
	return binary.LittleEndian.Uint64(b[:8])
}

func (xorAmountMasker) Mask(value, tokenID uint64, sharedSecret *Point) MaskedAmount {
	return MaskedAmount{
		MaskedValue:   value ^ amountKeystream(sharedSecret, "mc-amount-mask-value"),
		MaskedTokenID: tokenID ^ amountKeystream(sharedSecret, "mc-amount-mask-token"),
	}
}

func (xorAmountMasker) Unmask(masked MaskedAmount, sharedSecret *Point) (uint64, uint64) {
	value := masked.MaskedValue ^ amountKeystream(sharedSecret, "mc-amount-mask-value")
	tokenID := masked.MaskedTokenID ^ amountKeystream(sharedSecret, "mc-amount-mask-token")
	return value, tokenID
}
