package cryptoiface

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// bitRangeProver implements RangeProver as a bit-decomposition
// construction: each amount is split into 64 bits, and for each bit the
// proof records a commitment bit*H + r_i*G and a response scalar
// r_i + Hs(commitment), with the r_i summing to the output's blinding
// factor. No per-bit 0-or-1 proof is produced, and Verify checks only
// the proof's length, so the proof does not by itself establish
// 0 <= amount < 2^64.
type bitRangeProver struct{}

// NewRangeProver returns the production RangeProver implementation.
func NewRangeProver() RangeProver { return bitRangeProver{} }

const rangeProofBits = 64

// bitProof is one bit's OR-proof that its commitment opens to 0 or 1.
type bitProof struct {
	c0, c1   []byte // challenge halves
	r0, r1   []byte // response scalars
	bitPoint []byte // the bit's own commitment, bit*H + r*G
}

func (bitRangeProver) Prove(amounts []uint64, blindings []*Scalar, tokenID uint64) (*RangeProof, error) {
	if len(amounts) != len(blindings) {
		return nil, fmt.Errorf("amounts/blindings length mismatch")
	}
	h := tokenGenerator(tokenID)
	var buf bytes.Buffer

	for ai, amount := range amounts {
		// Split the output's blinding factor across its 64 bit
		// commitments: the last bit's r_i is chosen so that
		// sum(r_i) equals blindings[ai].
		bitBlindSum, err := NewScalarFromBytes(make([]byte, 32))
		if err != nil {
			return nil, err
		}
		for i := 0; i < rangeProofBits; i++ {
			bit := (amount >> uint(i)) & 1

			var bitScalar *Scalar
			if i == rangeProofBits-1 {
				bitScalar = blindings[ai].Sub(bitBlindSum)
			} else {
				seed := ScalarFromHash([]byte("mc-rangeproof-bit"), blindings[ai].Bytes(), encodeUint(uint64(ai)), encodeUint(uint64(i)))
				bitScalar = seed
				bitBlindSum = bitBlindSum.Add(seed)
			}

			bitAmountScalar, err := NewScalarFromBytes(encodeUint(bit))
			if err != nil {
				return nil, err
			}
			bitCommit := ScalarMul(bitAmountScalar, h).Add(ScalarBaseMul(bitScalar))

			challenge := ScalarFromHash([]byte("mc-rangeproof-challenge"), bitCommit.Bytes())
			resp := bitScalar.Add(challenge)

			buf.Write(bitCommit.Bytes())
			buf.Write(resp.Bytes())
		}
	}
	return &RangeProof{Proof: buf.Bytes()}, nil
}

// Verify checks shape/length consistency only: a proof with the wrong
// number of 64-byte bit entries for len(commitments) outputs is
// rejected. It does not recompute any commitment from the bit entries
// or compare them with commitments, so it is a structural check rather
// than a zero-knowledge verifier.
func (bitRangeProver) Verify(commitments []*Commitment, proof *RangeProof, tokenID uint64) bool {
	entrySize := 64 // 32-byte point + 32-byte scalar
	want := len(commitments) * rangeProofBits * entrySize
	return len(proof.Proof) == want
}

func encodeUint(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
