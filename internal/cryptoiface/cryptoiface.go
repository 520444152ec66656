// Package cryptoiface abstracts the ring-signature/commitment math the
// transaction builder and account scanner depend on, behind narrow
// interfaces. Concrete scalar/point arithmetic is supplied by
// filippo.io/edwards25519; the package never exposes raw curve types
// to callers outside this package.
package cryptoiface

import (
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

// Scalar is an opaque Ed25519 scalar (mod l), the base type every
// private key, blinding factor and signature component is built from.
type Scalar struct {
	s *edwards25519.Scalar
}

// Point is an opaque Ed25519 group element, the base type every public
// key, commitment and one-time output key is built from.
type Point struct {
	p *edwards25519.Point
}

// NewScalarFromBytes decodes a 32-byte little-endian scalar, reducing
// modulo l the way edwards25519.Scalar.SetUniformBytes expects.
func NewScalarFromBytes(b []byte) (*Scalar, error) {
	wide := make([]byte, 64)
	copy(wide, b)
	s, err := new(edwards25519.Scalar).SetUniformBytes(wide)
	if err != nil {
		return nil, fmt.Errorf("decode scalar: %w", err)
	}
	return &Scalar{s: s}, nil
}

// ScalarFromHash reduces an arbitrary-length digest into a scalar, the
// operation Hs() in the MLSAG literature — used to turn transaction
// hashes and shared secrets into challenge/blinding scalars.
func ScalarFromHash(data ...[]byte) *Scalar {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	sum := h.Sum(nil)
	s, err := new(edwards25519.Scalar).SetUniformBytes(sum)
	if err != nil {
		// SetUniformBytes only fails on a wrong-length input; sha512
		// always emits 64 bytes, so this path is unreachable.
		panic(fmt.Sprintf("cryptoiface: unreachable scalar reduction failure: %v", err))
	}
	return &Scalar{s: s}
}

// Bytes returns the canonical little-endian encoding of s.
func (s *Scalar) Bytes() []byte { return s.s.Bytes() }

// Add returns s + other mod l.
func (s *Scalar) Add(other *Scalar) *Scalar {
	return &Scalar{s: new(edwards25519.Scalar).Add(s.s, other.s)}
}

// Sub returns s - other mod l.
func (s *Scalar) Sub(other *Scalar) *Scalar {
	return &Scalar{s: new(edwards25519.Scalar).Subtract(s.s, other.s)}
}

// Mul returns s * other mod l.
func (s *Scalar) Mul(other *Scalar) *Scalar {
	return &Scalar{s: new(edwards25519.Scalar).Multiply(s.s, other.s)}
}

// NewPointFromBytes decodes a compressed 32-byte Ed25519 point.
func NewPointFromBytes(b []byte) (*Point, error) {
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("decode point: %w", err)
	}
	return &Point{p: p}, nil
}

// Bytes returns the compressed encoding of p.
func (p *Point) Bytes() []byte { return p.p.Bytes() }

// ScalarBaseMul returns s*G, the public key corresponding to private
// scalar s.
func ScalarBaseMul(s *Scalar) *Point {
	return &Point{p: new(edwards25519.Point).ScalarBaseMult(s.s)}
}

// ScalarMul returns s*p.
func ScalarMul(s *Scalar, p *Point) *Point {
	return &Point{p: new(edwards25519.Point).ScalarMult(s.s, p.p)}
}

// Add returns p + other.
func (p *Point) Add(other *Point) *Point {
	return &Point{p: new(edwards25519.Point).Add(p.p, other.p)}
}

// Equal reports whether p and other encode the same group element.
func (p *Point) Equal(other *Point) bool {
	return p.p.Equal(other.p) == 1
}

// Commitment is a Pedersen commitment to an (amount, token_id) pair:
// C = amount*H(token_id) + blinding*G. Hiding the amount is the point;
// the blinding factor is never persisted outside the owning account's
// encrypted TXO record.
type Commitment struct {
	Point *Point
}

// Commitments abstracts Pedersen-commitment construction and the
// homomorphic identity the conservation-of-value invariant relies on:
// sum(input commitments) == sum(output commitments) + fee*H(token_id).
type Commitments interface {
	// Commit builds C = amount*H(tokenID) + blinding*G.
	Commit(amount uint64, tokenID uint64, blinding *Scalar) (*Commitment, error)
	// VerifySum checks that inputs sum to outputs plus the fee commitment.
	VerifySum(inputs, outputs []*Commitment, fee uint64, tokenID uint64) bool
}

// RangeProof attests that a committed amount lies in [0, 2^64) without
// revealing it, preventing a negative-amount overflow attack on the
// conservation law.
type RangeProof struct {
	Proof []byte
}

// RangeProver abstracts range-proof construction/verification (e.g. an
// aggregated Bulletproof) over a set of output commitments.
type RangeProver interface {
	Prove(amounts []uint64, blindings []*Scalar, tokenID uint64) (*RangeProof, error)
	Verify(commitments []*Commitment, proof *RangeProof, tokenID uint64) bool
}

// RingSignature is an MLSAG signature over one ring of candidate
// inputs, proving knowledge of exactly one real input's spend key
// without revealing which, and binding a KeyImage that makes a second
// signature over the same real input's key detectable.
type RingSignature struct {
	KeyImage []byte
	C0       []byte
	Rs       [][]byte // per-ring-member response scalars
}

// RingSigner abstracts MLSAG ring construction/verification.
type RingSigner interface {
	// Sign produces a ring signature proving ownership of ring[realIndex]
	// without revealing realIndex.
	Sign(message []byte, ring []*Point, realIndex int, spendKey *Scalar) (*RingSignature, error)
	// Verify checks sig against ring and message.
	Verify(message []byte, ring []*Point, sig *RingSignature) bool
	// KeyImage computes the deterministic key image for a spend key,
	// the value the ledger indexes to detect a double spend.
	KeyImage(spendKey *Scalar, spendPublic *Point) ([]byte, error)
}

// Mnemonic abstracts account-key derivation from a recovery phrase.
// Version 1 predates BIP-39 adoption and derives directly from 32
// bytes of entropy; version 2 is a standard BIP-39 mnemonic. Both
// versions are supported indefinitely since existing accounts must
// remain importable.
type Mnemonic interface {
	// Generate returns a fresh phrase of the given version.
	Generate(version int) (string, error)
	// ToEntropy recovers the seed entropy backing phrase, identifying
	// which version produced it.
	ToEntropy(phrase string) (entropy []byte, version int, err error)
	// ToAccountKey derives the (view, spend) root scalar pair for
	// account index accountIndex from entropy.
	ToAccountKey(entropy []byte, version int, accountIndex uint32) (viewKey, spendKey *Scalar, err error)
}
