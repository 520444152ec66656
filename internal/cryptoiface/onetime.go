package cryptoiface

import (
	"crypto/rand"
	"crypto/sha256"
)

// RecoverSharedSecret computes the DH shared secret a->R for an
// account's view private key a and an output's published tx public
// key R. Because R = r*D (the sender derived it from the recipient
// subaddress's spend public key D, not from the base point), and the
// subaddress view public key is C = a*D, this equals r*C — the same
// point the sender used to mask the amount and derive the one-time
// target key — without the scanner needing to know which subaddress
// or r in advance.
func RecoverSharedSecret(viewPrivate *Scalar, txPublicKey *Point) *Point {
	return ScalarMul(viewPrivate, txPublicKey)
}

// OneTimeOutput is everything a sender computes for a single payment
// output: the published tx public key, the one-time target key the
// recipient's spend key can later sign for, and the shared secret used
// to mask the amount, compose memos and derive the confirmation number.
type OneTimeOutput struct {
	TxPublicKey *Point
	TargetKey   *Point
	SharedSecret *Point
}

// DeriveOneTimeOutput builds a fresh one-time output targeting a
// recipient subaddress identified by its (spend, view) public key
// pair, following the subaddress construction from account/subaddress.go
// run in reverse: R = r*D, shared = r*C, P = Hs(shared)*G + D.
func DeriveOneTimeOutput(subSpendPublic, subViewPublic *Point) (*OneTimeOutput, error) {
	r, err := randomScalar()
	if err != nil {
		return nil, err
	}
	txPublicKey := ScalarMul(r, subSpendPublic)
	sharedSecret := ScalarMul(r, subViewPublic)
	hs := ScalarFromHash([]byte("mc-onetime-key"), sharedSecret.Bytes())
	targetKey := ScalarBaseMul(hs).Add(subSpendPublic)
	return &OneTimeOutput{TxPublicKey: txPublicKey, TargetKey: targetKey, SharedSecret: sharedSecret}, nil
}

// MatchesSubaddress reports whether an output's target key was built
// for the given subaddress's spend public key, given the shared secret
// the recipient already recovered via RecoverSharedSecret. This is the
// per-candidate-index check the scanner runs during gap-limited
// subaddress matching.
func MatchesSubaddress(targetKey *Point, sharedSecret *Point, candidateSpendPublic *Point) bool {
	hs := ScalarFromHash([]byte("mc-onetime-key"), sharedSecret.Bytes())
	expected := ScalarBaseMul(hs).Add(candidateSpendPublic)
	return expected.Equal(targetKey)
}

// OneTimeSpendKey recovers the private key behind a one-time target
// key P = Hs(shared)*G + D for a subaddress whose spend private scalar
// is known: x = subaddressSpendPrivate + Hs(shared). Only meaningful
// for full accounts; view-only accounts never have subaddressSpendPrivate.
func OneTimeSpendKey(subaddressSpendPrivate *Scalar, sharedSecret *Point) *Scalar {
	hs := ScalarFromHash([]byte("mc-onetime-key"), sharedSecret.Bytes())
	return subaddressSpendPrivate.Add(hs)
}

func randomScalar() (*Scalar, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return NewScalarFromBytes(b)
}

// ConfirmationNumber derives the per-output proof the sender can show
// a counterparty to demonstrate authorship, without revealing the
// account's spend key: a hash of the shared secret and the TXO's
// target key. The recipient can recompute the same shared secret from
// the tx public key and its own view key, so it can verify a claimed
// confirmation number without the sender's cooperation.
func ConfirmationNumber(sharedSecret *Point, targetKey []byte) []byte {
	h := sha256.Sum256(append([]byte("mc-confirmation"), append(sharedSecret.Bytes(), targetKey...)...))
	return h[:]
}
