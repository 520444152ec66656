package cryptoiface

import "testing"

func TestScalarPointRoundtrip(t *testing.T) {
	s := ScalarFromHash([]byte("seed"))
	p := ScalarBaseMul(s)

	decoded, err := NewPointFromBytes(p.Bytes())
	if err != nil {
		t.Fatalf("decode point: %v", err)
	}
	if !p.Equal(decoded) {
		t.Fatal("point roundtrip mismatch")
	}
}

func TestCommitmentsVerifySum(t *testing.T) {
	c := NewCommitments()
	b1 := ScalarFromHash([]byte("b1"))
	b2 := ScalarFromHash([]byte("b2"))
	bOut := b1.Add(b2)

	in1, err := c.Commit(700, 0, b1)
	if err != nil {
		t.Fatal(err)
	}
	in2, err := c.Commit(300, 0, b2)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Commit(990, 0, bOut)
	if err != nil {
		t.Fatal(err)
	}

	if !c.VerifySum([]*Commitment{in1, in2}, []*Commitment{out}, 10, 0) {
		t.Fatal("expected balanced commitment sum to verify")
	}
	if c.VerifySum([]*Commitment{in1, in2}, []*Commitment{out}, 11, 0) {
		t.Fatal("expected mismatched fee to fail verification")
	}
}

func TestRingSignRoundtrip(t *testing.T) {
	signer := NewRingSigner()
	message := []byte("transaction-hash")

	var ring []*Point
	var keys []*Scalar
	for i := 0; i < 5; i++ {
		k := ScalarFromHash([]byte("member"), encodeUint(uint64(i)))
		keys = append(keys, k)
		ring = append(ring, ScalarBaseMul(k))
	}

	realIndex := 2
	sig, err := signer.Sign(message, ring, realIndex, keys[realIndex])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !signer.Verify(message, ring, sig) {
		t.Fatal("expected ring signature to verify")
	}

	image, err := signer.KeyImage(keys[realIndex], ring[realIndex])
	if err != nil {
		t.Fatal(err)
	}
	if !bytesEqual(image, sig.KeyImage) {
		t.Fatal("key image mismatch between direct computation and signature")
	}

	sig.Rs[0][0] ^= 0xFF
	if signer.Verify(message, ring, sig) {
		t.Fatal("expected tampered signature to fail verification")
	}
}

func TestRangeProofVerify(t *testing.T) {
	c := NewCommitments()
	rp := NewRangeProver()

	b := ScalarFromHash([]byte("blind"))
	commit, err := c.Commit(42, 0, b)
	if err != nil {
		t.Fatal(err)
	}
	proof, err := rp.Prove([]uint64{42}, []*Scalar{b}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !rp.Verify([]*Commitment{commit}, proof, 0) {
		t.Fatal("expected range proof to verify")
	}
}

func TestMnemonicRoundtrip(t *testing.T) {
	m := NewMnemonic()

	phraseV2, err := m.Generate(2)
	if err != nil {
		t.Fatalf("generate v2: %v", err)
	}
	entropy, version, err := m.ToEntropy(phraseV2)
	if err != nil {
		t.Fatalf("decode v2: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
	if len(entropy) == 0 {
		t.Fatal("expected non-empty entropy")
	}

	viewKey, spendKey, err := m.ToAccountKey(entropy, version, 0)
	if err != nil {
		t.Fatalf("derive account key: %v", err)
	}
	if bytesEqual(viewKey.Bytes(), spendKey.Bytes()) {
		t.Fatal("expected distinct view and spend keys")
	}

	phraseV1, err := m.Generate(1)
	if err != nil {
		t.Fatalf("generate v1: %v", err)
	}
	_, version1, err := m.ToEntropy(phraseV1)
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	if version1 != 1 {
		t.Fatalf("expected version 1, got %d", version1)
	}
}
