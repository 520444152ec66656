package b58

import (
	"testing"

	"github.com/duskledger/walletd/internal/walleterr"
)

func TestPublicAddressRoundtrip(t *testing.T) {
	addr := PublicAddress{
		ViewPublicKey:  []byte{1, 2, 3, 4},
		SpendPublicKey: []byte{5, 6, 7, 8},
	}
	s, err := EncodePublicAddress(addr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	typ, err := CheckType(s)
	if err != nil {
		t.Fatalf("check type: %v", err)
	}
	if typ != TypePublicAddress {
		t.Fatalf("expected TypePublicAddress, got %v", typ)
	}

	decoded, err := DecodePublicAddress(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded.ViewPublicKey) != string(addr.ViewPublicKey) {
		t.Fatal("view key mismatch")
	}
	if !VerifyAddress(s) {
		t.Fatal("expected address to verify")
	}
}

func TestWrongTypeRejected(t *testing.T) {
	addr := PublicAddress{ViewPublicKey: []byte{1}, SpendPublicKey: []byte{2}}
	s, err := EncodePublicAddress(addr)
	if err != nil {
		t.Fatal(err)
	}
	_, err = DecodePaymentRequest(s)
	if !walleterr.Is(err, walleterr.B58WrongType) {
		t.Fatalf("expected B58WrongType, got %v", err)
	}
}

func TestChecksumTamper(t *testing.T) {
	addr := PublicAddress{ViewPublicKey: []byte{1}, SpendPublicKey: []byte{2}}
	s, err := EncodePublicAddress(addr)
	if err != nil {
		t.Fatal(err)
	}
	tampered := s[:len(s)-1] + "x"
	if VerifyAddress(tampered) {
		t.Fatal("expected tampered address to fail verification")
	}
}

func TestGiftCodeRoundtrip(t *testing.T) {
	gc := GiftCode{RootEntropy: []byte{9, 9, 9}, TxoPublicKey: []byte{1, 1, 1}, Memo: "happy birthday"}
	s, err := EncodeGiftCode(gc)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeGiftCode(s)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Memo != gc.Memo {
		t.Fatalf("memo mismatch: %q != %q", decoded.Memo, gc.Memo)
	}
}

func TestPaymentRequestRoundtrip(t *testing.T) {
	req := PaymentRequest{
		Address: PublicAddress{ViewPublicKey: []byte{1}, SpendPublicKey: []byte{2}},
		Value:   1000,
		TokenID: 0,
	}
	s, err := EncodePaymentRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodePaymentRequest(s)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Value != req.Value {
		t.Fatalf("value mismatch: %d != %d", decoded.Value, req.Value)
	}
}
