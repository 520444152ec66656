package signer

import (
	"encoding/json"
	"testing"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/txbuilder"
)

func TestCreateAccountIsDeterministicID(t *testing.T) {
	s := New()
	created, err := s.CreateAccount("offline")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if created.AccountID == "" {
		t.Fatal("expected non-empty account id")
	}

	reg, err := s.lookup(created.AccountID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	wantID := account.DeriveAccountID(reg.keys.ViewPublic.Bytes(), reg.keys.SpendPublic.Bytes())
	if wantID != created.AccountID {
		t.Fatalf("account id mismatch: got %s want %s", created.AccountID, wantID)
	}
}

func TestViewOnlyImportPackageOmitsSpendPrivateKey(t *testing.T) {
	s := New()
	created, err := s.CreateAccount("offline")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	pkg, err := s.ViewOnlyImportPackage(created.AccountID, "watch-only")
	if err != nil {
		t.Fatalf("ViewOnlyImportPackage: %v", err)
	}
	if pkg.Method != "import_view_only_account" {
		t.Fatalf("unexpected method %q", pkg.Method)
	}
	if _, ok := pkg.Params["spend_private_key"]; ok {
		t.Fatal("view-only import package must never carry a spend private key")
	}
	if pkg.Params["view_private_key"] == "" {
		t.Fatal("expected view private key in import package")
	}
}

func TestGenerateSubaddressesRange(t *testing.T) {
	s := New()
	created, err := s.CreateAccount("offline")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	subs, err := s.GenerateSubaddresses(created.AccountID, 2, 4)
	if err != nil {
		t.Fatalf("GenerateSubaddresses: %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("expected 3 subaddresses, got %d", len(subs))
	}
	for i, sub := range subs {
		if sub.Index != uint64(2+i) {
			t.Fatalf("subaddress %d has index %d", i, sub.Index)
		}
		if sub.PublicAddressB58 == "" {
			t.Fatal("expected non-empty encoded address")
		}
	}
}

func TestGenerateSubaddressesRejectsInvertedRange(t *testing.T) {
	s := New()
	created, err := s.CreateAccount("offline")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, err := s.GenerateSubaddresses(created.AccountID, 5, 1); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestSignTransactionCompletesUnsignedProposal(t *testing.T) {
	s := New()
	created, err := s.CreateAccount("offline")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	reg, err := s.lookup(created.AccountID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	ring := []*cryptoiface.Point{reg.keys.SpendPublic, cryptoiface.ScalarBaseMul(mustScalar(t))}
	var ringBytes [][]byte
	for _, p := range ring {
		ringBytes = append(ringBytes, p.Bytes())
	}

	unsigned := txbuilder.UnsignedTransaction{
		ProposalID: "test-proposal",
		Fee:        10,
		TokenID:    0,
		Inputs: []txbuilder.UnsignedInput{
			{
				SubaddressIndex: 0,
				SharedSecret:    reg.keys.ViewPublic.Bytes(),
				RingMembers:     ringBytes,
				RealIndex:       0,
			},
		},
	}
	raw, err := json.Marshal(unsigned)
	if err != nil {
		t.Fatalf("marshal unsigned: %v", err)
	}

	signed, err := s.SignTransaction(created.AccountID, raw)
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}
	if len(signed) == 0 {
		t.Fatal("expected non-empty signed transaction")
	}
}

func TestSignTransactionRejectsUnknownAccount(t *testing.T) {
	s := New()
	if _, err := s.SignTransaction("nonexistent", []byte("{}")); err == nil {
		t.Fatal("expected error for unregistered account")
	}
}

func mustScalar(t *testing.T) *cryptoiface.Scalar {
	t.Helper()
	b := make([]byte, 32)
	b[0] = 7
	sc, err := cryptoiface.NewScalarFromBytes(b)
	if err != nil {
		t.Fatalf("NewScalarFromBytes: %v", err)
	}
	return sc
}
