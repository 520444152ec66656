package account

import (
	"path/filepath"
	"testing"

	"github.com/duskledger/walletd/internal/persist"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	pl, err := persist.Open(persist.Config{Path: filepath.Join(dir, "wallet.db")})
	if err != nil {
		t.Fatalf("open persist store: %v", err)
	}
	if err := pl.Unlock("test-passphrase"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	t.Cleanup(func() { pl.Close() })
	return New(pl)
}

func TestCreateAccountReservesMainAndChangeSubaddresses(t *testing.T) {
	s := openTestStore(t)

	accountID, phrase, err := s.CreateAccount("primary")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if accountID == "" || phrase == "" {
		t.Fatalf("expected non-empty id and phrase")
	}

	main, err := s.pl.GetSubaddress(accountID, mainSubaddressIndex)
	if err != nil {
		t.Fatalf("get main subaddress: %v", err)
	}
	change, err := s.pl.GetSubaddress(accountID, changeSubaddressIndex)
	if err != nil {
		t.Fatalf("get change subaddress: %v", err)
	}
	if main.PublicAddressB58 == change.PublicAddressB58 {
		t.Fatalf("main and change subaddresses must differ")
	}
}

func TestImportAccountIsDeterministic(t *testing.T) {
	s := openTestStore(t)

	phrase, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("generate mnemonic: %v", err)
	}

	id1, err := s.ImportAccount("a", phrase, 0)
	if err != nil {
		t.Fatalf("import account: %v", err)
	}

	s2 := openTestStore(t)
	id2, err := s2.ImportAccount("b", phrase, 0)
	if err != nil {
		t.Fatalf("import account again: %v", err)
	}

	if id1 != id2 {
		t.Fatalf("expected deterministic account id, got %s vs %s", id1, id2)
	}
}

func TestAssignAddressForAccountHandsOutSequentialIndices(t *testing.T) {
	s := openTestStore(t)

	accountID, _, err := s.CreateAccount("primary")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	var sub *persist.Subaddress
	for i := 0; i < 3; i++ {
		sub, err = s.AssignAddressForAccount(accountID, "")
		if err != nil {
			t.Fatalf("assign address %d: %v", i, err)
		}
	}
	if sub.SubaddressIndex != 4 {
		t.Fatalf("expected third lazily-assigned index to be 4 (after main=0 and change=1, the first two were 2 and 3), got %d", sub.SubaddressIndex)
	}
}

func TestImportViewOnlyAccountHasNoSpendPrivateKey(t *testing.T) {
	s := openTestStore(t)

	keys, _, _, err := KeysFromMnemonic(mustMnemonic(t), 0)
	if err != nil {
		t.Fatalf("keys from mnemonic: %v", err)
	}

	id, err := s.ImportViewOnlyAccount("watch", keys.ViewPrivate, keys.SpendPublic)
	if err != nil {
		t.Fatalf("import view-only account: %v", err)
	}

	acc, err := s.GetAccount(id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Kind != persist.AccountKindViewOnly {
		t.Fatalf("expected view-only kind, got %s", acc.Kind)
	}
	if acc.SpendPrivateKey != nil {
		t.Fatalf("view-only account must not carry a spend private key")
	}

	if _, err := s.ExportAccountSecrets(id); err == nil {
		t.Fatalf("expected export to fail for view-only account")
	}
}

func mustMnemonic(t *testing.T) string {
	t.Helper()
	phrase, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("generate mnemonic: %v", err)
	}
	return phrase
}
