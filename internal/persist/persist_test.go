package persist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/duskledger/walletd/internal/walleterr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{Path: filepath.Join(dir, "wallet.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAccountCreateGetList(t *testing.T) {
	s := openTestStore(t)

	acc := CreateAccountParams{
		Account: Account{
			AccountID:           "acc1",
			Name:                "primary",
			Kind:                AccountKindFull,
			ViewPublicKey:       []byte("view-pub"),
			SpendPublicKey:      []byte("spend-pub"),
			KeyDerivationVersion: 2,
			NextSubaddressIndex: 2,
			CreatedAt:           time.Now(),
		},
	}
	if err := s.InsertAccount(acc); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	if err := s.InsertAccount(acc); !walleterr.Is(err, walleterr.AccountAlreadyExists) {
		t.Fatalf("expected AccountAlreadyExists, got %v", err)
	}

	got, err := s.GetAccount("acc1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Name != "primary" || got.Kind != AccountKindFull {
		t.Fatalf("unexpected account: %+v", got)
	}

	if _, err := s.GetAccount("missing"); !walleterr.Is(err, walleterr.AccountNotFound) {
		t.Fatalf("expected AccountNotFound, got %v", err)
	}

	list, err := s.ListAccounts()
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 account, got %d", len(list))
	}
}

func TestReserveNextSubaddress(t *testing.T) {
	s := openTestStore(t)
	mustInsertAccount(t, s, "acc1")

	idx, err := s.ReserveNextSubaddress("acc1")
	if err != nil {
		t.Fatalf("reserve subaddress: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected first reservation to be 0, got %d", idx)
	}
	idx, err = s.ReserveNextSubaddress("acc1")
	if err != nil {
		t.Fatalf("reserve subaddress: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected second reservation to be 1, got %d", idx)
	}
}

func TestUnlockLockEncryptedEntropyRoundtrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.Unlock("correct horse"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	entropy := []byte("0123456789abcdef0123456789abcdef")
	err := s.InsertAccount(CreateAccountParams{
		Account: Account{
			AccountID:      "acc1",
			Name:           "primary",
			Kind:           AccountKindFull,
			ViewPublicKey:  []byte("vp"),
			SpendPublicKey: []byte("sp"),
			CreatedAt:      time.Now(),
		},
		RootEntropy: entropy,
	})
	if err != nil {
		t.Fatalf("insert account: %v", err)
	}

	got, err := s.ExportAccountSecrets("acc1")
	if err != nil {
		t.Fatalf("export secrets: %v", err)
	}
	if string(got) != string(entropy) {
		t.Fatalf("entropy mismatch: got %q want %q", got, entropy)
	}

	s.Lock()
	if _, err := s.ExportAccountSecrets("acc1"); !walleterr.Is(err, walleterr.DatabaseLocked) {
		t.Fatalf("expected DatabaseLocked after Lock, got %v", err)
	}
}

func TestExportAccountSecretsRejectsViewOnly(t *testing.T) {
	s := openTestStore(t)
	if err := s.Unlock("pw"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	err := s.InsertAccount(CreateAccountParams{
		Account: Account{
			AccountID:      "vo1",
			Name:           "view only",
			Kind:           AccountKindViewOnly,
			ViewPublicKey:  []byte("vp"),
			SpendPublicKey: []byte("sp"),
			CreatedAt:      time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("insert account: %v", err)
	}
	if _, err := s.ExportAccountSecrets("vo1"); !walleterr.Is(err, walleterr.ViewOnlyOperationNotPermitted) {
		t.Fatalf("expected ViewOnlyOperationNotPermitted, got %v", err)
	}
}

func TestTxoBalanceAndSpendable(t *testing.T) {
	s := openTestStore(t)
	mustInsertAccount(t, s, "acc1")

	block1 := uint64(10)
	for i, v := range []uint64{100, 50, 200} {
		err := s.InsertTxo(Txo{
			TxoID:      idFor(i),
			AccountID:  "acc1",
			PublicKey:  []byte(idFor(i)),
			TargetKey:  []byte(idFor(i)),
			Value:      v,
			TokenID:    0,
			BlockIndex: &block1,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			t.Fatalf("insert txo %d: %v", i, err)
		}
	}

	balances, err := s.BalancePerToken("acc1")
	if err != nil {
		t.Fatalf("balance per token: %v", err)
	}
	if balances[0] != 350 {
		t.Fatalf("expected balance 350, got %d", balances[0])
	}

	spendable, err := s.SpendableTxos("acc1", 0)
	if err != nil {
		t.Fatalf("spendable txos: %v", err)
	}
	if len(spendable) != 3 || spendable[0].Value != 200 {
		t.Fatalf("expected largest-first ordering, got %+v", spendable)
	}

	if err := s.MarkTxoSpent(idFor(0), 20); err != nil {
		t.Fatalf("mark txo spent: %v", err)
	}
	balances, err = s.BalancePerToken("acc1")
	if err != nil {
		t.Fatalf("balance per token after spend: %v", err)
	}
	if balances[0] != 250 {
		t.Fatalf("expected balance 250 after spend, got %d", balances[0])
	}
}

func TestTransactionLogLifecycle(t *testing.T) {
	s := openTestStore(t)
	mustInsertAccount(t, s, "acc1")

	now := time.Now()
	for _, id := range []string{"txo-in-1", "txo-out-1"} {
		if err := s.InsertTxo(Txo{TxoID: id, AccountID: "acc1", PublicKey: []byte(id), TargetKey: []byte(id), CreatedAt: now}); err != nil {
			t.Fatalf("insert txo %s: %v", id, err)
		}
	}
	err := s.InsertTransactionLog(TransactionLog{
		TransactionLogID:    "tl1",
		AccountID:           "acc1",
		TokenID:             0,
		Fee:                 400,
		TombstoneBlockIndex: 100,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, []string{"txo-in-1"}, []OutputLink{{TransactionLogID: "tl1", TxoID: "txo-out-1", IsChange: false}})
	if err != nil {
		t.Fatalf("insert transaction log: %v", err)
	}

	got, err := s.GetTransactionLog("tl1")
	if err != nil {
		t.Fatalf("get transaction log: %v", err)
	}
	if got.SubmittedBlockIndex != nil || got.FinalizedBlockIndex != nil || got.Failed {
		t.Fatalf("expected freshly built log, got %+v", got)
	}

	if err := s.MarkSubmitted("tl1", 50); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if err := s.MarkFinalized("tl1", 51); err != nil {
		t.Fatalf("mark finalized: %v", err)
	}

	got, err = s.GetTransactionLog("tl1")
	if err != nil {
		t.Fatalf("get transaction log: %v", err)
	}
	if got.SubmittedBlockIndex == nil || *got.SubmittedBlockIndex != 50 {
		t.Fatalf("expected submitted at 50, got %+v", got.SubmittedBlockIndex)
	}
	if got.FinalizedBlockIndex == nil || *got.FinalizedBlockIndex != 51 {
		t.Fatalf("expected finalized at 51, got %+v", got.FinalizedBlockIndex)
	}

	inputs, err := s.InputTxoIDs("tl1")
	if err != nil {
		t.Fatalf("input txo ids: %v", err)
	}
	if len(inputs) != 1 || inputs[0] != "txo-in-1" {
		t.Fatalf("unexpected inputs: %+v", inputs)
	}
}

func TestGiftCodeLifecycle(t *testing.T) {
	s := openTestStore(t)
	mustInsertAccount(t, s, "acc1")
	if err := s.InsertTxo(Txo{TxoID: "txo1", AccountID: "acc1", PublicKey: []byte("txo1"), TargetKey: []byte("txo1"), CreatedAt: time.Now()}); err != nil {
		t.Fatalf("insert txo: %v", err)
	}

	g := GiftCode{
		GiftCodeB58: "gc1",
		AccountID:   "acc1",
		TxoID:       "txo1",
		Value:       1000,
		TokenID:     0,
		CreatedAt:   time.Now(),
	}
	if err := s.InsertGiftCode(g); err != nil {
		t.Fatalf("insert gift code: %v", err)
	}
	if err := s.InsertGiftCode(g); !walleterr.Is(err, walleterr.GiftCodeAlreadyExists) {
		t.Fatalf("expected GiftCodeAlreadyExists, got %v", err)
	}

	got, err := s.GetGiftCode("gc1")
	if err != nil {
		t.Fatalf("get gift code: %v", err)
	}
	if got.ClaimedBlockIndex != nil {
		t.Fatalf("expected unclaimed gift code, got %+v", got)
	}

	if err := s.ClaimGiftCode("gc1", 42); err != nil {
		t.Fatalf("claim gift code: %v", err)
	}
	if err := s.ClaimGiftCode("gc1", 43); !walleterr.Is(err, walleterr.GiftCodeAlreadyClaimed) {
		t.Fatalf("expected GiftCodeAlreadyClaimed on second claim, got %v", err)
	}
}

func TestIdempotencyKeyReplay(t *testing.T) {
	s := openTestStore(t)

	if err := s.ReserveIdempotencyKey("key1", "tl1"); err != nil {
		t.Fatalf("reserve idempotency key: %v", err)
	}
	err := s.ReserveIdempotencyKey("key1", "tl2")
	if !walleterr.Is(err, walleterr.IdempotentReplay) {
		t.Fatalf("expected IdempotentReplay, got %v", err)
	}

	id, err := s.LookupIdempotencyKey("key1")
	if err != nil {
		t.Fatalf("lookup idempotency key: %v", err)
	}
	if id != "tl1" {
		t.Fatalf("expected tl1, got %s", id)
	}
}

func mustInsertAccount(t *testing.T, s *Store, accountID string) {
	t.Helper()
	err := s.InsertAccount(CreateAccountParams{
		Account: Account{
			AccountID:      accountID,
			Name:           accountID,
			Kind:           AccountKindFull,
			ViewPublicKey:  []byte("vp-" + accountID),
			SpendPublicKey: []byte("sp-" + accountID),
			CreatedAt:      time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("insert account %s: %v", accountID, err)
	}
}

func idFor(i int) string {
	return "txo-" + string(rune('a'+i))
}
