package txlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/duskledger/walletd/internal/persist"
)

func TestDeriveStatusTable(t *testing.T) {
	submitted := uint64(5)
	finalized := uint64(6)

	cases := []struct {
		name string
		t    *persist.TransactionLog
		want Status
	}{
		{"built: nothing set", &persist.TransactionLog{}, StatusBuilt},
		{"pending: submitted only", &persist.TransactionLog{SubmittedBlockIndex: &submitted}, StatusPending},
		{"succeeded: finalized wins over submitted", &persist.TransactionLog{SubmittedBlockIndex: &submitted, FinalizedBlockIndex: &finalized}, StatusSucceeded},
		{"failed wins over everything", &persist.TransactionLog{SubmittedBlockIndex: &submitted, FinalizedBlockIndex: &finalized, Failed: true}, StatusFailed},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Derive(c.t)
			if got != c.want {
				t.Fatalf("Derive() = %s, want %s", got, c.want)
			}
		})
	}
}

func openTestStore(t *testing.T) *persist.Store {
	t.Helper()
	dir := t.TempDir()
	pl, err := persist.Open(persist.Config{Path: filepath.Join(dir, "wallet.db")})
	if err != nil {
		t.Fatalf("open persist store: %v", err)
	}
	t.Cleanup(func() { pl.Close() })
	if err := pl.Unlock("test-passphrase"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	// transaction_logs.account_id references accounts, so the logs below
	// need their owning account row first.
	if err := pl.InsertAccount(persist.CreateAccountParams{Account: persist.Account{
		AccountID:      "acct-1",
		Name:           "primary",
		Kind:           persist.AccountKindFull,
		ViewPublicKey:  []byte("vp"),
		SpendPublicKey: []byte("sp"),
		CreatedAt:      time.Now(),
	}}); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	return pl
}

func TestStoreRoundTripsLogAndLinks(t *testing.T) {
	pl := openTestStore(t)
	tls := New(pl)

	now := time.Unix(1700000000, 0)
	log := persist.TransactionLog{
		TransactionLogID:    "log-1",
		AccountID:           "acct-1",
		TokenID:             0,
		Fee:                 400,
		TombstoneBlockIndex: 100,
		Comment:             "test transfer",
		RawTransaction:      []byte("raw-bytes"),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	// The input/output link tables reference txos, so every linked TXO
	// must exist before the log is inserted.
	for _, id := range []string{"txo-in-1", "txo-in-2", "txo-out-1", "txo-out-2"} {
		if err := pl.InsertTxo(persist.Txo{TxoID: id, AccountID: "acct-1", PublicKey: []byte(id), TargetKey: []byte(id), CreatedAt: now}); err != nil {
			t.Fatalf("insert txo %s: %v", id, err)
		}
	}
	inputs := []string{"txo-in-1", "txo-in-2"}
	outputs := []persist.OutputLink{
		{TransactionLogID: "log-1", TxoID: "txo-out-1", RecipientPublicAddressB58: "addr-recipient", IsChange: false, ConfirmationNumber: []byte("conf")},
		{TransactionLogID: "log-1", TxoID: "txo-out-2", RecipientPublicAddressB58: "addr-change", IsChange: true},
	}
	if err := pl.InsertTransactionLog(log, inputs, outputs); err != nil {
		t.Fatalf("insert transaction log: %v", err)
	}

	got, err := tls.Get("log-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusBuilt {
		t.Fatalf("expected freshly inserted log to be Built, got %s", got.Status)
	}
	if got.Fee != 400 || got.TombstoneBlockIndex != 100 {
		t.Fatalf("unexpected round-tripped fields: %+v", got.TransactionLog)
	}

	gotInputs, err := tls.InputTxoIDs("log-1")
	if err != nil {
		t.Fatalf("input txo ids: %v", err)
	}
	if len(gotInputs) != 2 {
		t.Fatalf("expected 2 input txo ids, got %d", len(gotInputs))
	}

	gotOutputs, err := tls.OutputLinks("log-1")
	if err != nil {
		t.Fatalf("output links: %v", err)
	}
	if len(gotOutputs) != 2 {
		t.Fatalf("expected 2 output links, got %d", len(gotOutputs))
	}
	var sawChange bool
	for _, o := range gotOutputs {
		if o.IsChange {
			sawChange = true
		}
	}
	if !sawChange {
		t.Fatalf("expected one output link marked as change")
	}

	if err := pl.MarkSubmitted("log-1", 150); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	got, err = tls.Get("log-1")
	if err != nil {
		t.Fatalf("get after submit: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("expected Pending after submit, got %s", got.Status)
	}

	if err := pl.MarkFinalized("log-1", 151); err != nil {
		t.Fatalf("mark finalized: %v", err)
	}
	got, err = tls.Get("log-1")
	if err != nil {
		t.Fatalf("get after finalize: %v", err)
	}
	if got.Status != StatusSucceeded {
		t.Fatalf("expected Succeeded after finalize, got %s", got.Status)
	}
}

func TestStoreMarkFailedOverridesSubmitted(t *testing.T) {
	pl := openTestStore(t)
	tls := New(pl)

	now := time.Unix(1700000000, 0)
	log := persist.TransactionLog{
		TransactionLogID:    "log-2",
		AccountID:           "acct-1",
		TombstoneBlockIndex: 50,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := pl.InsertTransactionLog(log, nil, nil); err != nil {
		t.Fatalf("insert transaction log: %v", err)
	}
	if err := pl.MarkSubmitted("log-2", 60); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if err := pl.MarkFailed("log-2"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, err := tls.Get("log-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("expected Failed to win over a submitted-but-not-finalized log, got %s", got.Status)
	}

	list, err := tls.ListByAccount("acct-1", nil, 0, 0)
	if err != nil {
		t.Fatalf("list by account: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one transaction log for the account, got %d", len(list))
	}
}
