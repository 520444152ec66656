package txo

import (
	"path/filepath"
	"testing"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/scanner"
)

func TestDeriveStatusTable(t *testing.T) {
	blockIndex := uint64(10)
	spentIndex := uint64(11)

	cases := []struct {
		name               string
		t                  *persist.Txo
		subaddressAssigned bool
		viewOnly           bool
		pendingSpend       bool
		want               Status
	}{
		{"secreted wins over everything", &persist.Txo{IsSecreted: true}, false, false, true, StatusSecreted},
		{"spent wins over pending/orphan", &persist.Txo{SpentBlockIndex: &spentIndex}, false, true, true, StatusSpent},
		{"pending spend", &persist.Txo{BlockIndex: &blockIndex}, true, false, true, StatusPending},
		{"unassigned subaddress is orphaned even though scanner recorded one", &persist.Txo{BlockIndex: &blockIndex}, false, false, false, StatusOrphaned},
		{"view-only without a key image is unverified", &persist.Txo{BlockIndex: &blockIndex}, true, true, false, StatusUnverified},
		{"full account with assigned subaddress is unspent", &persist.Txo{BlockIndex: &blockIndex}, true, false, false, StatusUnspent},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Derive(c.t, c.subaddressAssigned, c.viewOnly, c.pendingSpend)
			if got != c.want {
				t.Fatalf("Derive() = %s, want %s", got, c.want)
			}
		})
	}
}

func newTestStore(t *testing.T) (*Store, *account.Store, *ledger.Store, *scanner.Scanner) {
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

	ls, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger store: %v", err)
	}
	t.Cleanup(func() { ls.Close() })

	as := account.New(pl)
	ts := New(pl, as)
	sc := scanner.New(pl, as, ls, nil)
	return ts, as, ls, sc
}

// mintToSubaddress mints one block crediting a specific (possibly
// not-yet-assigned) subaddress index of an account, bypassing
// assign_address_for_account entirely so the scanner's gap-limit match
// records an orphaned TXO the way a real out-of-order receive would.
func mintToSubaddress(t *testing.T, ls *ledger.Store, sc *scanner.Scanner, acc *persist.Account, subIndex uint64, value, tokenID uint64) {
	t.Helper()

	viewPrivate, err := cryptoiface.NewScalarFromBytes(acc.ViewPrivateKey)
	if err != nil {
		t.Fatalf("decode view private key: %v", err)
	}
	spendPublic, err := cryptoiface.NewPointFromBytes(acc.SpendPublicKey)
	if err != nil {
		t.Fatalf("decode spend public key: %v", err)
	}
	var spendPrivate *cryptoiface.Scalar
	if acc.SpendPrivateKey != nil {
		spendPrivate, err = cryptoiface.NewScalarFromBytes(acc.SpendPrivateKey)
		if err != nil {
			t.Fatalf("decode spend private key: %v", err)
		}
	}
	sub, err := account.DeriveSubaddress(viewPrivate, spendPublic, spendPrivate, subIndex)
	if err != nil {
		t.Fatalf("derive subaddress %d: %v", subIndex, err)
	}

	oto, err := cryptoiface.DeriveOneTimeOutput(sub.SpendPublic, sub.ViewPublic)
	if err != nil {
		t.Fatalf("derive one-time output: %v", err)
	}
	masked := cryptoiface.NewAmountMasker().Mask(value, tokenID, oto.SharedSecret)

	nextIndex, ok := ls.TailIndex()
	var index uint64
	var parentID []byte
	if ok {
		index = nextIndex + 1
		parent, err := ls.GetBlockByIndex(nextIndex)
		if err != nil {
			t.Fatalf("get tail block: %v", err)
		}
		parentID = parent.ID
	}

	block := &ledger.Block{
		Index:    index,
		ID:       []byte{byte(index), byte(index >> 8), 0xCC},
		ParentID: parentID,
		Outputs: []ledger.TxOutput{{
			PublicKey:     oto.TxPublicKey.Bytes(),
			TargetKey:     oto.TargetKey.Bytes(),
			MaskedValue:   masked.MaskedValue,
			MaskedTokenID: masked.MaskedTokenID,
		}},
	}
	if err := ls.AppendBlock(block); err != nil {
		t.Fatalf("append block: %v", err)
	}
	if err := sc.ScanOnce(); err != nil {
		t.Fatalf("scan once: %v", err)
	}
}

func TestOrphanRecoveryFlipsStatusAndBalance(t *testing.T) {
	ts, as, ls, sc := newTestStore(t)

	accountID, _, err := as.CreateAccount("primary")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	acc, err := as.GetAccount(accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}

	// next_subaddress_index starts at 2 (main=0, change=1 reserved);
	// mint to index 2, which is within the scanner's gap-limit window
	// but not yet assigned to anyone.
	mintToSubaddress(t, ls, sc, acc, 2, 500_000, 0)

	rows, err := ts.List(accountID, ListFilter{})
	if err != nil {
		t.Fatalf("list txos: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one txo, got %d", len(rows))
	}
	if rows[0].Status != StatusOrphaned {
		t.Fatalf("expected orphaned status before assignment, got %s", rows[0].Status)
	}

	balances, err := ts.BalancePerToken(accountID)
	if err != nil {
		t.Fatalf("balance per token: %v", err)
	}
	if b := balances[0]; b == nil || b.Unspent != 0 || b.Orphaned != 500_000 {
		t.Fatalf("expected the orphaned value excluded from unspent balance, got %+v", b)
	}

	// Lazily assign subaddress 2 (main=0, change=1 already reserved at
	// account creation) so next_subaddress_index reaches 3.
	if _, err := as.AssignAddressForAccount(accountID, ""); err != nil {
		t.Fatalf("assign address: %v", err)
	}
	if err := ts.RecoverOrphans(accountID, 2); err != nil {
		t.Fatalf("recover orphans: %v", err)
	}

	rows, err = ts.List(accountID, ListFilter{})
	if err != nil {
		t.Fatalf("list txos after recovery: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != StatusUnspent {
		t.Fatalf("expected unspent status after assignment, got %+v", rows)
	}

	balances, err = ts.BalancePerToken(accountID)
	if err != nil {
		t.Fatalf("balance per token after recovery: %v", err)
	}
	if b := balances[0]; b == nil || b.Unspent != 500_000 || b.Orphaned != 0 {
		t.Fatalf("expected the recovered value counted as unspent, got %+v", b)
	}
}

func TestMaxSpendableBoundary(t *testing.T) {
	ts, as, ls, sc := newTestStore(t)

	accountID, _, err := as.CreateAccount("primary")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	sub, err := ts.pl.GetSubaddress(accountID, 0)
	if err != nil {
		t.Fatalf("get main subaddress: %v", err)
	}
	addr, err := b58.DecodePublicAddress(sub.PublicAddressB58)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}

	const perOutput = 1_000
	for i := 0; i < 17; i++ {
		mintToMainAddress(t, ls, sc, addr, uint64(perOutput+i))
	}

	spendable, err := ts.SpendableCandidates(accountID, 0)
	if err != nil {
		t.Fatalf("spendable candidates: %v", err)
	}
	if len(spendable) != 17 {
		t.Fatalf("expected all 17 unspent txos to remain spendable candidates, got %d", len(spendable))
	}

	max, err := ts.MaxSpendable(accountID, 0, 0)
	if err != nil {
		t.Fatalf("max spendable: %v", err)
	}

	var top16 uint64
	sortedValues := make([]uint64, len(spendable))
	for i, tx := range spendable {
		sortedValues[i] = tx.Value
	}
	for i := 0; i < len(sortedValues) && i < 16; i++ {
		top16 += sortedValues[i]
	}
	if max != top16 {
		t.Fatalf("expected max_spendable to sum exactly the 16 largest txos (%d), got %d", top16, max)
	}
}

func mintToMainAddress(t *testing.T, ls *ledger.Store, sc *scanner.Scanner, addr b58.PublicAddress, value uint64) {
	t.Helper()
	spendPublic, err := cryptoiface.NewPointFromBytes(addr.SpendPublicKey)
	if err != nil {
		t.Fatalf("decode recipient spend key: %v", err)
	}
	viewPublic, err := cryptoiface.NewPointFromBytes(addr.ViewPublicKey)
	if err != nil {
		t.Fatalf("decode recipient view key: %v", err)
	}
	oto, err := cryptoiface.DeriveOneTimeOutput(spendPublic, viewPublic)
	if err != nil {
		t.Fatalf("derive one-time output: %v", err)
	}
	masked := cryptoiface.NewAmountMasker().Mask(value, 0, oto.SharedSecret)

	nextIndex, ok := ls.TailIndex()
	var index uint64
	var parentID []byte
	if ok {
		index = nextIndex + 1
		parent, err := ls.GetBlockByIndex(nextIndex)
		if err != nil {
			t.Fatalf("get tail block: %v", err)
		}
		parentID = parent.ID
	}
	block := &ledger.Block{
		Index:    index,
		ID:       []byte{byte(index), byte(index >> 8), byte(index >> 16), 0xDD},
		ParentID: parentID,
		Outputs: []ledger.TxOutput{{
			PublicKey:     oto.TxPublicKey.Bytes(),
			TargetKey:     oto.TargetKey.Bytes(),
			MaskedValue:   masked.MaskedValue,
			MaskedTokenID: masked.MaskedTokenID,
		}},
	}
	if err := ls.AppendBlock(block); err != nil {
		t.Fatalf("append block: %v", err)
	}
	if err := sc.ScanOnce(); err != nil {
		t.Fatalf("scan once: %v", err)
	}
}
