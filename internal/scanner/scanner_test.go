package scanner

import (
	"path/filepath"
	"testing"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
)

func newTestComponents(t *testing.T) (*persist.Store, *account.Store, *ledger.Store, *Scanner) {
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
	sc := New(pl, as, ls, nil)
	return pl, as, ls, sc
}

func appendBlock(t *testing.T, ls *ledger.Store, out ledger.TxOutput, keyImages [][]byte) {
	t.Helper()
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
		Index:     index,
		ID:        []byte{byte(index), byte(index >> 8), 0xEE},
		ParentID:  parentID,
		KeyImages: keyImages,
	}
	if out.PublicKey != nil {
		block.Outputs = []ledger.TxOutput{out}
	}
	if err := ls.AppendBlock(block); err != nil {
		t.Fatalf("append block: %v", err)
	}
}

func buildOutput(t *testing.T, sub *account.SubaddressKeys, value uint64) ledger.TxOutput {
	t.Helper()
	oto, err := cryptoiface.DeriveOneTimeOutput(sub.SpendPublic, sub.ViewPublic)
	if err != nil {
		t.Fatalf("derive one-time output: %v", err)
	}
	masked := cryptoiface.NewAmountMasker().Mask(value, 0, oto.SharedSecret)
	return ledger.TxOutput{
		PublicKey:     oto.TxPublicKey.Bytes(),
		TargetKey:     oto.TargetKey.Bytes(),
		MaskedValue:   masked.MaskedValue,
		MaskedTokenID: masked.MaskedTokenID,
	}
}

func TestScanOnceMatchesWithinGapLimitAndIgnoresBeyondIt(t *testing.T) {
	pl, as, ls, sc := newTestComponents(t)

	accountID, _, err := as.CreateAccount("primary")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	acc, err := as.GetAccount(accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}

	subWithinGap, err := as.DeriveSubaddressKeys(accountID, acc.NextSubaddressIndex+GapLimit-1)
	if err != nil {
		t.Fatalf("derive within-gap subaddress: %v", err)
	}
	subBeyondGap, err := as.DeriveSubaddressKeys(accountID, acc.NextSubaddressIndex+GapLimit)
	if err != nil {
		t.Fatalf("derive beyond-gap subaddress: %v", err)
	}

	appendBlock(t, ls, buildOutput(t, subWithinGap, 100), nil)
	appendBlock(t, ls, buildOutput(t, subBeyondGap, 200), nil)

	if err := sc.ScanOnce(); err != nil {
		t.Fatalf("scan once: %v", err)
	}

	rows, err := pl.ListTxosByAccount(accountID, nil, 1<<20, 0)
	if err != nil {
		t.Fatalf("list txos: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only the within-gap output to match, got %d txos", len(rows))
	}
	if rows[0].Value != 100 {
		t.Fatalf("expected the within-gap output's value, got %d", rows[0].Value)
	}
}

func TestScanOnceMarksSpentOnKeyImage(t *testing.T) {
	pl, as, ls, sc := newTestComponents(t)

	accountID, _, err := as.CreateAccount("primary")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	mainSub, err := as.DeriveSubaddressKeys(accountID, 0)
	if err != nil {
		t.Fatalf("derive main subaddress: %v", err)
	}
	appendBlock(t, ls, buildOutput(t, mainSub, 900), nil)
	if err := sc.ScanOnce(); err != nil {
		t.Fatalf("scan once: %v", err)
	}

	rows, err := pl.ListTxosByAccount(accountID, nil, 1<<20, 0)
	if err != nil {
		t.Fatalf("list txos: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one received txo, got %d", len(rows))
	}
	received := rows[0]
	if received.SpentBlockIndex != nil {
		t.Fatalf("txo should not be spent yet")
	}

	oneTimeSpend := cryptoiface.OneTimeSpendKey(mainSub.SpendPrivate, mustSharedSecret(t, received))
	targetKey, err := cryptoiface.NewPointFromBytes(received.TargetKey)
	if err != nil {
		t.Fatalf("decode target key: %v", err)
	}
	keyImage, err := cryptoiface.NewRingSigner().KeyImage(oneTimeSpend, targetKey)
	if err != nil {
		t.Fatalf("compute key image: %v", err)
	}

	appendBlock(t, ls, ledger.TxOutput{}, [][]byte{keyImage})
	if err := sc.ScanOnce(); err != nil {
		t.Fatalf("scan once (spend block): %v", err)
	}

	after, err := pl.GetTxo(received.TxoID)
	if err != nil {
		t.Fatalf("get txo after spend: %v", err)
	}
	if after.SpentBlockIndex == nil {
		t.Fatalf("expected spent_block_index to be set after the key image appears on-chain")
	}
}

func mustSharedSecret(t *testing.T, tx *persist.Txo) *cryptoiface.Point {
	t.Helper()
	p, err := cryptoiface.NewPointFromBytes(tx.SharedSecret)
	if err != nil {
		t.Fatalf("decode shared secret: %v", err)
	}
	return p
}
