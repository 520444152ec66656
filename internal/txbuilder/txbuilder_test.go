package txbuilder

import (
	"path/filepath"
	"testing"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/scanner"
	"github.com/duskledger/walletd/internal/txo"
	"github.com/duskledger/walletd/internal/walleterr"
)

// fixedNetwork satisfies Builder's NetworkInfo with a fee schedule and
// tip that advance only as the test mints blocks.
type fixedNetwork struct {
	tip  uint64
	fees map[uint64]uint64
}

func (n *fixedNetwork) NetworkStatus() ledger.NetworkStatus {
	return ledger.NetworkStatus{NetworkBlockHeight: n.tip, Fees: n.fees}
}

type harness struct {
	pl  *persist.Store
	as  *account.Store
	ls  *ledger.Store
	ts  *txo.Store
	tb  *Builder
	sc  *scanner.Scanner
	net *fixedNetwork
}

func newHarness(t *testing.T) *harness {
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
	ts := txo.New(pl, as)
	sc := scanner.New(pl, as, ls, nil)
	net := &fixedNetwork{fees: map[uint64]uint64{0: 10}}
	tb := New(pl, as, ts, ls, net)

	return &harness{pl: pl, as: as, ls: ls, ts: ts, tb: tb, sc: sc, net: net}
}

func (h *harness) fundAccount(t *testing.T, accountID string, value, tokenID uint64) {
	t.Helper()
	sub, err := h.pl.GetSubaddress(accountID, 0)
	if err != nil {
		t.Fatalf("get main subaddress: %v", err)
	}
	addr, err := b58.DecodePublicAddress(sub.PublicAddressB58)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	h.mintOutputToAddress(t, addr, value, tokenID)
}

// mintDecoyOutput mints an output to a throwaway, never-registered key
// pair purely to pad the ledger's ring-candidate pool; it is never
// observed by any account's scanner pass.
func (h *harness) mintDecoyOutput(t *testing.T, value uint64) {
	t.Helper()
	spendPrivate, err := cryptoiface.NewScalarFromBytes(randomBytes32(t))
	if err != nil {
		t.Fatalf("decoy spend private key: %v", err)
	}
	viewPrivate, err := cryptoiface.NewScalarFromBytes(randomBytes32(t))
	if err != nil {
		t.Fatalf("decoy view private key: %v", err)
	}
	addr := b58.PublicAddress{
		SpendPublicKey: cryptoiface.ScalarBaseMul(spendPrivate).Bytes(),
		ViewPublicKey:  cryptoiface.ScalarBaseMul(viewPrivate).Bytes(),
	}
	h.mintOutputToAddress(t, addr, value, 0)
}

func randomBytes32(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, 32)
	// a fixed per-call counter is enough entropy for distinct decoy keys
	// within a single test; uniqueness, not unpredictability, matters here.
	decoyCounter++
	b[0] = byte(decoyCounter)
	b[1] = byte(decoyCounter >> 8)
	return b
}

var decoyCounter uint32

func (h *harness) mintOutputToAddress(t *testing.T, addr b58.PublicAddress, value, tokenID uint64) {
	t.Helper()
	spendPublic, err := cryptoiface.NewPointFromBytes(addr.SpendPublicKey)
	if err != nil {
		t.Fatalf("decode spend public key: %v", err)
	}
	viewPublic, err := cryptoiface.NewPointFromBytes(addr.ViewPublicKey)
	if err != nil {
		t.Fatalf("decode view public key: %v", err)
	}
	oto, err := cryptoiface.DeriveOneTimeOutput(spendPublic, viewPublic)
	if err != nil {
		t.Fatalf("derive one-time output: %v", err)
	}
	masked := cryptoiface.NewAmountMasker().Mask(value, tokenID, oto.SharedSecret)

	nextIndex, ok := h.ls.TailIndex()
	var index uint64
	var parentID []byte
	if ok {
		index = nextIndex + 1
		parent, err := h.ls.GetBlockByIndex(nextIndex)
		if err != nil {
			t.Fatalf("get tail block: %v", err)
		}
		parentID = parent.ID
	}

	block := &ledger.Block{
		Index:    index,
		ID:       []byte{byte(index), byte(index >> 8), byte(index >> 16), 0xAB},
		ParentID: parentID,
		Outputs: []ledger.TxOutput{{
			PublicKey:     oto.TxPublicKey.Bytes(),
			TargetKey:     oto.TargetKey.Bytes(),
			MaskedValue:   masked.MaskedValue,
			MaskedTokenID: masked.MaskedTokenID,
		}},
	}
	if err := h.ls.AppendBlock(block); err != nil {
		t.Fatalf("append block: %v", err)
	}
	h.net.tip = index

	if err := h.sc.ScanOnce(); err != nil {
		t.Fatalf("scan once: %v", err)
	}
}

func (h *harness) txoValue(t *testing.T, txoID string) uint64 {
	t.Helper()
	tx, err := h.pl.GetTxo(txoID)
	if err != nil {
		t.Fatalf("get txo %s: %v", txoID, err)
	}
	return tx.Value
}

func TestBuildConservesValue(t *testing.T) {
	h := newHarness(t)

	aliceID, _, err := h.as.CreateAccount("alice")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bobID, _, err := h.as.CreateAccount("bob")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	h.fundAccount(t, aliceID, 1_000_000, 0)
	for i := 0; i < 10; i++ {
		h.mintDecoyOutput(t, 1_000)
	}

	bobSub, err := h.pl.GetSubaddress(bobID, 0)
	if err != nil {
		t.Fatalf("get bob main subaddress: %v", err)
	}

	proposal, err := h.tb.Build(BuildParams{
		AccountID: aliceID,
		Outlays:   []Outlay{{RecipientB58: bobSub.PublicAddressB58, Value: 300_000, TokenID: 0}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if proposal.Fee != 10 {
		t.Fatalf("expected the configured minimum fee, got %d", proposal.Fee)
	}

	var inputTotal, outputTotal uint64
	for _, id := range proposal.InputTxoIDs {
		inputTotal += h.txoValue(t, id)
	}
	for _, id := range proposal.PayloadTxoIDs {
		outputTotal += h.txoValue(t, id)
	}
	for _, id := range proposal.ChangeTxoIDs {
		outputTotal += h.txoValue(t, id)
	}

	if inputTotal != outputTotal+proposal.Fee {
		t.Fatalf("conservation law violated: inputs %d != outputs %d + fee %d", inputTotal, outputTotal, proposal.Fee)
	}
}

func TestBuildRejectsDoubleSpendOfLockedTxo(t *testing.T) {
	h := newHarness(t)

	aliceID, _, err := h.as.CreateAccount("alice")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bobID, _, err := h.as.CreateAccount("bob")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	h.fundAccount(t, aliceID, 500_000, 0)
	for i := 0; i < 10; i++ {
		h.mintDecoyOutput(t, 1_000)
	}

	bobSub, err := h.pl.GetSubaddress(bobID, 0)
	if err != nil {
		t.Fatalf("get bob main subaddress: %v", err)
	}
	params := BuildParams{
		AccountID: aliceID,
		Outlays:   []Outlay{{RecipientB58: bobSub.PublicAddressB58, Value: 100_000, TokenID: 0}},
	}

	if _, err := h.tb.Build(params); err != nil {
		t.Fatalf("first build: %v", err)
	}

	_, err = h.tb.Build(params)
	if err == nil {
		t.Fatal("expected the second build to fail: its only funding txo is locked by the first Built log")
	}
	if !walleterr.Is(err, walleterr.InsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
}

func TestBuildAtMaxSpendableSucceeds(t *testing.T) {
	h := newHarness(t)
	aliceID, _, err := h.as.CreateAccount("alice")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bobID, _, err := h.as.CreateAccount("bob")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	for i := 0; i < 17; i++ {
		h.fundAccount(t, aliceID, uint64(100+i), 0)
	}

	const fee = 10
	max, err := h.ts.MaxSpendable(aliceID, 0, fee)
	if err != nil {
		t.Fatalf("max spendable: %v", err)
	}
	if max == 0 {
		t.Fatal("expected a non-zero max spendable amount")
	}

	bobSub, err := h.pl.GetSubaddress(bobID, 0)
	if err != nil {
		t.Fatalf("get bob main subaddress: %v", err)
	}

	proposal, err := h.tb.Build(BuildParams{
		AccountID: aliceID,
		Outlays:   []Outlay{{RecipientB58: bobSub.PublicAddressB58, Value: max, TokenID: 0}},
	})
	if err != nil {
		t.Fatalf("expected build at exactly max_spendable to succeed, got: %v", err)
	}
	if len(proposal.ChangeTxoIDs) != 0 {
		t.Fatalf("expected no change output when spending exactly max_spendable, got %d", len(proposal.ChangeTxoIDs))
	}
}

func TestBuildBeyondMaxSpendableFails(t *testing.T) {
	h := newHarness(t)
	aliceID, _, err := h.as.CreateAccount("alice")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bobID, _, err := h.as.CreateAccount("bob")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	for i := 0; i < 17; i++ {
		h.fundAccount(t, aliceID, uint64(100+i), 0)
	}

	const fee = 10
	max, err := h.ts.MaxSpendable(aliceID, 0, fee)
	if err != nil {
		t.Fatalf("max spendable: %v", err)
	}

	bobSub, err := h.pl.GetSubaddress(bobID, 0)
	if err != nil {
		t.Fatalf("get bob main subaddress: %v", err)
	}

	_, err = h.tb.Build(BuildParams{
		AccountID: aliceID,
		Outlays:   []Outlay{{RecipientB58: bobSub.PublicAddressB58, Value: max + 1, TokenID: 0}},
	})
	if err == nil {
		t.Fatal("expected build beyond max_spendable to fail: the 16-input cap can't reach it even with a 17th txo available")
	}
	if !walleterr.Is(err, walleterr.InsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
}
