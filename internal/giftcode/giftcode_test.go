package giftcode

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/ledgersource"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/scanner"
	"github.com/duskledger/walletd/internal/submission"
	"github.com/duskledger/walletd/internal/txbuilder"
	"github.com/duskledger/walletd/internal/txo"
)

// fixedNetwork satisfies every component's NetworkInfo interface with a
// fee schedule and tip that advance only as the test mints blocks.
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
	tb  *txbuilder.Builder
	sc  *scanner.Scanner
	sp  *submission.Pipeline
	gc  *Service
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
	tb := txbuilder.New(pl, as, ts, ls, net)
	source := ledgersource.NewMemory(net.fees, 1)
	sp := submission.New(pl, source, net)
	gc := New(pl, as, ts, tb, sp, sc, net)

	return &harness{pl: pl, as: as, ls: ls, ts: ts, tb: tb, sc: sc, sp: sp, gc: gc, net: net}
}

// fundAccount mints a block crediting accountID's subaddress index 0
// with value of tokenID, appends it to the ledger store directly
// (bypassing the sync engine, whose extra contents-hash validation
// this test doesn't exercise), and runs one scan pass so
// the account's TXO store observes it.
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
	blinding, err := cryptoiface.NewScalarFromBytes(make([]byte, 32))
	if err != nil {
		t.Fatalf("blinding scalar: %v", err)
	}
	commitment, err := cryptoiface.NewCommitments().Commit(value, tokenID, blinding)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

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
		ID:       []byte{byte(index), byte(index >> 8), 0xAA},
		ParentID: parentID,
		Outputs: []ledger.TxOutput{{
			PublicKey:     oto.TxPublicKey.Bytes(),
			TargetKey:     oto.TargetKey.Bytes(),
			Commitment:    commitment.Point.Bytes(),
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

func TestGiftCodeLifecycle(t *testing.T) {
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

	built, err := h.gc.Build(aliceID, 100_000, 0, "happy birthday")
	if err != nil {
		t.Fatalf("build gift code: %v", err)
	}
	if built.GiftCodeB58 == "" {
		t.Fatal("expected non-empty gift code")
	}

	status, value, tokenID, err := h.gc.CheckStatus(built.GiftCodeB58)
	if err != nil {
		t.Fatalf("check status before submit: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("expected pending before the funding tx confirms, got %s", status)
	}
	if value != 100_000 || tokenID != 0 {
		t.Fatalf("unexpected value/token: %d/%d", value, tokenID)
	}

	ctx := context.Background()
	if _, err := h.gc.Submit(ctx, built.TransactionLogID, ""); err != nil {
		t.Fatalf("submit gift code funding tx: %v", err)
	}

	record, err := h.gc.Get(built.GiftCodeB58)
	if err != nil {
		t.Fatalf("get gift code record: %v", err)
	}
	payloadTxo, err := h.pl.GetTxo(record.TxoID)
	if err != nil {
		t.Fatalf("get payload txo: %v", err)
	}

	sharedSecret, err := cryptoiface.NewPointFromBytes(payloadTxo.SharedSecret)
	if err != nil {
		t.Fatalf("decode shared secret: %v", err)
	}
	masked := cryptoiface.NewAmountMasker().Mask(payloadTxo.Value, payloadTxo.TokenID, sharedSecret)

	nextIndex, _ := h.ls.TailIndex()
	parent, err := h.ls.GetBlockByIndex(nextIndex)
	if err != nil {
		t.Fatalf("get tail block: %v", err)
	}
	fundingBlock := &ledger.Block{
		Index:    nextIndex + 1,
		ID:       []byte{0xBB},
		ParentID: parent.ID,
		Outputs: []ledger.TxOutput{{
			PublicKey:     payloadTxo.PublicKey,
			TargetKey:     payloadTxo.TargetKey,
			MaskedValue:   masked.MaskedValue,
			MaskedTokenID: masked.MaskedTokenID,
		}},
	}
	if err := h.ls.AppendBlock(fundingBlock); err != nil {
		t.Fatalf("append funding block: %v", err)
	}
	h.net.tip = fundingBlock.Index
	if err := h.sc.ScanOnce(); err != nil {
		t.Fatalf("scan funding block: %v", err)
	}

	status, _, _, err = h.gc.CheckStatus(built.GiftCodeB58)
	if err != nil {
		t.Fatalf("check status after funding: %v", err)
	}
	if status != StatusAvailable {
		t.Fatalf("expected available once the funding tx confirms, got %s", status)
	}

	claimed, err := h.gc.Claim(ctx, built.GiftCodeB58, bobID, "claim-1")
	if err != nil {
		t.Fatalf("claim gift code: %v", err)
	}
	if claimed.Value == 0 {
		t.Fatal("expected a non-zero claimed amount")
	}

	status, _, _, err = h.gc.CheckStatus(built.GiftCodeB58)
	if err != nil {
		t.Fatalf("check status after claim: %v", err)
	}
	if status != StatusClaimed {
		t.Fatalf("expected claimed, got %s", status)
	}

	if _, err := h.gc.Claim(ctx, built.GiftCodeB58, bobID, "claim-2"); err == nil {
		t.Fatal("expected second claim of the same code to fail")
	}
}

func TestRemoveUnclaimedGiftCode(t *testing.T) {
	h := newHarness(t)
	aliceID, _, err := h.as.CreateAccount("alice")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	h.fundAccount(t, aliceID, 500_000, 0)

	built, err := h.gc.Build(aliceID, 10_000, 0, "")
	if err != nil {
		t.Fatalf("build gift code: %v", err)
	}
	if err := h.gc.Remove(built.GiftCodeB58); err != nil {
		t.Fatalf("remove unclaimed gift code: %v", err)
	}
	if _, err := h.gc.Get(built.GiftCodeB58); err == nil {
		t.Fatal("expected removed gift code to be gone")
	}
}
