// Package scanner implements the Account Scanner (SC): a single
// background task that matches every owned account against every
// newly appended ledger block, the way the teacher's
// internal/wallet.UTXOSyncService runs one gap-limit scan loop per
// address, generalized here to per-account view-key matching instead
// of per-address polling.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/walleterr"
	"github.com/duskledger/walletd/pkg/logging"
)

// GapLimit bounds how far past an account's next free subaddress
// index the scanner searches for a view-key match, the same
// fixed-horizon tradeoff the teacher's UTXO sync applies to address
// gaps: high enough to catch reasonable out-of-order address use,
// bounded so a match attempt derives at most next_subaddress_index +
// GapLimit candidate subaddresses per output.
const GapLimit = 20

const wakeInterval = 5 * time.Second

// Scanner is the single process-wide scanning task.
type Scanner struct {
	pl  *persist.Store
	as  *account.Store
	ls  *ledger.Store
	log *logging.Logger

	notify <-chan uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a scanner over the ledger store, persistence layer and
// account store. notify is the Ledger Sync Engine's append-notification
// channel; a nil channel disables the push path and the scanner runs
// purely off its periodic wake timer.
func New(pl *persist.Store, as *account.Store, ls *ledger.Store, notify <-chan uint64) *Scanner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scanner{
		pl:     pl,
		as:     as,
		ls:     ls,
		log:    logging.GetDefault().Component("scanner"),
		notify: notify,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the scanning goroutine.
func (s *Scanner) Start() {
	go s.run()
}

// Stop cancels the scanning goroutine and waits for it to exit.
func (s *Scanner) Stop() {
	s.cancel()
	<-s.done
}

func (s *Scanner) run() {
	defer close(s.done)
	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.notify:
		}
		if err := s.ScanOnce(); err != nil {
			s.log.Error("scan pass failed", "error", err)
		}
	}
}

// ScanOnce iterates every account whose cursor lags the ledger tail
// and advances it by one block at a time, exported so tests and the
// giftcode package can force a synchronous pass.
func (s *Scanner) ScanOnce() error {
	tail, ok := s.ls.TailIndex()
	if !ok {
		return nil
	}

	accounts, err := s.as.ListAccounts()
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		for acc.NextBlockIndex < tail+1 {
			block, err := s.ls.GetBlockByIndex(acc.NextBlockIndex)
			if err != nil {
				return err
			}
			if err := s.scanBlockForAccount(acc, block); err != nil {
				return err
			}
			acc.NextBlockIndex++
		}
	}
	return nil
}

// scanBlockForAccount processes one block against one account: output
// matching, key-image spend detection, and cursor advance, all
// intended to land in one persistence transaction per spec.md §4.4
// step 4. internal/persist's single-writer mutex plus the narrow
// per-call write methods approximate this; a future pass could wrap
// the whole body in one *sql.Tx if finer-grained crash atomicity is
// required.
func (s *Scanner) scanBlockForAccount(acc *persist.Account, block *ledger.Block) error {
	accLog := s.log.WithAccount(acc.AccountID)

	viewPrivate, err := cryptoiface.NewScalarFromBytes(acc.ViewPrivateKey)
	if err != nil {
		accLog.Error("decode view private key", "error", err)
		return err
	}

	for _, out := range block.Outputs {
		if err := s.matchOutput(acc, viewPrivate, block.Index, out); err != nil {
			accLog.Error("match output", "block_index", block.Index, "error", err)
			return err
		}
	}
	for _, ki := range block.KeyImages {
		if err := s.markSpentIfOwned(acc.AccountID, ki, block.Index); err != nil {
			accLog.Error("mark spent", "block_index", block.Index, "error", err)
			return err
		}
	}
	return s.pl.UpdateAccountSyncProgress(acc.AccountID, block.Index+1)
}

func (s *Scanner) matchOutput(acc *persist.Account, viewPrivate *cryptoiface.Scalar, blockIndex uint64, out ledger.TxOutput) error {
	txPublicKey, err := cryptoiface.NewPointFromBytes(out.PublicKey)
	if err != nil {
		return nil // malformed output key; not ours, not fatal to the scan
	}
	targetKey, err := cryptoiface.NewPointFromBytes(out.TargetKey)
	if err != nil {
		return nil
	}

	shared := cryptoiface.RecoverSharedSecret(viewPrivate, txPublicKey)

	matchedIndex, matched, err := s.findMatchingSubaddress(acc, targetKey, shared)
	if err != nil {
		return err
	}
	if !matched {
		return nil
	}

	txoID := txoIDFromPublicKey(out.PublicKey)
	value, tokenID := cryptoiface.NewAmountMasker().Unmask(cryptoiface.MaskedAmount{MaskedValue: out.MaskedValue, MaskedTokenID: out.MaskedTokenID}, shared)

	t := persist.Txo{
		TxoID:           txoID,
		AccountID:       acc.AccountID,
		SubaddressIndex: &matchedIndex,
		PublicKey:       out.PublicKey,
		TargetKey:       out.TargetKey,
		Value:           value,
		TokenID:         tokenID,
		BlockIndex:      &blockIndex,
		SharedSecret:    shared.Bytes(),
		Memo:            out.Memo,
		CreatedAt:       time.Now(),
	}

	if acc.Kind == persist.AccountKindFull && matchedIndex < acc.NextSubaddressIndex {
		keys, err := s.as.DeriveSubaddressKeys(acc.AccountID, matchedIndex)
		if err != nil {
			return err
		}
		if keys.SpendPrivate != nil {
			oneTimeSpend := cryptoiface.OneTimeSpendKey(keys.SpendPrivate, shared)
			keyImage, err := ringSigner.KeyImage(oneTimeSpend, targetKey)
			if err != nil {
				return err
			}
			t.KeyImage = keyImage
		}
	}

	return s.pl.InsertTxo(t)
}

// findMatchingSubaddress brute-force checks candidate indices
// [0, next_subaddress_index + GapLimit) against an output's target
// key. Matching an index >= next_subaddress_index is exactly the
// Orphaned case: the TXO is recorded now with that index, but
// internal/txo.Derive treats the index as unassigned until
// AssignAddressForAccount raises next_subaddress_index past it and
// RecoverOrphans backfills the key image.
func (s *Scanner) findMatchingSubaddress(acc *persist.Account, targetKey, shared *cryptoiface.Point) (uint64, bool, error) {
	spendPublic, err := cryptoiface.NewPointFromBytes(acc.SpendPublicKey)
	if err != nil {
		return 0, false, err
	}
	var spendPrivate *cryptoiface.Scalar
	if acc.Kind == persist.AccountKindFull {
		spendPrivate, err = cryptoiface.NewScalarFromBytes(acc.SpendPrivateKey)
		if err != nil {
			return 0, false, err
		}
	}
	viewPrivate, err := cryptoiface.NewScalarFromBytes(acc.ViewPrivateKey)
	if err != nil {
		return 0, false, err
	}

	limit := acc.NextSubaddressIndex + GapLimit
	for idx := uint64(0); idx < limit; idx++ {
		sub, err := account.DeriveSubaddress(viewPrivate, spendPublic, spendPrivate, idx)
		if err != nil {
			return 0, false, err
		}
		if cryptoiface.MatchesSubaddress(targetKey, shared, sub.SpendPublic) {
			return idx, true, nil
		}
	}
	return 0, false, nil
}

func (s *Scanner) markSpentIfOwned(accountID string, keyImage []byte, blockIndex uint64) error {
	t, err := s.pl.GetTxoByKeyImage(keyImage)
	if err != nil {
		if walleterr.Is(err, walleterr.TxoNotFound) {
			return nil
		}
		return err
	}
	if t.AccountID != accountID {
		return nil
	}
	return s.pl.MarkTxoSpentAndFinalizeLog(t.TxoID, blockIndex)
}

func txoIDFromPublicKey(publicKey []byte) string {
	h := sha256.Sum256(publicKey)
	return hex.EncodeToString(h[:])
}

var ringSigner = cryptoiface.NewRingSigner()
