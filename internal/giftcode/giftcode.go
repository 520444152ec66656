// Package giftcode implements the self-contained bearer-instrument
// lifecycle spec.md §4.9 layers on top of the transaction builder: a
// gift code is a dedicated, ephemeral account funded by one ordinary
// transaction whose root entropy is handed to the recipient as the
// bearer secret itself, following the teacher's reward/bonus credit
// pattern of minting a one-off claim code backed by a real on-chain
// balance rather than an off-chain ledger entry.
package giftcode

import (
	"context"
	"fmt"
	"time"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/scanner"
	"github.com/duskledger/walletd/internal/submission"
	"github.com/duskledger/walletd/internal/txbuilder"
	"github.com/duskledger/walletd/internal/txo"
	"github.com/duskledger/walletd/internal/walleterr"
)

// NetworkInfo is the subset of the ledger sync engine the service
// needs to know the current minimum fee when sizing a gift code claim.
type NetworkInfo interface {
	NetworkStatus() ledger.NetworkStatus
}

// Service implements build_gift_code, submit_gift_code,
// check_gift_code_status, claim_gift_code and the gift-code listing
// operations spec.md §4.9 groups together.
type Service struct {
	pl  *persist.Store
	as  *account.Store
	ts  *txo.Store
	tb  *txbuilder.Builder
	sp  *submission.Pipeline
	sc  *scanner.Scanner
	net NetworkInfo
}

// New wires a gift-code service over the already-constructed
// component handles the rest of the wallet shares.
func New(pl *persist.Store, as *account.Store, ts *txo.Store, tb *txbuilder.Builder, sp *submission.Pipeline, sc *scanner.Scanner, net NetworkInfo) *Service {
	return &Service{pl: pl, as: as, ts: ts, tb: tb, sp: sp, sc: sc, net: net}
}

// Built is the result of Build: the proposal funding the gift code's
// ephemeral account, plus the bearer code itself.
type Built struct {
	GiftCodeB58      string
	TransactionLogID string
	Value            uint64
	TokenID          uint64
}

// Build implements build_gift_code: mints a fresh, single-use account,
// builds a transaction from sourceAccountID paying value of tokenID to
// that account's main subaddress, and returns the bearer code encoding
// the ephemeral account's root entropy and payload TXO public key.
// The gift code is not yet submitted; the caller still calls Submit.
func (s *Service) Build(sourceAccountID string, value, tokenID uint64, memo string) (*Built, error) {
	phrase, err := account.GenerateMnemonic()
	if err != nil {
		return nil, err
	}
	keys, entropy, version, err := account.KeysFromMnemonic(phrase, 0)
	if err != nil {
		return nil, err
	}
	if version != 2 {
		return nil, walleterr.New(walleterr.InvalidMnemonic, "unexpected mnemonic version for freshly generated gift code account")
	}

	ephemeralID, err := s.as.ImportAccount("gift-code:"+time.Now().UTC().Format(time.RFC3339Nano), phrase, 0)
	if err != nil {
		return nil, err
	}

	recipientAddr, err := b58.EncodePublicAddress(b58.PublicAddress{
		ViewPublicKey:  keys.ViewPublic.Bytes(),
		SpendPublicKey: keys.SpendPublic.Bytes(),
	})
	if err != nil {
		return nil, err
	}

	proposal, err := s.tb.Build(txbuilder.BuildParams{
		AccountID: sourceAccountID,
		Outlays: []txbuilder.Outlay{
			{RecipientB58: recipientAddr, Value: value, TokenID: tokenID},
		},
		TokenID: &tokenID,
		Comment: "gift code",
	})
	if err != nil {
		return nil, err
	}
	if len(proposal.PayloadTxoIDs) != 1 {
		return nil, fmt.Errorf("gift code proposal produced %d payload outputs, want 1", len(proposal.PayloadTxoIDs))
	}

	payloadTxo, err := s.ts.Get(proposal.PayloadTxoIDs[0])
	if err != nil {
		return nil, err
	}

	code := b58.GiftCode{
		RootEntropy:  entropy,
		TxoPublicKey: payloadTxo.PublicKey,
		Memo:         memo,
	}
	codeB58, err := b58.EncodeGiftCode(code)
	if err != nil {
		return nil, err
	}

	if err := s.pl.InsertGiftCode(persist.GiftCode{
		GiftCodeB58: codeB58,
		AccountID:   ephemeralID,
		TxoID:       payloadTxo.TxoID,
		Value:       value,
		TokenID:     tokenID,
		Memo:        memo,
		CreatedAt:   time.Now(),
	}); err != nil {
		return nil, err
	}

	return &Built{
		GiftCodeB58:      codeB58,
		TransactionLogID: proposal.TransactionLogID,
		Value:            value,
		TokenID:          tokenID,
	}, nil
}

// Submit implements submit_gift_code: broadcasts the transaction log
// that funds the gift code's ephemeral account.
func (s *Service) Submit(ctx context.Context, transactionLogID, idempotencyKey string) (*persist.TransactionLog, error) {
	return s.sp.Submit(ctx, transactionLogID, idempotencyKey)
}

// Status is the gift code's lifecycle position per spec.md §4.9:
// pending until its funding TXO confirms, available until claimed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAvailable Status = "available"
	StatusClaimed   Status = "claimed"
)

// CheckStatus implements check_gift_code_status: decodes the bearer
// code, looks up its funding TXO and reports where in the lifecycle it
// sits without requiring the caller to know which account holds it.
func (s *Service) CheckStatus(giftCodeB58 string) (Status, uint64, uint64, error) {
	record, err := s.pl.GetGiftCode(giftCodeB58)
	if err != nil {
		return "", 0, 0, err
	}
	if record.ClaimedBlockIndex != nil {
		return StatusClaimed, record.Value, record.TokenID, nil
	}

	funding, err := s.ts.Get(record.TxoID)
	if err != nil {
		return "", 0, 0, err
	}
	if funding.BlockIndex == nil {
		return StatusPending, record.Value, record.TokenID, nil
	}
	if funding.Status == txo.StatusSpent {
		return StatusClaimed, record.Value, record.TokenID, nil
	}
	return StatusAvailable, record.Value, record.TokenID, nil
}

// Claimed is the result of a successful Claim.
type Claimed struct {
	TransactionLogID string
	Value            uint64
	TokenID          uint64
}

// Claim implements claim_gift_code: recovers the ephemeral account's
// keys from the bearer code's root entropy, forces a scan so its
// funding TXO is visible, then spends the entire balance to
// destinationAccountID's main subaddress before recording the gift
// code claimed.
func (s *Service) Claim(ctx context.Context, giftCodeB58, destinationAccountID string, idempotencyKey string) (*Claimed, error) {
	code, err := b58.DecodeGiftCode(giftCodeB58)
	if err != nil {
		return nil, err
	}
	record, err := s.pl.GetGiftCode(giftCodeB58)
	if err != nil {
		return nil, err
	}
	if record.ClaimedBlockIndex != nil {
		return nil, walleterr.New(walleterr.GiftCodeAlreadyClaimed, giftCodeB58)
	}

	keys, err := account.KeysFromEntropyAndVersion(code.RootEntropy, 2, 0)
	if err != nil {
		return nil, err
	}
	ephemeralID := account.DeriveAccountID(keys.ViewPublic.Bytes(), keys.SpendPublic.Bytes())
	if ephemeralID != record.AccountID {
		return nil, walleterr.New(walleterr.InvalidParams, "gift code entropy does not match the account that funded it")
	}

	if err := s.sc.ScanOnce(); err != nil {
		return nil, err
	}

	funding, err := s.ts.Get(record.TxoID)
	if err != nil {
		return nil, err
	}
	if funding.Status == txo.StatusSpent {
		return nil, walleterr.New(walleterr.GiftCodeAlreadyClaimed, giftCodeB58)
	}
	if funding.BlockIndex == nil {
		return nil, walleterr.New(walleterr.TxoNotFound, "gift code funding transaction has not yet confirmed")
	}

	mainAddr, err := s.pl.GetSubaddress(destinationAccountID, 0)
	if err != nil {
		return nil, err
	}

	fee := s.net.NetworkStatus().Fees[record.TokenID]
	spendable, err := s.ts.MaxSpendable(ephemeralID, record.TokenID, fee)
	if err != nil {
		return nil, err
	}
	if spendable == 0 {
		return nil, walleterr.New(walleterr.InsufficientFunds, "gift code balance does not cover the minimum fee").WithDetails(map[string]interface{}{
			"available": spendable,
			"required":  fee,
			"token_id":  record.TokenID,
		})
	}

	proposal, err := s.tb.Build(txbuilder.BuildParams{
		AccountID: ephemeralID,
		Outlays: []txbuilder.Outlay{
			{RecipientB58: mainAddr.PublicAddressB58, Value: spendable, TokenID: record.TokenID},
		},
		FeeOverride: &fee,
		TokenID:     &record.TokenID,
		Comment:     "gift code claim",
	})
	if err != nil {
		return nil, err
	}

	submitted, err := s.sp.Submit(ctx, proposal.TransactionLogID, idempotencyKey)
	if err != nil {
		return nil, err
	}

	var claimedAt uint64
	if submitted.SubmittedBlockIndex != nil {
		claimedAt = *submitted.SubmittedBlockIndex
	}
	if err := s.pl.ClaimGiftCode(giftCodeB58, claimedAt); err != nil {
		return nil, err
	}

	return &Claimed{
		TransactionLogID: proposal.TransactionLogID,
		Value:            spendable,
		TokenID:          record.TokenID,
	}, nil
}

// Get implements get_gift_code.
func (s *Service) Get(giftCodeB58 string) (*persist.GiftCode, error) {
	return s.pl.GetGiftCode(giftCodeB58)
}

// List implements get_gift_codes for one account's built codes.
func (s *Service) List(accountID string) ([]*persist.GiftCode, error) {
	return s.pl.ListGiftCodes(accountID)
}

// Remove implements remove_gift_code: only meaningful before anyone
// has claimed the code, since a claimed code's funding TXO is already
// spent regardless of whether the record survives.
func (s *Service) Remove(giftCodeB58 string) error {
	record, err := s.pl.GetGiftCode(giftCodeB58)
	if err != nil {
		return err
	}
	if record.ClaimedBlockIndex != nil {
		return walleterr.New(walleterr.GiftCodeAlreadyClaimed, giftCodeB58)
	}
	return s.pl.RemoveGiftCode(giftCodeB58)
}
