// Package txbuilder implements the Transaction Builder (TB): proposal
// assembly from outlays through input selection, ring construction,
// output construction and (for full accounts) signing, generalizing
// the teacher's internal/wallet.selectAddressUTXOs greedy input
// selection to a ring-signed, multi-token UTXO model.
package txbuilder

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/txo"
	"github.com/duskledger/walletd/internal/walleterr"
)

// RingSize is the total anonymity set size per input (the real input
// plus RingSize-1 decoys), the "default 10" decoy count from spec.md
// §4.7 step 4.
const RingSize = 11

// maxInputs is the per-transaction input-ring cap.
const maxInputs = 16

// defaultTombstoneWindow and fogTombstoneWindow bound how many blocks
// into the future a proposal remains valid.
const (
	defaultTombstoneWindow = 50
	fogTombstoneWindow     = 10
)

// Outlay is one requested payment: a recipient address and an amount.
type Outlay struct {
	RecipientB58 string
	Value        uint64
	TokenID      uint64
}

// BuildParams is the Builder's input, matching spec.md §4.7's listed
// fields.
type BuildParams struct {
	AccountID          string
	Outlays            []Outlay
	FeeOverride        *uint64
	TombstoneOverride  *uint64
	TokenID            *uint64
	InputTxoIDs        []string
	SpendSubaddress    *uint64
	Comment            string
}

// NetworkInfo is the subset of ledger.SyncEngine the builder consumes.
type NetworkInfo interface {
	NetworkStatus() ledger.NetworkStatus
}

// Proposal is the Builder's output: everything persisted as a
// TransactionLog plus the pieces the API facade and signer need.
type Proposal struct {
	TransactionLogID    string
	AccountID           string
	InputTxoIDs         []string
	PayloadTxoIDs       []string
	ChangeTxoIDs        []string
	Fee                 uint64
	FeeTokenID          uint64
	TombstoneBlockIndex uint64
	RawTransaction      []byte
	Unsigned            bool
	Confirmations       map[string][]byte // txo_id -> confirmation number, payload outputs only
}

// Builder assembles transaction proposals.
type Builder struct {
	pl  *persist.Store
	as  *account.Store
	ts  *txo.Store
	ls  *ledger.Store
	net NetworkInfo

	commitments  cryptoiface.Commitments
	rangeProver  cryptoiface.RangeProver
	ringSigner   cryptoiface.RingSigner
	amountMasker cryptoiface.AmountMasker
}

// New constructs a Builder over the given component handles.
func New(pl *persist.Store, as *account.Store, ts *txo.Store, ls *ledger.Store, net NetworkInfo) *Builder {
	return &Builder{
		pl:           pl,
		as:           as,
		ts:           ts,
		ls:           ls,
		net:          net,
		commitments:  cryptoiface.NewCommitments(),
		rangeProver:  cryptoiface.NewRangeProver(),
		ringSigner:   cryptoiface.NewRingSigner(),
		amountMasker: cryptoiface.NewAmountMasker(),
	}
}

// plannedOutput is one output the builder is about to mint: either a
// payload output to an outlay recipient or the change output.
type plannedOutput struct {
	recipient   b58.PublicAddress
	recipientB58 string
	value       uint64
	isChange    bool
}

// Build runs the full algorithm from spec.md §4.7 steps 1-8. For full
// accounts the returned Proposal carries a signed raw transaction; for
// view-only accounts it carries an unsigned one (Proposal.Unsigned).
func (b *Builder) Build(params BuildParams) (*Proposal, error) {
	acc, err := b.as.GetAccount(params.AccountID)
	if err != nil {
		return nil, err
	}

	tokenID, err := resolveTokenID(params)
	if err != nil {
		return nil, err
	}

	status := b.net.NetworkStatus()

	plannedOutputs, err := planOutputs(params)
	if err != nil {
		return nil, err
	}

	tombstone, err := resolveTombstone(params, status.NetworkBlockHeight, plannedOutputs)
	if err != nil {
		return nil, err
	}

	fee, err := resolveFee(params, status.Fees, tokenID)
	if err != nil {
		return nil, err
	}

	var outlayTotal uint64
	for _, o := range params.Outlays {
		outlayTotal += o.Value
	}

	inputs, inputTotal, err := b.selectInputs(params, tokenID, outlayTotal+fee)
	if err != nil {
		return nil, err
	}

	change := inputTotal - outlayTotal - fee
	changeSub := uint64(1) // the reserved change subaddress
	if params.SpendSubaddress != nil {
		changeSub = *params.SpendSubaddress
	}
	changeSubaddr, err := b.pl.GetSubaddress(acc.AccountID, changeSub)
	if err != nil {
		return nil, err
	}
	if change > 0 {
		changeAddr, err := b58.DecodePublicAddress(changeSubaddr.PublicAddressB58)
		if err != nil {
			return nil, fmt.Errorf("decode change address: %w", err)
		}
		plannedOutputs = append(plannedOutputs, plannedOutput{
			recipient:    changeAddr,
			recipientB58: changeSubaddr.PublicAddressB58,
			value:        change,
			isChange:     true,
		})
	}

	mainSub, err := b.pl.GetSubaddress(acc.AccountID, 0)
	if err != nil {
		return nil, err
	}
	senderSpendPublic, err := cryptoiface.NewPointFromBytes(acc.SpendPublicKey)
	if err != nil {
		return nil, err
	}
	built, rangeProof, err := b.buildOutputs(tokenID, plannedOutputs, memoParams{
		senderSpendPublic: senderSpendPublic,
		senderAddressB58:  mainSub.PublicAddressB58,
		numRecipients:     uint64(len(params.Outlays)),
		fee:               fee,
		totalOutlay:       outlayTotal,
	})
	if err != nil {
		return nil, err
	}

	ringSets, err := b.buildRings(inputs, status.NetworkBlockHeight)
	if err != nil {
		return nil, err
	}

	proposalID := proposalID(acc.AccountID, inputs, built, tombstone)

	var rawTx []byte
	unsigned := acc.Kind != persist.AccountKindFull
	if unsigned {
		rawTx, err = buildUnsignedTransaction(proposalID, inputs, ringSets, built, rangeProof, fee, tokenID)
	} else {
		rawTx, err = b.sign(acc, inputs, ringSets, built, rangeProof, fee, tokenID, proposalID)
	}
	if err != nil {
		return nil, err
	}

	var inputTxoIDs []string
	for _, t := range inputs {
		inputTxoIDs = append(inputTxoIDs, t.TxoID)
	}

	var outputLinks []persist.OutputLink
	var payloadIDs, changeIDs []string
	confirmations := make(map[string][]byte)
	for i, out := range built {
		outputLinks = append(outputLinks, persist.OutputLink{
			TransactionLogID:          proposalID,
			TxoID:                     out.txoID,
			RecipientPublicAddressB58: plannedOutputs[i].recipientB58,
			IsChange:                  plannedOutputs[i].isChange,
			ConfirmationNumber:        out.confirmation,
		})
		if plannedOutputs[i].isChange {
			changeIDs = append(changeIDs, out.txoID)
		} else {
			payloadIDs = append(payloadIDs, out.txoID)
			confirmations[out.txoID] = out.confirmation
		}

		secretTxo := persist.Txo{
			TxoID:        out.txoID,
			AccountID:    acc.AccountID,
			PublicKey:    out.txPublicKey,
			TargetKey:    out.targetKey,
			Value:        plannedOutputs[i].value,
			TokenID:      tokenID,
			SharedSecret: out.sharedSecret,
			IsSecreted:   !plannedOutputs[i].isChange,
			CreatedAt:    time.Now(),
		}
		if plannedOutputs[i].isChange {
			idx := changeSub
			secretTxo.SubaddressIndex = &idx
		}
		if err := b.pl.InsertTxo(secretTxo); err != nil {
			return nil, err
		}
		if out.memo != nil {
			memo := *out.memo
			memo.TxoID = out.txoID
			if err := b.pl.InsertMemo(memo); err != nil {
				return nil, err
			}
		}
	}

	log := persist.TransactionLog{
		TransactionLogID:    proposalID,
		AccountID:            acc.AccountID,
		TokenID:              tokenID,
		Fee:                  fee,
		TombstoneBlockIndex:  tombstone,
		Comment:              params.Comment,
		RawTransaction:       rawTx,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	if err := b.pl.InsertTransactionLog(log, inputTxoIDs, outputLinks); err != nil {
		return nil, err
	}

	return &Proposal{
		TransactionLogID:    proposalID,
		AccountID:           acc.AccountID,
		InputTxoIDs:         inputTxoIDs,
		PayloadTxoIDs:       payloadIDs,
		ChangeTxoIDs:        changeIDs,
		Fee:                 fee,
		FeeTokenID:          tokenID,
		TombstoneBlockIndex: tombstone,
		RawTransaction:      rawTx,
		Unsigned:            unsigned,
		Confirmations:       confirmations,
	}, nil
}

func resolveTokenID(params BuildParams) (uint64, error) {
	if params.TokenID != nil {
		return *params.TokenID, nil
	}
	if len(params.Outlays) == 0 {
		return 0, walleterr.New(walleterr.InvalidParams, "no outlays")
	}
	tokenID := params.Outlays[0].TokenID
	for _, o := range params.Outlays[1:] {
		if o.TokenID != tokenID {
			return 0, walleterr.New(walleterr.MixedTokenOutlays, "")
		}
	}
	return tokenID, nil
}

func planOutputs(params BuildParams) ([]plannedOutput, error) {
	var out []plannedOutput
	for _, o := range params.Outlays {
		addr, err := b58.DecodePublicAddress(o.RecipientB58)
		if err != nil {
			return nil, err
		}
		out = append(out, plannedOutput{recipient: addr, recipientB58: o.RecipientB58, value: o.Value})
	}
	return out, nil
}

func resolveTombstone(params BuildParams, networkHeight uint64, outputs []plannedOutput) (uint64, error) {
	if params.TombstoneOverride != nil {
		if *params.TombstoneOverride <= networkHeight {
			return 0, walleterr.New(walleterr.TombstoneExpired, fmt.Sprintf("tombstone %d <= network height %d", *params.TombstoneOverride, networkHeight))
		}
		return *params.TombstoneOverride, nil
	}
	window := uint64(defaultTombstoneWindow)
	for _, o := range outputs {
		if o.recipient.FogReportURL != "" {
			window = fogTombstoneWindow
			break
		}
	}
	return networkHeight + window, nil
}

func resolveFee(params BuildParams, fees map[uint64]uint64, tokenID uint64) (uint64, error) {
	minFee := fees[tokenID]
	if params.FeeOverride != nil {
		if *params.FeeOverride < minFee {
			return 0, walleterr.New(walleterr.FeeBelowMinimum, fmt.Sprintf("fee %d below minimum %d", *params.FeeOverride, minFee))
		}
		return *params.FeeOverride, nil
	}
	return minFee, nil
}

// selectInputs implements spec.md §4.7 step 2: largest-first until the
// threshold is met (capped at 16), then opportunistic smallest-first
// defragmentation fill up to the same cap.
func (b *Builder) selectInputs(params BuildParams, tokenID uint64, required uint64) ([]*persist.Txo, uint64, error) {
	var candidates []*persist.Txo
	var err error
	if len(params.InputTxoIDs) > 0 {
		for _, id := range params.InputTxoIDs {
			t, err := b.pl.GetTxo(id)
			if err != nil {
				return nil, 0, err
			}
			candidates = append(candidates, t)
		}
	} else {
		candidates, err = b.ts.SpendableCandidates(params.AccountID, tokenID)
		if err != nil {
			return nil, 0, err
		}
	}

	if params.SpendSubaddress != nil {
		var restricted []*persist.Txo
		for _, t := range candidates {
			if t.SubaddressIndex != nil && *t.SubaddressIndex == *params.SpendSubaddress {
				restricted = append(restricted, t)
			}
		}
		candidates = restricted
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Value > candidates[j].Value })

	var selected []*persist.Txo
	var total uint64
	var lastIdx int
	for lastIdx = 0; lastIdx < len(candidates) && len(selected) < maxInputs; lastIdx++ {
		selected = append(selected, candidates[lastIdx])
		total += candidates[lastIdx].Value
		if total >= required {
			lastIdx++
			break
		}
	}
	if total < required {
		return nil, 0, walleterr.New(walleterr.InsufficientFunds, "").WithDetails(map[string]interface{}{
			"available": total,
			"required":  required,
			"token_id":  tokenID,
		})
	}

	// Opportunistic defragmentation: fill remaining slots with the
	// smallest untouched candidates.
	remaining := candidates[lastIdx:]
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].Value < remaining[j].Value })
	for _, t := range remaining {
		if len(selected) >= maxInputs {
			break
		}
		selected = append(selected, t)
		total += t.Value
	}

	return selected, total, nil
}

// txoIDFromPublicKey derives a TXO's content-addressed id from its
// published tx public key, matching the scanner's own id derivation so
// a minted output and its later-scanned receipt (for the sender's own
// change) resolve to the same row.
func txoIDFromPublicKey(publicKey []byte) string {
	h := sha256.Sum256(publicKey)
	return hex.EncodeToString(h[:])
}

func proposalID(accountID string, inputs []*persist.Txo, outputs []builtOutput, tombstone uint64) string {
	h := sha256.New()
	h.Write([]byte(accountID))
	for _, t := range inputs {
		h.Write([]byte(t.TxoID))
	}
	for _, o := range outputs {
		h.Write(o.txPublicKey)
	}
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(tombstone >> (8 * i))
	}
	h.Write(buf)
	// Salt with fresh randomness: a proposal that reselects the same
	// inputs/outputs/tombstone for a retried build must still get a
	// distinct id, since the id is also the idempotency-adjacent
	// content address the signer and submission pipeline key off of.
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	h.Write(salt)
	return hex.EncodeToString(h.Sum(nil))
}
