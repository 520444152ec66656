package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/txbuilder"
	"github.com/duskledger/walletd/internal/txlog"
	"github.com/duskledger/walletd/internal/txo"
	"github.com/duskledger/walletd/internal/walleterr"
)

// outlayParam is one requested payment leg on the wire.
type outlayParam struct {
	RecipientB58 string `json:"recipient_public_address_b58"`
	Value        string `json:"value"`
	TokenID      string `json:"token_id"`
}

func (o outlayParam) parse() (txbuilder.Outlay, error) {
	value, err := parseU64(o.Value)
	if err != nil {
		return txbuilder.Outlay{}, err
	}
	tokenID, err := parseU64(o.TokenID)
	if err != nil {
		return txbuilder.Outlay{}, err
	}
	return txbuilder.Outlay{RecipientB58: o.RecipientB58, Value: value, TokenID: tokenID}, nil
}

type buildTransactionParams struct {
	AccountID         string        `json:"account_id"`
	Outlays           []outlayParam `json:"outlays"`
	FeeOverride       string        `json:"fee_override,omitempty"`
	TombstoneOverride string        `json:"tombstone_block_index,omitempty"`
	TokenID           string        `json:"token_id,omitempty"`
	InputTxoIDs       []string      `json:"input_txo_ids,omitempty"`
	SpendSubaddress   string        `json:"spend_subaddress_index,omitempty"`
	Comment           string        `json:"comment,omitempty"`
}

func (p buildTransactionParams) toBuildParams() (txbuilder.BuildParams, error) {
	bp := txbuilder.BuildParams{
		AccountID:   p.AccountID,
		InputTxoIDs: p.InputTxoIDs,
		Comment:     p.Comment,
	}
	for _, o := range p.Outlays {
		outlay, err := o.parse()
		if err != nil {
			return bp, err
		}
		bp.Outlays = append(bp.Outlays, outlay)
	}
	if p.FeeOverride != "" {
		v, err := parseU64(p.FeeOverride)
		if err != nil {
			return bp, err
		}
		bp.FeeOverride = &v
	}
	if p.TombstoneOverride != "" {
		v, err := parseU64(p.TombstoneOverride)
		if err != nil {
			return bp, err
		}
		bp.TombstoneOverride = &v
	}
	if p.TokenID != "" {
		v, err := parseU64(p.TokenID)
		if err != nil {
			return bp, err
		}
		bp.TokenID = &v
	}
	if p.SpendSubaddress != "" {
		v, err := parseU64(p.SpendSubaddress)
		if err != nil {
			return bp, err
		}
		bp.SpendSubaddress = &v
	}
	return bp, nil
}

func proposalResult(proposal *txbuilder.Proposal) interface{} {
	return struct {
		TransactionLogID    string `json:"transaction_log_id"`
		RawTransactionHex   string `json:"raw_transaction_hex"`
		Fee                 U64    `json:"fee"`
		FeeTokenID          U64    `json:"fee_token_id"`
		TombstoneBlockIndex U64    `json:"tombstone_block_index"`
		Unsigned            bool   `json:"unsigned"`
	}{
		TransactionLogID:    proposal.TransactionLogID,
		RawTransactionHex:   hex.EncodeToString(proposal.RawTransaction),
		Fee:                 U64(proposal.Fee),
		FeeTokenID:          U64(proposal.FeeTokenID),
		TombstoneBlockIndex: U64(proposal.TombstoneBlockIndex),
		Unsigned:            proposal.Unsigned,
	}
}

func (s *Server) buildTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p buildTransactionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	bp, err := p.toBuildParams()
	if err != nil {
		return nil, invalidParams(err)
	}
	proposal, err := s.tb.Build(bp)
	if err != nil {
		return nil, err
	}
	return proposalResult(proposal), nil
}

// buildUnsignedTransaction is build_transaction's explicit counterpart
// for a view-only account: it runs the identical proposal assembly
// (internal/txbuilder.Build already produces an unsigned raw
// transaction whenever the account cannot sign locally) but rejects a
// full account's result, since a caller reaching for this method
// specifically wants a payload to hand to an external signer.
func (s *Server) buildUnsignedTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p buildTransactionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	bp, err := p.toBuildParams()
	if err != nil {
		return nil, invalidParams(err)
	}
	proposal, err := s.tb.Build(bp)
	if err != nil {
		return nil, err
	}
	if !proposal.Unsigned {
		return nil, walleterr.New(walleterr.ViewOnlyOperationNotPermitted, "account can sign locally; use build_transaction")
	}
	return proposalResult(proposal), nil
}

type submitTransactionParams struct {
	TransactionLogID       string `json:"transaction_log_id"`
	SignedRawTransactionHex string `json:"signed_raw_transaction_hex,omitempty"`
	IdempotencyKey          string `json:"idempotency_key,omitempty"`
}

func (s *Server) submitTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.sp == nil {
		return nil, walleterr.New(walleterr.NetworkUnavailable, "submission pipeline disabled (running --offline)")
	}
	var p submitTransactionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.SignedRawTransactionHex != "" {
		raw, err := hex.DecodeString(p.SignedRawTransactionHex)
		if err != nil {
			return nil, invalidParams(err)
		}
		if err := s.pl.UpdateRawTransaction(p.TransactionLogID, raw); err != nil {
			return nil, err
		}
	}
	log, err := s.sp.Submit(ctx, p.TransactionLogID, p.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return txLogToInfo(log), nil
}

type buildAndSubmitTransactionParams struct {
	buildTransactionParams
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (s *Server) buildAndSubmitTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.sp == nil {
		return nil, walleterr.New(walleterr.NetworkUnavailable, "submission pipeline disabled (running --offline)")
	}
	var p buildAndSubmitTransactionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	bp, err := p.toBuildParams()
	if err != nil {
		return nil, invalidParams(err)
	}
	proposal, err := s.tb.Build(bp)
	if err != nil {
		return nil, err
	}
	if proposal.Unsigned {
		return nil, walleterr.New(walleterr.ViewOnlyOperationNotPermitted, "view-only account cannot submit without an externally signed transaction")
	}
	log, err := s.sp.Submit(ctx, proposal.TransactionLogID, p.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return txLogToInfo(log), nil
}

type buildSplitTxoTransactionParams struct {
	AccountID   string `json:"account_id"`
	TxoID       string `json:"txo_id"`
	OutputCount int    `json:"output_count"`
}

// buildSplitTxoTransaction spends one TXO back to its own account split
// across output_count equal-sized outputs, the defragmentation move
// that lets a later build_transaction draw on more, smaller inputs.
func (s *Server) buildSplitTxoTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p buildSplitTxoTransactionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.OutputCount < 2 {
		return nil, walleterr.New(walleterr.InvalidParams, "output_count must be at least 2")
	}

	source, err := s.ts.Get(p.TxoID)
	if err != nil {
		return nil, err
	}
	mainAddr, err := s.mainAddressOf(p.AccountID)
	if err != nil {
		return nil, err
	}

	fee := s.net.NetworkStatus().Fees[source.TokenID]
	if source.Value <= fee {
		return nil, walleterr.New(walleterr.InsufficientFunds, "txo value does not cover the minimum fee")
	}
	perOutput := (source.Value - fee) / uint64(p.OutputCount)
	if perOutput == 0 {
		return nil, walleterr.New(walleterr.InsufficientFunds, "txo value too small to split into output_count outputs")
	}

	bp := txbuilder.BuildParams{
		AccountID:   p.AccountID,
		InputTxoIDs: []string{p.TxoID},
		TokenID:     &source.TokenID,
		FeeOverride: &fee,
		Comment:     "split txo",
	}
	for i := 0; i < p.OutputCount; i++ {
		bp.Outlays = append(bp.Outlays, txbuilder.Outlay{RecipientB58: mainAddr, Value: perOutput, TokenID: source.TokenID})
	}

	proposal, err := s.tb.Build(bp)
	if err != nil {
		return nil, err
	}
	return proposalResult(proposal), nil
}

type txoIDParams struct {
	TxoID string `json:"txo_id"`
}

func (s *Server) getTxo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p txoIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	t, err := s.ts.Get(p.TxoID)
	if err != nil {
		return nil, err
	}
	return txoToInfo(t), nil
}

type getTxosParams struct {
	AccountID string `json:"account_id"`
	TokenID   string `json:"token_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

func (s *Server) getTxos(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p getTxosParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	var f txo.ListFilter
	if p.TokenID != "" {
		v, err := parseU64(p.TokenID)
		if err != nil {
			return nil, invalidParams(err)
		}
		f.TokenID = &v
	}
	if p.Status != "" {
		st := txo.Status(p.Status)
		f.Status = &st
	}
	f.Limit = p.Limit
	f.Offset = p.Offset

	txos, err := s.ts.List(p.AccountID, f)
	if err != nil {
		return nil, err
	}
	out := make([]TxoInfo, 0, len(txos))
	for _, t := range txos {
		out = append(out, txoToInfo(t))
	}
	return struct {
		Txos []TxoInfo `json:"txos"`
	}{Txos: out}, nil
}

type transactionLogIDParams struct {
	TransactionLogID string `json:"transaction_log_id"`
}

func (s *Server) getConfirmations(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p transactionLogIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	links, err := s.tls.OutputLinks(p.TransactionLogID)
	if err != nil {
		return nil, err
	}
	type confirmation struct {
		TxoID              string `json:"txo_id"`
		ConfirmationNumberHex string `json:"confirmation_number_hex"`
	}
	var out []confirmation
	for _, l := range links {
		if l.IsChange || len(l.ConfirmationNumber) == 0 {
			continue
		}
		out = append(out, confirmation{TxoID: l.TxoID, ConfirmationNumberHex: hex.EncodeToString(l.ConfirmationNumber)})
	}
	return struct {
		Confirmations []confirmation `json:"confirmations"`
	}{Confirmations: out}, nil
}

type validateConfirmationParams struct {
	TxoID                 string `json:"txo_id"`
	ConfirmationNumberHex string `json:"confirmation_number_hex"`
}

func (s *Server) validateConfirmation(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p validateConfirmationParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	claimed, err := hex.DecodeString(p.ConfirmationNumberHex)
	if err != nil {
		return nil, invalidParams(err)
	}
	t, err := s.ts.Get(p.TxoID)
	if err != nil {
		return nil, err
	}
	if len(t.SharedSecret) == 0 {
		return struct {
			Validated bool `json:"validated"`
		}{Validated: false}, nil
	}
	sharedSecret, err := cryptoiface.NewPointFromBytes(t.SharedSecret)
	if err != nil {
		return nil, err
	}
	expected := cryptoiface.ConfirmationNumber(sharedSecret, t.TargetKey)
	validated := len(expected) == len(claimed)
	if validated {
		for i := range expected {
			if expected[i] != claimed[i] {
				validated = false
				break
			}
		}
	}
	return struct {
		Validated bool `json:"validated"`
	}{Validated: validated}, nil
}

type validateSenderMemoParams struct {
	TxoID                  string `json:"txo_id"`
	SenderPublicAddressB58 string `json:"sender_public_address_b58"`
}

// validateSenderMemo checks a claimed sender's public address against
// the Authenticated Sender Memo composed for a received payload output
// (spec.md §Glossary): the memo's address hash must match the claim,
// and the HMAC over the claimed sender's spend public key, keyed by
// the output's shared secret, must verify.
func (s *Server) validateSenderMemo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p validateSenderMemoParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}

	notValidated := struct {
		Validated bool `json:"validated"`
	}{Validated: false}

	t, err := s.ts.Get(p.TxoID)
	if err != nil {
		return nil, err
	}
	memo, err := s.pl.GetMemoByTxo(p.TxoID)
	if err != nil {
		return nil, err
	}
	if memo == nil || memo.Kind != persist.MemoKindAuthenticatedSender || len(t.SharedSecret) == 0 {
		return notValidated, nil
	}

	addr, err := b58.DecodePublicAddress(p.SenderPublicAddressB58)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.B58Decode, err)
	}
	if !bytes.Equal(memo.AddressHash, cryptoiface.AddressHash(p.SenderPublicAddressB58)) {
		return notValidated, nil
	}

	sharedSecret, err := cryptoiface.NewPointFromBytes(t.SharedSecret)
	if err != nil {
		return nil, err
	}
	senderSpendPublic, err := cryptoiface.NewPointFromBytes(addr.SpendPublicKey)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.B58Decode, err)
	}

	valid := cryptoiface.VerifySenderMemoHMAC(sharedSecret, senderSpendPublic, memo.HMAC)
	return struct {
		Validated bool `json:"validated"`
	}{Validated: valid}, nil
}

type createPaymentRequestParams struct {
	PublicAddressB58 string `json:"public_address_b58"`
	Value            string `json:"value"`
	TokenID          string `json:"token_id"`
	Memo             string `json:"memo,omitempty"`
}

func (s *Server) createPaymentRequest(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p createPaymentRequestParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	addr, err := b58.DecodePublicAddress(p.PublicAddressB58)
	if err != nil {
		return nil, err
	}
	value, err := parseU64(p.Value)
	if err != nil {
		return nil, invalidParams(err)
	}
	tokenID, err := parseU64(p.TokenID)
	if err != nil {
		return nil, invalidParams(err)
	}
	encoded, err := b58.EncodePaymentRequest(b58.PaymentRequest{
		Address: addr,
		Value:   value,
		TokenID: tokenID,
		Memo:    p.Memo,
	})
	if err != nil {
		return nil, err
	}
	return struct {
		PaymentRequestB58 string `json:"payment_request_b58"`
	}{PaymentRequestB58: encoded}, nil
}

type receiptInfo struct {
	RecipientPublicAddressB58 string `json:"recipient_public_address_b58"`
	TxoPublicKeyHex           string `json:"txo_public_key_hex"`
	ConfirmationNumberHex     string `json:"confirmation_number_hex"`
	TombstoneBlockIndex       U64    `json:"tombstone_block_index"`
}

func (s *Server) createReceiverReceipts(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p transactionLogIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	log, err := s.tls.Get(p.TransactionLogID)
	if err != nil {
		return nil, err
	}
	links, err := s.tls.OutputLinks(p.TransactionLogID)
	if err != nil {
		return nil, err
	}

	var out []receiptInfo
	for _, l := range links {
		if l.IsChange {
			continue
		}
		t, err := s.ts.Get(l.TxoID)
		if err != nil {
			return nil, err
		}
		out = append(out, receiptInfo{
			RecipientPublicAddressB58: l.RecipientPublicAddressB58,
			TxoPublicKeyHex:           hex.EncodeToString(t.PublicKey),
			ConfirmationNumberHex:     hex.EncodeToString(l.ConfirmationNumber),
			TombstoneBlockIndex:       U64(log.TombstoneBlockIndex),
		})
	}
	return struct {
		Receipts []receiptInfo `json:"receipts"`
	}{Receipts: out}, nil
}

type checkReceiverReceiptStatusParams struct {
	Receipts []receiptInfo `json:"receipts"`
}

func (s *Server) checkReceiverReceiptStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p checkReceiverReceiptStatusParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	networkHeight := s.net.NetworkStatus().NetworkBlockHeight

	type result struct {
		TxoPublicKeyHex string `json:"txo_public_key_hex"`
		Status          string `json:"status"`
	}
	var out []result
	for _, r := range p.Receipts {
		key, err := hex.DecodeString(r.TxoPublicKeyHex)
		if err != nil {
			return nil, invalidParams(err)
		}
		status := "pending"
		if _, err := s.ls.GetBlockByTxoPublicKey(key); err == nil {
			status = "confirmed"
		} else if uint64(r.TombstoneBlockIndex) <= networkHeight {
			status = "expired"
		}
		out = append(out, result{TxoPublicKeyHex: r.TxoPublicKeyHex, Status: status})
	}
	return struct {
		Receipts []result `json:"receipts"`
	}{Receipts: out}, nil
}

func (s *Server) getTransactionLog(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p transactionLogIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	t, err := s.tls.Get(p.TransactionLogID)
	if err != nil {
		return nil, err
	}
	return txLogToInfo(t), nil
}

type getTransactionLogsParams struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

func (s *Server) getTransactionLogs(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p getTransactionLogsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	var statusPtr *txlog.Status
	if p.Status != "" {
		st := txlog.Status(p.Status)
		statusPtr = &st
	}

	logs, err := s.tls.ListByAccount(p.AccountID, statusPtr, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionLogInfo, 0, len(logs))
	for _, l := range logs {
		out = append(out, txLogToInfo(l))
	}
	return struct {
		TransactionLogs []TransactionLogInfo `json:"transaction_logs"`
	}{TransactionLogs: out}, nil
}
