package rpc

import (
	"context"
	"encoding/json"

	"github.com/duskledger/walletd/internal/walleterr"
)

func (s *Server) requireGiftCodes() error {
	if s.gc == nil {
		return walleterr.New(walleterr.NetworkUnavailable, "gift codes disabled (running --offline)")
	}
	return nil
}

type buildGiftCodeParams struct {
	AccountID string `json:"account_id"`
	Value     string `json:"value"`
	TokenID   string `json:"token_id"`
	Memo      string `json:"memo"`
}

func (s *Server) buildGiftCode(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.requireGiftCodes(); err != nil {
		return nil, err
	}
	var p buildGiftCodeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	value, err := parseU64(p.Value)
	if err != nil {
		return nil, invalidParams(err)
	}
	tokenID, err := parseU64(p.TokenID)
	if err != nil {
		return nil, invalidParams(err)
	}
	built, err := s.gc.Build(p.AccountID, value, tokenID, p.Memo)
	if err != nil {
		return nil, err
	}
	return struct {
		GiftCodeB58      string `json:"gift_code_b58"`
		TransactionLogID string `json:"transaction_log_id"`
		Value            U64    `json:"value"`
		TokenID          U64    `json:"token_id"`
	}{
		GiftCodeB58:      built.GiftCodeB58,
		TransactionLogID: built.TransactionLogID,
		Value:            U64(built.Value),
		TokenID:          U64(built.TokenID),
	}, nil
}

type submitGiftCodeParams struct {
	TransactionLogID string `json:"transaction_log_id"`
	IdempotencyKey   string `json:"idempotency_key"`
}

func (s *Server) submitGiftCode(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.requireGiftCodes(); err != nil {
		return nil, err
	}
	var p submitGiftCodeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	log, err := s.gc.Submit(ctx, p.TransactionLogID, p.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return txLogToInfo(log), nil
}

type giftCodeB58Params struct {
	GiftCodeB58 string `json:"gift_code_b58"`
}

func (s *Server) checkGiftCodeStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.requireGiftCodes(); err != nil {
		return nil, err
	}
	var p giftCodeB58Params
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	status, value, tokenID, err := s.gc.CheckStatus(p.GiftCodeB58)
	if err != nil {
		return nil, err
	}
	return struct {
		Status  string `json:"status"`
		Value   U64    `json:"value"`
		TokenID U64    `json:"token_id"`
	}{Status: string(status), Value: U64(value), TokenID: U64(tokenID)}, nil
}

type claimGiftCodeParams struct {
	GiftCodeB58          string `json:"gift_code_b58"`
	DestinationAccountID string `json:"destination_account_id"`
	IdempotencyKey       string `json:"idempotency_key"`
}

func (s *Server) claimGiftCode(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.requireGiftCodes(); err != nil {
		return nil, err
	}
	var p claimGiftCodeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	claimed, err := s.gc.Claim(ctx, p.GiftCodeB58, p.DestinationAccountID, p.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return struct {
		TransactionLogID string `json:"transaction_log_id"`
		Value            U64    `json:"value"`
		TokenID          U64    `json:"token_id"`
	}{
		TransactionLogID: claimed.TransactionLogID,
		Value:            U64(claimed.Value),
		TokenID:          U64(claimed.TokenID),
	}, nil
}

func (s *Server) getGiftCode(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.requireGiftCodes(); err != nil {
		return nil, err
	}
	var p giftCodeB58Params
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	record, err := s.gc.Get(p.GiftCodeB58)
	if err != nil {
		return nil, err
	}
	status, _, _, err := s.gc.CheckStatus(p.GiftCodeB58)
	if err != nil {
		return nil, err
	}
	return giftCodeToInfo(record, string(status)), nil
}

func (s *Server) getGiftCodes(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.requireGiftCodes(); err != nil {
		return nil, err
	}
	var p accountIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	records, err := s.gc.List(p.AccountID)
	if err != nil {
		return nil, err
	}
	out := make([]GiftCodeInfo, 0, len(records))
	for _, r := range records {
		status, _, _, err := s.gc.CheckStatus(r.GiftCodeB58)
		if err != nil {
			return nil, err
		}
		out = append(out, giftCodeToInfo(r, string(status)))
	}
	return struct {
		GiftCodes []GiftCodeInfo `json:"gift_codes"`
	}{GiftCodes: out}, nil
}

func (s *Server) removeGiftCode(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.requireGiftCodes(); err != nil {
		return nil, err
	}
	var p giftCodeB58Params
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := s.gc.Remove(p.GiftCodeB58); err != nil {
		return nil, err
	}
	return struct {
		Removed bool `json:"removed"`
	}{Removed: true}, nil
}
