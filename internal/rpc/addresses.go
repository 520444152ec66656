package rpc

import (
	"context"
	"encoding/json"

	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/walleterr"
)

type assignAddressParams struct {
	AccountID string `json:"account_id"`
	Comment   string `json:"comment"`
}

func (s *Server) assignAddressForAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p assignAddressParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	sub, err := s.as.AssignAddressForAccount(p.AccountID, p.Comment)
	if err != nil {
		return nil, err
	}
	if err := s.ts.RecoverOrphans(p.AccountID, sub.SubaddressIndex); err != nil {
		return nil, err
	}
	return subaddressToInfo(sub), nil
}

type getAddressForAccountParams struct {
	AccountID       string `json:"account_id"`
	SubaddressIndex string `json:"subaddress_index"`
}

func (s *Server) getAddressForAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p getAddressForAccountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	index, err := parseU64(p.SubaddressIndex)
	if err != nil {
		return nil, invalidParams(err)
	}
	sub, err := s.pl.GetSubaddress(p.AccountID, index)
	if err != nil {
		return nil, err
	}
	return subaddressToInfo(sub), nil
}

func (s *Server) getAddresses(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p accountIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	subs, err := s.pl.ListSubaddresses(p.AccountID)
	if err != nil {
		return nil, err
	}
	out := make([]AddressInfo, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subaddressToInfo(sub))
	}
	return struct {
		Addresses []AddressInfo `json:"addresses"`
	}{Addresses: out}, nil
}

type b58StringParams struct {
	B58 string `json:"b58"`
}

func (s *Server) verifyAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p b58StringParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return struct {
		Valid bool `json:"valid"`
	}{Valid: b58.VerifyAddress(p.B58)}, nil
}

func (s *Server) getAddressStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p b58StringParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	sub, err := s.pl.GetSubaddressByB58(p.B58)
	if err != nil {
		if b58.VerifyAddress(p.B58) {
			return struct {
				Known bool `json:"known"`
			}{Known: false}, nil
		}
		return nil, walleterr.Wrap(walleterr.B58Decode, err)
	}
	return struct {
		Known   bool   `json:"known"`
		Address AddressInfo `json:"address"`
	}{Known: true, Address: subaddressToInfo(sub)}, nil
}

func (s *Server) checkB58Type(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p b58StringParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	t, err := b58.CheckType(p.B58)
	if err != nil {
		return nil, err
	}
	return struct {
		Type string `json:"type"`
	}{Type: t.String()}, nil
}
