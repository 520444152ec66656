package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/duskledger/walletd/internal/txo"
)

type getBlockParams struct {
	BlockIndex    string `json:"block_index"`
	TxoPublicKeyHex string `json:"txo_public_key_hex"`
}

func (s *Server) getBlock(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p getBlockParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.TxoPublicKeyHex != "" {
		key, err := hex.DecodeString(p.TxoPublicKeyHex)
		if err != nil {
			return nil, invalidParams(err)
		}
		block, err := s.ls.GetBlockByTxoPublicKey(key)
		if err != nil {
			return nil, err
		}
		return blockToInfo(block), nil
	}
	index, err := parseU64(p.BlockIndex)
	if err != nil {
		return nil, invalidParams(err)
	}
	block, err := s.ls.GetBlockByIndex(index)
	if err != nil {
		return nil, err
	}
	return blockToInfo(block), nil
}

type getBlocksParams struct {
	FromBlockIndex string `json:"from_block_index"`
	Limit          int    `json:"limit"`
}

func (s *Server) getBlocks(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p getBlocksParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	from, err := parseU64(p.FromBlockIndex)
	if err != nil {
		return nil, invalidParams(err)
	}
	limit := p.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	tail, ok := s.ls.TailIndex()
	var out []BlockInfo
	if ok {
		for idx := from; idx <= tail && len(out) < limit; idx++ {
			block, err := s.ls.GetBlockByIndex(idx)
			if err != nil {
				return nil, err
			}
			out = append(out, blockToInfo(block))
		}
	}
	return struct {
		Blocks []BlockInfo `json:"blocks"`
	}{Blocks: out}, nil
}

func (s *Server) getNetworkStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return networkStatusToInfo(s.net.NetworkStatus()), nil
}

func (s *Server) getWalletStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	netStatus := s.net.NetworkStatus()

	accs, err := s.as.ListAccounts()
	if err != nil {
		return nil, err
	}

	aggregate := make(map[uint64]*txo.Balance)
	for _, acc := range accs {
		balances, err := s.ts.BalancePerToken(acc.AccountID)
		if err != nil {
			return nil, err
		}
		for tokenID, b := range balances {
			agg, ok := aggregate[tokenID]
			if !ok {
				agg = &txo.Balance{}
				aggregate[tokenID] = agg
			}
			agg.Unspent += b.Unspent
			agg.Pending += b.Pending
			agg.Spent += b.Spent
			agg.Orphaned += b.Orphaned
			agg.Unverified += b.Unverified
			agg.Secreted += b.Secreted
		}
	}

	return WalletStatusInfo{
		NetworkStatusInfo: networkStatusToInfo(netStatus),
		IsSynced:          netStatus.LocalBlockHeight >= netStatus.NetworkBlockHeight,
		AccountCount:      len(accs),
		BalancePerToken:   balancePerTokenToInfo(aggregate),
	}, nil
}

func (s *Server) version(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return struct {
		Version string `json:"version"`
	}{Version: Version}, nil
}
