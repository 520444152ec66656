package rpc

import (
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/txlog"
	"github.com/duskledger/walletd/internal/txo"
)

// U64 marshals a uint64 as a decimal string, matching spec.md §6's
// wire contract that wallet amounts (values, fees, block indices)
// never ride as JSON numbers since those lose precision above 2^53.
type U64 uint64

func (u U64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *U64) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n uint64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return err
		}
		*u = U64(n)
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*u = U64(v)
	return nil
}

func u64p(v *uint64) *U64 {
	if v == nil {
		return nil
	}
	u := U64(*v)
	return &u
}

func parseU64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// AccountInfo is the get_account/get_accounts/create_account result shape.
type AccountInfo struct {
	AccountID           string `json:"account_id"`
	Name                string `json:"name"`
	Kind                string `json:"kind"`
	MainAddress         string `json:"main_address"`
	NextSubaddressIndex U64    `json:"next_subaddress_index"`
	FogEnabled          bool   `json:"fog_enabled"`
}

func accountToInfo(acc *persist.Account, mainAddress string) AccountInfo {
	return AccountInfo{
		AccountID:           acc.AccountID,
		Name:                acc.Name,
		Kind:                string(acc.Kind),
		MainAddress:         mainAddress,
		NextSubaddressIndex: U64(acc.NextSubaddressIndex),
		FogEnabled:          acc.FogEnabled,
	}
}

// TokenBalance mirrors one entry of an account's balance_per_token map.
type TokenBalance struct {
	Unspent    U64 `json:"unspent"`
	Pending    U64 `json:"pending"`
	Spent      U64 `json:"spent"`
	Orphaned   U64 `json:"orphaned"`
	Unverified U64 `json:"unverified"`
	Secreted   U64 `json:"secreted"`
}

func balanceToInfo(b *txo.Balance) TokenBalance {
	return TokenBalance{
		Unspent:    U64(b.Unspent),
		Pending:    U64(b.Pending),
		Spent:      U64(b.Spent),
		Orphaned:   U64(b.Orphaned),
		Unverified: U64(b.Unverified),
		Secreted:   U64(b.Secreted),
	}
}

func balancePerTokenToInfo(balances map[uint64]*txo.Balance) map[string]TokenBalance {
	out := make(map[string]TokenBalance, len(balances))
	for tokenID, b := range balances {
		out[strconv.FormatUint(tokenID, 10)] = balanceToInfo(b)
	}
	return out
}

// AccountStatusInfo is the get_account_status result shape.
type AccountStatusInfo struct {
	Account         AccountInfo             `json:"account"`
	BalancePerToken map[string]TokenBalance `json:"balance_per_token"`
	NextBlockIndex  U64                     `json:"next_block_index"`
}

// AddressInfo is one assigned subaddress as the API facade presents it.
type AddressInfo struct {
	AccountID        string `json:"account_id"`
	SubaddressIndex  U64    `json:"subaddress_index"`
	PublicAddressB58 string `json:"public_address_b58"`
	Comment          string `json:"comment,omitempty"`
}

func subaddressToInfo(sub *persist.Subaddress) AddressInfo {
	return AddressInfo{
		AccountID:        sub.AccountID,
		SubaddressIndex:  U64(sub.SubaddressIndex),
		PublicAddressB58: sub.PublicAddressB58,
		Comment:          sub.Comment,
	}
}

// TxoInfo is one TXO as the API facade presents it.
type TxoInfo struct {
	TxoID                      string  `json:"txo_id"`
	AccountID                  string  `json:"account_id"`
	Value                      U64     `json:"value"`
	TokenID                    U64     `json:"token_id"`
	Status                     string  `json:"status"`
	SubaddressIndex            *U64    `json:"subaddress_index,omitempty"`
	BlockIndex                 *U64    `json:"block_index,omitempty"`
	SpentBlockIndex            *U64    `json:"spent_block_index,omitempty"`
	ReceivedConfirmationHeight *U64    `json:"received_confirmation_height,omitempty"`
	PublicKeyHex               string  `json:"public_key_hex"`
}

func txoToInfo(t *txo.Txo) TxoInfo {
	return TxoInfo{
		TxoID:                      t.TxoID,
		AccountID:                  t.AccountID,
		Value:                      U64(t.Value),
		TokenID:                    U64(t.TokenID),
		Status:                     string(t.Status),
		SubaddressIndex:            u64p(t.SubaddressIndex),
		BlockIndex:                 u64p(t.BlockIndex),
		SpentBlockIndex:            u64p(t.SpentBlockIndex),
		ReceivedConfirmationHeight: u64p(t.ReceivedConfirmationHeight),
		PublicKeyHex:               hex.EncodeToString(t.PublicKey),
	}
}

// TransactionLogInfo is the get_transaction_log/submit_transaction result shape.
type TransactionLogInfo struct {
	TransactionLogID    string `json:"transaction_log_id"`
	AccountID           string `json:"account_id"`
	Status              string `json:"status"`
	TokenID             U64    `json:"token_id"`
	Fee                 U64    `json:"fee"`
	TombstoneBlockIndex U64    `json:"tombstone_block_index"`
	SubmittedBlockIndex *U64   `json:"submitted_block_index,omitempty"`
	FinalizedBlockIndex *U64   `json:"finalized_block_index,omitempty"`
	Comment             string `json:"comment,omitempty"`
}

func txLogToInfo(t *txlog.TransactionLog) TransactionLogInfo {
	return TransactionLogInfo{
		TransactionLogID:    t.TransactionLogID,
		AccountID:           t.AccountID,
		Status:              string(t.Status),
		TokenID:             U64(t.TokenID),
		Fee:                 U64(t.Fee),
		TombstoneBlockIndex: U64(t.TombstoneBlockIndex),
		SubmittedBlockIndex: u64p(t.SubmittedBlockIndex),
		FinalizedBlockIndex: u64p(t.FinalizedBlockIndex),
		Comment:             t.Comment,
	}
}

// BlockInfo is the get_block/get_blocks result shape.
type BlockInfo struct {
	Index       U64    `json:"index"`
	IDHex       string `json:"id_hex"`
	OutputCount int    `json:"output_count"`
	KeyImageCount int  `json:"key_image_count"`
}

func blockToInfo(b *ledger.Block) BlockInfo {
	return BlockInfo{
		Index:         U64(b.Index),
		IDHex:         hex.EncodeToString(b.ID),
		OutputCount:   len(b.Outputs),
		KeyImageCount: len(b.KeyImages),
	}
}

// NetworkStatusInfo is the get_network_status result shape.
type NetworkStatusInfo struct {
	NetworkBlockHeight U64            `json:"network_block_height"`
	LocalBlockHeight   U64            `json:"local_block_height"`
	Fees               map[string]U64 `json:"fees"`
	BlockVersion       uint32         `json:"block_version"`
}

func networkStatusToInfo(s ledger.NetworkStatus) NetworkStatusInfo {
	fees := make(map[string]U64, len(s.Fees))
	for tokenID, fee := range s.Fees {
		fees[strconv.FormatUint(tokenID, 10)] = U64(fee)
	}
	return NetworkStatusInfo{
		NetworkBlockHeight: U64(s.NetworkBlockHeight),
		LocalBlockHeight:   U64(s.LocalBlockHeight),
		Fees:               fees,
		BlockVersion:       s.BlockVersion,
	}
}

// WalletStatusInfo is the get_wallet_status result shape: the network
// snapshot plus an aggregate view across every account this process manages.
type WalletStatusInfo struct {
	NetworkStatusInfo
	IsSynced        bool                     `json:"is_synced"`
	AccountCount    int                      `json:"account_count"`
	BalancePerToken map[string]TokenBalance  `json:"balance_per_token"`
}

// GiftCodeInfo is the gift-code family's result shape.
type GiftCodeInfo struct {
	GiftCodeB58       string `json:"gift_code_b58"`
	AccountID         string `json:"account_id"`
	Value             U64    `json:"value"`
	TokenID           U64    `json:"token_id"`
	Memo              string `json:"memo,omitempty"`
	Status            string `json:"status"`
	ClaimedBlockIndex *U64   `json:"claimed_block_index,omitempty"`
}

func giftCodeToInfo(g *persist.GiftCode, status string) GiftCodeInfo {
	return GiftCodeInfo{
		GiftCodeB58:       g.GiftCodeB58,
		AccountID:         g.AccountID,
		Value:             U64(g.Value),
		TokenID:           U64(g.TokenID),
		Memo:              g.Memo,
		Status:            status,
		ClaimedBlockIndex: u64p(g.ClaimedBlockIndex),
	}
}

// AmountParam is the wire shape of an outlay amount: decimal-string
// value and token id, per spec.md §6's numeric-precision rule.
type AmountParam struct {
	Value   string `json:"value"`
	TokenID string `json:"token_id"`
}

func (a AmountParam) parse() (value, tokenID uint64, err error) {
	value, err = parseU64(a.Value)
	if err != nil {
		return 0, 0, err
	}
	if a.TokenID == "" {
		return value, 0, nil
	}
	tokenID, err = parseU64(a.TokenID)
	return value, tokenID, err
}

// publicAddressFromKeys builds a b58 public address from raw key
// bytes. No handler in this package calls it.
func publicAddressFromKeys(viewPublic, spendPublic []byte) (string, error) {
	return b58.EncodePublicAddress(b58.PublicAddress{ViewPublicKey: viewPublic, SpendPublicKey: spendPublic})
}
