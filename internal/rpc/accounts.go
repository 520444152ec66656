package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/tyler-smith/go-bip39"

	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/walleterr"
)

func (s *Server) mainAddressOf(accountID string) (string, error) {
	sub, err := s.pl.GetSubaddress(accountID, 0)
	if err != nil {
		return "", err
	}
	return sub.PublicAddressB58, nil
}

func (s *Server) accountInfo(acc *persist.Account) (AccountInfo, error) {
	mainAddr, err := s.mainAddressOf(acc.AccountID)
	if err != nil {
		return AccountInfo{}, err
	}
	return accountToInfo(acc, mainAddr), nil
}

type createAccountParams struct {
	Name string `json:"name"`
}

func (s *Server) createAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p createAccountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	accountID, mnemonic, err := s.as.CreateAccount(p.Name)
	if err != nil {
		return nil, err
	}
	acc, err := s.as.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	info, err := s.accountInfo(acc)
	if err != nil {
		return nil, err
	}
	return struct {
		Account        AccountInfo `json:"account"`
		MnemonicPhrase string      `json:"mnemonic_phrase"`
	}{Account: info, MnemonicPhrase: mnemonic}, nil
}

type importAccountParams struct {
	Mnemonic     string `json:"mnemonic"`
	AccountIndex uint32 `json:"account_index"`
	Name         string `json:"name"`
}

func (s *Server) importAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p importAccountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	accountID, err := s.as.ImportAccount(p.Name, p.Mnemonic, p.AccountIndex)
	if err != nil {
		return nil, err
	}
	acc, err := s.as.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	return s.accountInfo(acc)
}

type importLegacyParams struct {
	RootEntropyHex string `json:"root_entropy_hex"`
	AccountIndex   uint32 `json:"account_index"`
	Name           string `json:"name"`
}

func (s *Server) importAccountFromLegacyRootEntropy(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p importLegacyParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	entropy, err := hex.DecodeString(p.RootEntropyHex)
	if err != nil {
		return nil, invalidParams(err)
	}
	accountID, err := s.as.ImportAccountFromLegacyRootEntropy(p.Name, entropy, p.AccountIndex)
	if err != nil {
		return nil, err
	}
	acc, err := s.as.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	return s.accountInfo(acc)
}

type importViewOnlyParams struct {
	ViewPrivateKeyHex string `json:"view_private_key_hex"`
	SpendPublicKeyHex string `json:"spend_public_key_hex"`
	Name              string `json:"name"`
}

func (s *Server) importViewOnlyAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p importViewOnlyParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	viewPrivBytes, err := hex.DecodeString(p.ViewPrivateKeyHex)
	if err != nil {
		return nil, invalidParams(err)
	}
	spendPubBytes, err := hex.DecodeString(p.SpendPublicKeyHex)
	if err != nil {
		return nil, invalidParams(err)
	}
	viewPriv, err := cryptoiface.NewScalarFromBytes(viewPrivBytes)
	if err != nil {
		return nil, invalidParams(err)
	}
	spendPub, err := cryptoiface.NewPointFromBytes(spendPubBytes)
	if err != nil {
		return nil, invalidParams(err)
	}
	accountID, err := s.as.ImportViewOnlyAccount(p.Name, viewPriv, spendPub)
	if err != nil {
		return nil, err
	}
	acc, err := s.as.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	return s.accountInfo(acc)
}

type accountIDParams struct {
	AccountID string `json:"account_id"`
}

func (s *Server) getAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p accountIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	acc, err := s.as.GetAccount(p.AccountID)
	if err != nil {
		return nil, err
	}
	return s.accountInfo(acc)
}

func (s *Server) getAccounts(ctx context.Context, params json.RawMessage) (interface{}, error) {
	accs, err := s.as.ListAccounts()
	if err != nil {
		return nil, err
	}
	out := make([]AccountInfo, 0, len(accs))
	for _, acc := range accs {
		info, err := s.accountInfo(acc)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return struct {
		Accounts []AccountInfo `json:"accounts"`
	}{Accounts: out}, nil
}

func (s *Server) getAccountStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p accountIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	acc, err := s.as.GetAccount(p.AccountID)
	if err != nil {
		return nil, err
	}
	info, err := s.accountInfo(acc)
	if err != nil {
		return nil, err
	}
	balances, err := s.ts.BalancePerToken(p.AccountID)
	if err != nil {
		return nil, err
	}
	return AccountStatusInfo{
		Account:         info,
		BalancePerToken: balancePerTokenToInfo(balances),
		NextBlockIndex:  U64(acc.NextBlockIndex),
	}, nil
}

type updateAccountNameParams struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
}

func (s *Server) updateAccountName(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p updateAccountNameParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := s.as.UpdateAccountName(p.AccountID, p.Name); err != nil {
		return nil, err
	}
	acc, err := s.as.GetAccount(p.AccountID)
	if err != nil {
		return nil, err
	}
	return s.accountInfo(acc)
}

func (s *Server) removeAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p accountIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := s.as.RemoveAccount(p.AccountID); err != nil {
		return nil, err
	}
	return struct {
		Removed bool `json:"removed"`
	}{Removed: true}, nil
}

func (s *Server) exportAccountSecrets(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p accountIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	acc, err := s.as.GetAccount(p.AccountID)
	if err != nil {
		return nil, err
	}
	entropy, err := s.as.ExportAccountSecrets(p.AccountID)
	if err != nil {
		return nil, err
	}

	result := struct {
		EntropyHex           string `json:"entropy_hex"`
		MnemonicPhrase       string `json:"mnemonic_phrase,omitempty"`
		KeyDerivationVersion int    `json:"key_derivation_version"`
	}{
		EntropyHex:           hex.EncodeToString(entropy),
		KeyDerivationVersion: acc.KeyDerivationVersion,
	}
	if acc.KeyDerivationVersion == 2 {
		phrase, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.InvalidMnemonic, err)
		}
		result.MnemonicPhrase = phrase
	}
	return result, nil
}
