// Package signer implements the wire contract spec.md §6 assigns to
// the offline signer co-process, plus an in-process reference
// implementation so the view-only round trip (spec.md §8 scenario 4)
// is fully exercised without spawning a separate binary. A production
// deployment runs this logic in a physically separate, air-gapped
// process that never transmits a spend private key; this package
// keeps the same operation boundary so swapping in a real out-of-process
// signer later changes only the transport, not the protocol.
package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/txbuilder"
	"github.com/duskledger/walletd/internal/walleterr"
)

// txoIDFromPublicKey mirrors internal/txbuilder's own content-addressed
// id derivation so a TXO the wallet scanned and asked this signer to
// confirm resolves to the same id the builder and scanner use.
func txoIDFromPublicKey(publicKey []byte) string {
	h := sha256.Sum256(publicKey)
	return hex.EncodeToString(h[:])
}

// registration is the full key material the signer retains for one
// account it created or was told about — exactly what a real offline
// signer keeps that a view-only wallet process never receives.
type registration struct {
	keys *account.Keys
}

// Signer holds full account key material out-of-band from the wallet
// service's own (view-only-capable) persistence layer. Every operation
// here except ImportFromMnemonic maps 1:1 to one of the five signer
// operations spec.md §6 lists.
type Signer struct {
	mu        sync.RWMutex
	accounts  map[string]*registration
	ringSigner cryptoiface.RingSigner
}

// New constructs an empty signer registry.
func New() *Signer {
	return &Signer{
		accounts:   make(map[string]*registration),
		ringSigner: cryptoiface.NewRingSigner(),
	}
}

// CreatedAccount is the result of the signer's "create-account"
// operation.
type CreatedAccount struct {
	Mnemonic  string
	AccountID string
}

// CreateAccount generates a fresh full account entirely within the
// signer's own custody and returns only the mnemonic and the account_id
// the wallet will compute when it later imports the view-only half —
// the spend private key itself never leaves this struct.
func (s *Signer) CreateAccount(name string) (*CreatedAccount, error) {
	phrase, err := account.GenerateMnemonic()
	if err != nil {
		return nil, err
	}
	keys, _, _, err := account.KeysFromMnemonic(phrase, 0)
	if err != nil {
		return nil, err
	}
	id := account.DeriveAccountID(keys.ViewPublic.Bytes(), keys.SpendPublic.Bytes())

	s.mu.Lock()
	s.accounts[id] = &registration{keys: keys}
	s.mu.Unlock()

	return &CreatedAccount{Mnemonic: phrase, AccountID: id}, nil
}

// ImportFromMnemonic registers an externally-generated full account
// with this signer, the path a signer that did not itself call
// CreateAccount uses to take custody of an existing mnemonic (e.g. one
// entered directly into the offline device). Returns the account_id
// computed from the derived keys.
func (s *Signer) ImportFromMnemonic(phrase string) (string, error) {
	keys, _, _, err := account.KeysFromMnemonic(phrase, 0)
	if err != nil {
		return "", err
	}
	id := account.DeriveAccountID(keys.ViewPublic.Bytes(), keys.SpendPublic.Bytes())
	s.mu.Lock()
	s.accounts[id] = &registration{keys: keys}
	s.mu.Unlock()
	return id, nil
}

func (s *Signer) lookup(accountID string) (*registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.accounts[accountID]
	if !ok {
		return nil, walleterr.New(walleterr.AccountNotFound, accountID)
	}
	return reg, nil
}

// ViewOnlyImportRequest is the JSON-RPC request body the signer's
// "view-only-import-package" operation produces: a ready-to-send
// import_view_only_account call carrying only the view private key and
// spend public key, never the spend private key.
type ViewOnlyImportRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

// ViewOnlyImportPackage implements the signer's "view-only-import-package"
// operation.
func (s *Signer) ViewOnlyImportPackage(accountID, name string) (*ViewOnlyImportRequest, error) {
	reg, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}
	return &ViewOnlyImportRequest{
		JSONRPC: "2.0",
		ID:      "1",
		Method:  "import_view_only_account",
		Params: map[string]interface{}{
			"name":             name,
			"view_private_key": hex.EncodeToString(reg.keys.ViewPrivate.Bytes()),
			"spend_public_key": hex.EncodeToString(reg.keys.SpendPublic.Bytes()),
		},
	}, nil
}

// SyncedTxo is one TXO the signer could confirm ownership of and, for
// a full account, compute the key image for.
type SyncedTxo struct {
	TxoID    string
	KeyImage []byte
}

// TxoToSync names one TXO the wallet's view-only scan recovered, asking
// the signer to confirm it and supply the key image only the spend
// private key can compute.
type TxoToSync struct {
	TxoPublicKey    []byte
	SubaddressIndex uint64
}

// SyncTxos implements the signer's "sync-txos" operation: for each
// TXO the view-only wallet discovered, recompute the shared secret
// (the signer holds the view private key too, since it generated the
// account) and the one-time spend key, then derive the key image the
// wallet cannot compute on its own.
func (s *Signer) SyncTxos(accountID string, items []TxoToSync) ([]SyncedTxo, error) {
	reg, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}
	if reg.keys.SpendPrivate == nil {
		return nil, walleterr.New(walleterr.ViewOnlyOperationNotPermitted, "signer has no spend private key for this account")
	}

	out := make([]SyncedTxo, 0, len(items))
	for _, item := range items {
		txPublicKey, err := cryptoiface.NewPointFromBytes(item.TxoPublicKey)
		if err != nil {
			return nil, fmt.Errorf("decode txo public key: %w", err)
		}
		shared := cryptoiface.RecoverSharedSecret(reg.keys.ViewPrivate, txPublicKey)

		subKeys, err := account.DeriveSubaddress(reg.keys.ViewPrivate, reg.keys.SpendPublic, reg.keys.SpendPrivate, item.SubaddressIndex)
		if err != nil {
			return nil, err
		}
		oneTimeSpend := cryptoiface.OneTimeSpendKey(subKeys.SpendPrivate, shared)

		hs := cryptoiface.ScalarFromHash([]byte("mc-onetime-key"), shared.Bytes())
		targetKey := cryptoiface.ScalarBaseMul(hs).Add(subKeys.SpendPublic)

		keyImage, err := s.ringSigner.KeyImage(oneTimeSpend, targetKey)
		if err != nil {
			return nil, err
		}

		out = append(out, SyncedTxo{TxoID: txoIDFromPublicKey(item.TxoPublicKey), KeyImage: keyImage})
	}
	return out, nil
}

// SignTransaction implements the signer's "sign-transaction" operation:
// complete a view-only account's unsigned proposal using this signer's
// custody of the spend private key.
func (s *Signer) SignTransaction(accountID string, unsignedProposal []byte) ([]byte, error) {
	reg, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}
	if reg.keys.SpendPrivate == nil {
		return nil, walleterr.New(walleterr.ViewOnlyOperationNotPermitted, "signer has no spend private key for this account")
	}

	return txbuilder.CompleteSignature(unsignedProposal, func(subaddressIndex uint64) (*cryptoiface.Scalar, error) {
		subKeys, err := account.DeriveSubaddress(reg.keys.ViewPrivate, reg.keys.SpendPublic, reg.keys.SpendPrivate, subaddressIndex)
		if err != nil {
			return nil, err
		}
		return subKeys.SpendPrivate, nil
	})
}

// SubaddressMaterial is the public key material for one generated
// subaddress — everything a view-only wallet needs to recognize
// receipts at that index without the signer disclosing anything secret.
type SubaddressMaterial struct {
	Index            uint64
	PublicAddressB58 string
	SpendPublicKey   []byte
}

// GenerateSubaddresses implements the signer's "generate-subaddresses"
// operation over the inclusive range [from, to].
func (s *Signer) GenerateSubaddresses(accountID string, from, to uint64) ([]SubaddressMaterial, error) {
	reg, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}
	if to < from {
		return nil, walleterr.New(walleterr.InvalidParams, "to must be >= from")
	}

	out := make([]SubaddressMaterial, 0, to-from+1)
	for idx := from; idx <= to; idx++ {
		derived, err := account.DeriveSubaddress(reg.keys.ViewPrivate, reg.keys.SpendPublic, reg.keys.SpendPrivate, idx)
		if err != nil {
			return nil, err
		}
		addrB58, err := b58.EncodePublicAddress(b58.PublicAddress{
			ViewPublicKey:  derived.ViewPublic.Bytes(),
			SpendPublicKey: derived.SpendPublic.Bytes(),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, SubaddressMaterial{
			Index:            idx,
			PublicAddressB58: addrB58,
			SpendPublicKey:   derived.SpendPublic.Bytes(),
		})
	}
	return out, nil
}
