package account

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/duskledger/walletd/internal/b58"
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/walleterr"
)

// mainSubaddressIndex and changeSubaddressIndex are reserved at
// account creation, before next_subaddress_index starts handing out
// lazily-assigned indices.
const (
	mainSubaddressIndex   = 0
	changeSubaddressIndex = 1
)

// Store is the Account Store: account and subaddress lifecycle
// operations layered over the raw persistence rows in internal/persist.
type Store struct {
	pl *persist.Store
}

// New wraps a persistence layer handle.
func New(pl *persist.Store) *Store {
	return &Store{pl: pl}
}

// deriveAccountID computes the account_id the spec requires: a
// deterministic hash of the account's view and spend public keys, so
// importing the same key material twice always yields the same id and
// AccountAlreadyExists can reject the duplicate.
func deriveAccountID(viewPublic, spendPublic []byte) string {
	h := sha256.New()
	h.Write(viewPublic)
	h.Write(spendPublic)
	return hex.EncodeToString(h.Sum(nil))
}

// DeriveAccountID exposes deriveAccountID to callers outside this
// package that need to predict an account_id from key material before
// it is registered — the signer co-process, which derives the same
// full key pair independently and must agree with the wallet on the
// id it will import under.
func DeriveAccountID(viewPublic, spendPublic []byte) string {
	return deriveAccountID(viewPublic, spendPublic)
}

// CreateAccount generates a fresh BIP-39 mnemonic and full account,
// reserving the main and change subaddresses.
func (s *Store) CreateAccount(name string) (accountID, mnemonicPhrase string, err error) {
	phrase, err := GenerateMnemonic()
	if err != nil {
		return "", "", err
	}
	keys, entropy, version, err := KeysFromMnemonic(phrase, 0)
	if err != nil {
		return "", "", err
	}
	id, err := s.insertFullAccount(name, keys, version, entropy)
	if err != nil {
		return "", "", err
	}
	return id, phrase, nil
}

// ImportAccount recovers a full account from an existing mnemonic, of
// whichever key-derivation version KeysFromMnemonic reports for it, at
// the given account index within that seed.
func (s *Store) ImportAccount(name, phrase string, accountIndex uint32) (string, error) {
	keys, entropy, version, err := KeysFromMnemonic(phrase, accountIndex)
	if err != nil {
		return "", err
	}
	return s.insertFullAccount(name, keys, version, entropy)
}

// ImportAccountFromLegacyRootEntropy recovers a full account from raw
// version-1, 32-byte root entropy predating BIP-39 adoption.
func (s *Store) ImportAccountFromLegacyRootEntropy(name string, entropy []byte, accountIndex uint32) (string, error) {
	keys, err := KeysFromLegacyEntropy(entropy, accountIndex)
	if err != nil {
		return "", err
	}
	return s.insertFullAccount(name, keys, 1, entropy)
}

// ImportViewOnlyAccount registers an account for which only the view
// private key and spend public key are known; it can scan and propose
// transactions but never sign one.
func (s *Store) ImportViewOnlyAccount(name string, viewPrivate *cryptoiface.Scalar, spendPublic *cryptoiface.Point) (string, error) {
	viewPublic := cryptoiface.ScalarBaseMul(viewPrivate)
	id := deriveAccountID(viewPublic.Bytes(), spendPublic.Bytes())

	err := s.pl.InsertAccount(persist.CreateAccountParams{
		Account: persist.Account{
			AccountID:           id,
			Name:                name,
			Kind:                persist.AccountKindViewOnly,
			ViewPrivateKey:      viewPrivate.Bytes(),
			ViewPublicKey:       viewPublic.Bytes(),
			SpendPublicKey:      spendPublic.Bytes(),
			KeyDerivationVersion: 2,
			NextSubaddressIndex: 2,
			CreatedAt:           time.Now(),
		},
	})
	if err != nil {
		return "", err
	}

	if err := s.reserveReservedSubaddresses(id, viewPrivate, spendPublic, nil); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) insertFullAccount(name string, keys *Keys, version int, entropy []byte) (string, error) {
	id := deriveAccountID(keys.ViewPublic.Bytes(), keys.SpendPublic.Bytes())

	err := s.pl.InsertAccount(persist.CreateAccountParams{
		Account: persist.Account{
			AccountID:            id,
			Name:                 name,
			Kind:                 persist.AccountKindFull,
			ViewPrivateKey:       keys.ViewPrivate.Bytes(),
			ViewPublicKey:        keys.ViewPublic.Bytes(),
			SpendPrivateKey:      keys.SpendPrivate.Bytes(),
			SpendPublicKey:       keys.SpendPublic.Bytes(),
			KeyDerivationVersion: version,
			NextSubaddressIndex:  2,
			CreatedAt:            time.Now(),
		},
		RootEntropy: entropy,
	})
	if err != nil {
		return "", err
	}

	if err := s.reserveReservedSubaddresses(id, keys.ViewPrivate, keys.SpendPublic, keys.SpendPrivate); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) reserveReservedSubaddresses(accountID string, viewPrivate *cryptoiface.Scalar, spendPublic *cryptoiface.Point, spendPrivate *cryptoiface.Scalar) error {
	for _, idx := range []uint64{mainSubaddressIndex, changeSubaddressIndex} {
		if _, err := s.assignSubaddress(accountID, viewPrivate, spendPublic, spendPrivate, idx, ""); err != nil {
			return err
		}
	}
	return nil
}

// AssignAddressForAccount reserves and derives the next free
// subaddress index for an account, persists it, and returns its B58
// public address — the operation that also drives orphan recovery,
// since internal/txo walks TXOs matching a newly assigned index.
func (s *Store) AssignAddressForAccount(accountID, comment string) (*persist.Subaddress, error) {
	viewPrivate, spendPublic, spendPrivate, err := s.loadAccountKeyMaterial(accountID)
	if err != nil {
		return nil, err
	}

	index, err := s.pl.ReserveNextSubaddress(accountID)
	if err != nil {
		return nil, err
	}
	return s.assignSubaddress(accountID, viewPrivate, spendPublic, spendPrivate, index, comment)
}

// loadAccountKeyMaterial decodes the key scalars/points an account
// needs for subaddress derivation. spendPrivate is nil for view-only
// accounts.
func (s *Store) loadAccountKeyMaterial(accountID string) (viewPrivate *cryptoiface.Scalar, spendPublic *cryptoiface.Point, spendPrivate *cryptoiface.Scalar, err error) {
	acc, err := s.pl.GetAccount(accountID)
	if err != nil {
		return nil, nil, nil, err
	}
	viewPrivate, err = cryptoiface.NewScalarFromBytes(acc.ViewPrivateKey)
	if err != nil {
		return nil, nil, nil, err
	}
	spendPublic, err = cryptoiface.NewPointFromBytes(acc.SpendPublicKey)
	if err != nil {
		return nil, nil, nil, err
	}
	if acc.Kind == persist.AccountKindFull {
		spendPrivate, err = cryptoiface.NewScalarFromBytes(acc.SpendPrivateKey)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return viewPrivate, spendPublic, spendPrivate, nil
}

// DeriveSubaddressKeys computes the key material for one subaddress
// index of an account without persisting it, the operation orphan
// recovery and ring construction use to recompute a spend key for an
// index that may or may not yet have an assigned row.
func (s *Store) DeriveSubaddressKeys(accountID string, index uint64) (*SubaddressKeys, error) {
	viewPrivate, spendPublic, spendPrivate, err := s.loadAccountKeyMaterial(accountID)
	if err != nil {
		return nil, err
	}
	return DeriveSubaddress(viewPrivate, spendPublic, spendPrivate, index)
}

func (s *Store) assignSubaddress(accountID string, viewPrivate *cryptoiface.Scalar, spendPublic *cryptoiface.Point, spendPrivate *cryptoiface.Scalar, index uint64, comment string) (*persist.Subaddress, error) {
	derived, err := DeriveSubaddress(viewPrivate, spendPublic, spendPrivate, index)
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

	sub := persist.Subaddress{
		AccountID:        accountID,
		SubaddressIndex:  index,
		PublicAddressB58: addrB58,
		SpendPublicKey:   derived.SpendPublic.Bytes(),
		Comment:          comment,
		CreatedAt:        time.Now(),
	}
	if err := s.pl.InsertSubaddress(sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetAccount fetches one account.
func (s *Store) GetAccount(accountID string) (*persist.Account, error) {
	return s.pl.GetAccount(accountID)
}

// ListAccounts returns every account.
func (s *Store) ListAccounts() ([]*persist.Account, error) {
	return s.pl.ListAccounts()
}

// RemoveAccount deletes an account and its subaddresses.
func (s *Store) RemoveAccount(accountID string) error {
	return s.pl.RemoveAccount(accountID)
}

// UpdateAccountName renames an account.
func (s *Store) UpdateAccountName(accountID, name string) error {
	return s.pl.UpdateAccountName(accountID, name)
}

// ExportAccountSecrets decrypts and returns the mnemonic-recoverable
// root entropy for a full account.
func (s *Store) ExportAccountSecrets(accountID string) ([]byte, error) {
	return s.pl.ExportAccountSecrets(accountID)
}

// ExportViewOnlyImportPackage returns the key material a watch-only
// signer co-process needs to register the account, rejecting accounts
// that are already view-only (nothing to export; they have no spend
// private key to withhold in the first place).
func (s *Store) ExportViewOnlyImportPackage(accountID string) (*ViewOnlyKeys, error) {
	acc, err := s.pl.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if acc.Kind != persist.AccountKindFull {
		return nil, walleterr.New(walleterr.ViewOnlyOperationNotPermitted, "account is already view-only")
	}
	viewPrivate, err := cryptoiface.NewScalarFromBytes(acc.ViewPrivateKey)
	if err != nil {
		return nil, err
	}
	spendPublic, err := cryptoiface.NewPointFromBytes(acc.SpendPublicKey)
	if err != nil {
		return nil, err
	}
	return &ViewOnlyKeys{
		ViewPrivate: viewPrivate,
		ViewPublic:  cryptoiface.ScalarBaseMul(viewPrivate),
		SpendPublic: spendPublic,
	}, nil
}
