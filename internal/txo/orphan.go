package txo

import (
	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/persist"
)

// ringSigner computes key images; shared across every Store instance
// since it holds no state.
var ringSigner = cryptoiface.NewRingSigner()

// RecoverOrphans walks every TXO of an account at subaddressIndex and,
// for full accounts, computes the key image now that the subaddress
// exists. No ledger replay is needed: the scanner already recorded the
// recovered subaddress index on the TXO at scan time (see
// DESIGN.md's scanner notes), so assignment alone is enough to flip
// Orphaned TXOs to Unspent.
func (s *Store) RecoverOrphans(accountID string, subaddressIndex uint64) error {
	acc, err := s.as.GetAccount(accountID)
	if err != nil {
		return err
	}
	rows, err := s.pl.ListTxosBySubaddress(accountID, subaddressIndex)
	if err != nil {
		return err
	}
	if acc.Kind != persist.AccountKindFull {
		return nil
	}

	for _, t := range rows {
		if t.KeyImage != nil {
			continue
		}
		keys, err := s.as.DeriveSubaddressKeys(accountID, subaddressIndex)
		if err != nil {
			return err
		}
		if keys.SpendPrivate == nil || t.SharedSecret == nil {
			continue
		}
		shared, err := cryptoiface.NewPointFromBytes(t.SharedSecret)
		if err != nil {
			return err
		}
		oneTimeSpend := cryptoiface.OneTimeSpendKey(keys.SpendPrivate, shared)
		targetKey, err := cryptoiface.NewPointFromBytes(t.TargetKey)
		if err != nil {
			return err
		}
		keyImage, err := ringSigner.KeyImage(oneTimeSpend, targetKey)
		if err != nil {
			return err
		}
		if err := s.pl.SetTxoKeyImage(t.TxoID, keyImage); err != nil {
			return err
		}
	}
	return nil
}
