// Package txlog implements the Transaction-Log Store (TLS): the
// derived-status read model over internal/persist's raw transaction
// log rows.
package txlog

import (
	"github.com/duskledger/walletd/internal/persist"
)

// Status is one of the four derived transaction-log lifecycle states.
type Status string

const (
	StatusBuilt     Status = "built"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// TransactionLog is a persisted log row plus its computed Status.
type TransactionLog struct {
	*persist.TransactionLog
	Status Status
}

// Derive computes a transaction log's status from its primitive
// fields: failed wins outright, then finalized, then submitted, else
// still Built.
func Derive(t *persist.TransactionLog) Status {
	switch {
	case t.Failed:
		return StatusFailed
	case t.FinalizedBlockIndex != nil:
		return StatusSucceeded
	case t.SubmittedBlockIndex != nil:
		return StatusPending
	default:
		return StatusBuilt
	}
}

// Store wraps the persistence layer with status derivation.
type Store struct {
	pl *persist.Store
}

// New wraps a persistence layer handle.
func New(pl *persist.Store) *Store {
	return &Store{pl: pl}
}

func decorate(t *persist.TransactionLog) *TransactionLog {
	return &TransactionLog{TransactionLog: t, Status: Derive(t)}
}

// Get fetches one transaction log by id.
func (s *Store) Get(id string) (*TransactionLog, error) {
	t, err := s.pl.GetTransactionLog(id)
	if err != nil {
		return nil, err
	}
	return decorate(t), nil
}

// ListByAccount returns an account's transaction logs, newest first,
// optionally filtered to a status.
func (s *Store) ListByAccount(accountID string, status *Status, limit, offset int) ([]*TransactionLog, error) {
	rows, err := s.pl.ListTransactionLogsByAccount(accountID, 1<<20, 0)
	if err != nil {
		return nil, err
	}

	var filtered []*TransactionLog
	for _, r := range rows {
		d := decorate(r)
		if status != nil && d.Status != *status {
			continue
		}
		filtered = append(filtered, d)
	}

	if limit <= 0 {
		limit = 100
	}
	start := offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], nil
}

// InputTxoIDs returns the TXO ids a log consumed.
func (s *Store) InputTxoIDs(id string) ([]string, error) {
	return s.pl.InputTxoIDs(id)
}

// OutputLinks returns the output TXO links a log produced.
func (s *Store) OutputLinks(id string) ([]persist.OutputLink, error) {
	return s.pl.OutputLinks(id)
}
