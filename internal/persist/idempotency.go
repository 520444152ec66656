package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duskledger/walletd/internal/walleterr"
)

// ErrIdempotencyKeyNotFound is returned when no row matches.
var ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

// ReserveIdempotencyKey records a fresh idempotency key against the
// transaction log it is submitting, as its own statement just before
// the submit attempt it guards. Reserving a key that is already bound
// returns walleterr.IdempotentReplay carrying the bound log id.
func (s *Store) ReserveIdempotencyKey(key, transactionLogID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO idempotency_keys (idempotency_key, transaction_log_id, created_at) VALUES (?, ?, ?)
	`, key, transactionLogID, time.Now().Unix())
	if err != nil {
		if isUniqueConstraintError(err) {
			existing, lookupErr := s.lookupIdempotencyKeyLocked(key)
			if lookupErr != nil {
				return lookupErr
			}
			return walleterr.New(walleterr.IdempotentReplay, existing)
		}
		return fmt.Errorf("reserve idempotency key: %w", err)
	}
	return nil
}

// LookupIdempotencyKey returns the transaction log id a previously used
// idempotency key is bound to, or ErrIdempotencyKeyNotFound.
func (s *Store) LookupIdempotencyKey(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupIdempotencyKeyLocked(key)
}

func (s *Store) lookupIdempotencyKeyLocked(key string) (string, error) {
	var transactionLogID string
	err := s.db.QueryRow(`SELECT transaction_log_id FROM idempotency_keys WHERE idempotency_key = ?`, key).Scan(&transactionLogID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup idempotency key: %w", err)
	}
	return transactionLogID, nil
}
