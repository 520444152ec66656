package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duskledger/walletd/internal/walleterr"
)

// ErrSubaddressNotFound is returned when no subaddress row matches.
var ErrSubaddressNotFound = errors.New("subaddress not found")

// Subaddress is one assigned receiving address under an account. Index
// 0 is always the account's main subaddress, index 1 the change
// subaddress — both reserved at account creation.
type Subaddress struct {
	AccountID       string
	SubaddressIndex uint64
	PublicAddressB58 string
	SpendPublicKey  []byte
	Comment         string
	CreatedAt       time.Time
}

// InsertSubaddress persists a newly assigned subaddress.
func (s *Store) InsertSubaddress(sub Subaddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO subaddresses (account_id, subaddress_index, public_address_b58, spend_public_key, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sub.AccountID, sub.SubaddressIndex, sub.PublicAddressB58, sub.SpendPublicKey, sub.Comment, sub.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert subaddress: %w", err)
	}
	return nil
}

// GetSubaddress fetches one subaddress by (account, index).
func (s *Store) GetSubaddress(accountID string, index uint64) (*Subaddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sub Subaddress
	var createdAt int64
	err := s.db.QueryRow(`
		SELECT account_id, subaddress_index, public_address_b58, spend_public_key, comment, created_at
		FROM subaddresses WHERE account_id = ? AND subaddress_index = ?
	`, accountID, index).Scan(&sub.AccountID, &sub.SubaddressIndex, &sub.PublicAddressB58, &sub.SpendPublicKey, &sub.Comment, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, walleterr.New(walleterr.SubaddressNotAssigned, fmt.Sprintf("%s/%d", accountID, index))
	}
	if err != nil {
		return nil, fmt.Errorf("get subaddress: %w", err)
	}
	sub.CreatedAt = time.Unix(createdAt, 0)
	return &sub, nil
}

// GetSubaddressByB58 resolves a public-address string back to the
// owning (account, index) pair, the lookup the scanner uses to match a
// view-key-decrypted output to a specific subaddress.
func (s *Store) GetSubaddressByB58(b58 string) (*Subaddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sub Subaddress
	var createdAt int64
	err := s.db.QueryRow(`
		SELECT account_id, subaddress_index, public_address_b58, spend_public_key, comment, created_at
		FROM subaddresses WHERE public_address_b58 = ?
	`, b58).Scan(&sub.AccountID, &sub.SubaddressIndex, &sub.PublicAddressB58, &sub.SpendPublicKey, &sub.Comment, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubaddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subaddress by b58: %w", err)
	}
	sub.CreatedAt = time.Unix(createdAt, 0)
	return &sub, nil
}

// ListSubaddresses returns every subaddress assigned to an account.
func (s *Store) ListSubaddresses(accountID string) ([]*Subaddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT account_id, subaddress_index, public_address_b58, spend_public_key, comment, created_at
		FROM subaddresses WHERE account_id = ? ORDER BY subaddress_index
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list subaddresses: %w", err)
	}
	defer rows.Close()

	var out []*Subaddress
	for rows.Next() {
		var sub Subaddress
		var createdAt int64
		if err := rows.Scan(&sub.AccountID, &sub.SubaddressIndex, &sub.PublicAddressB58, &sub.SpendPublicKey, &sub.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("scan subaddress: %w", err)
		}
		sub.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &sub)
	}
	return out, rows.Err()
}
