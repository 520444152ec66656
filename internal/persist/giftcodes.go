package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duskledger/walletd/internal/walleterr"
)

// ErrGiftCodeNotFound is returned when no gift code row matches.
var ErrGiftCodeNotFound = errors.New("gift code not found")

// GiftCode is the persisted record of one built gift code, from the
// moment it funds a dedicated one-time TXO through to the moment a
// recipient claims it. ClaimedBlockIndex stays nil until claimed.
type GiftCode struct {
	GiftCodeB58       string
	AccountID         string
	TxoID             string
	Value             uint64
	TokenID           uint64
	Memo              string
	ClaimedBlockIndex *uint64
	CreatedAt         time.Time
}

// InsertGiftCode persists a newly built, not-yet-claimed gift code.
func (s *Store) InsertGiftCode(g GiftCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO gift_codes (gift_code_b58, account_id, txo_id, value, token_id, memo, claimed_block_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, g.GiftCodeB58, g.AccountID, g.TxoID, g.Value, g.TokenID, g.Memo, nullableU64Ptr(g.ClaimedBlockIndex), g.CreatedAt.Unix())
	if err != nil {
		if isUniqueConstraintError(err) {
			return walleterr.New(walleterr.GiftCodeAlreadyExists, g.GiftCodeB58)
		}
		return fmt.Errorf("insert gift code: %w", err)
	}
	return nil
}

// GetGiftCode fetches one gift code by its b58 identifier.
func (s *Store) GetGiftCode(giftCodeB58 string) (*GiftCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var g GiftCode
	var claimed sql.NullInt64
	var createdAt int64
	err := s.db.QueryRow(`
		SELECT gift_code_b58, account_id, txo_id, value, token_id, memo, claimed_block_index, created_at
		FROM gift_codes WHERE gift_code_b58 = ?
	`, giftCodeB58).Scan(&g.GiftCodeB58, &g.AccountID, &g.TxoID, &g.Value, &g.TokenID, &g.Memo, &claimed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, walleterr.New(walleterr.GiftCodeNotFound, giftCodeB58)
	}
	if err != nil {
		return nil, fmt.Errorf("get gift code: %w", err)
	}
	if claimed.Valid {
		v := uint64(claimed.Int64)
		g.ClaimedBlockIndex = &v
	}
	g.CreatedAt = time.Unix(createdAt, 0)
	return &g, nil
}

// ListGiftCodes returns every gift code an account has built, claimed
// or not.
func (s *Store) ListGiftCodes(accountID string) ([]*GiftCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT gift_code_b58, account_id, txo_id, value, token_id, memo, claimed_block_index, created_at
		FROM gift_codes WHERE account_id = ? ORDER BY created_at
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list gift codes: %w", err)
	}
	defer rows.Close()

	var out []*GiftCode
	for rows.Next() {
		var g GiftCode
		var claimed sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&g.GiftCodeB58, &g.AccountID, &g.TxoID, &g.Value, &g.TokenID, &g.Memo, &claimed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan gift code: %w", err)
		}
		if claimed.Valid {
			v := uint64(claimed.Int64)
			g.ClaimedBlockIndex = &v
		}
		g.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &g)
	}
	return out, rows.Err()
}

// ClaimGiftCode records the block at which a gift code's funding TXO
// was observed spent by the claiming recipient. Fails if already
// claimed, enforcing the pending->available->claimed lifecycle's
// terminal transition exactly once.
func (s *Store) ClaimGiftCode(giftCodeB58 string, claimedBlockIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE gift_codes SET claimed_block_index = ? WHERE gift_code_b58 = ? AND claimed_block_index IS NULL
	`, claimedBlockIndex, giftCodeB58)
	if err != nil {
		return fmt.Errorf("claim gift code: %w", err)
	}
	return requireRowsAffected(res, walleterr.New(walleterr.GiftCodeAlreadyClaimed, giftCodeB58))
}

// RemoveGiftCode deletes an unclaimed gift code record (the recipient
// declined it, or the sender canceled before anyone redeemed it).
func (s *Store) RemoveGiftCode(giftCodeB58 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM gift_codes WHERE gift_code_b58 = ?`, giftCodeB58)
	if err != nil {
		return fmt.Errorf("remove gift code: %w", err)
	}
	return requireRowsAffected(res, ErrGiftCodeNotFound)
}
