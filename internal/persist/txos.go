package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duskledger/walletd/internal/walleterr"
)

// ErrTxoNotFound is returned when no txo row matches.
var ErrTxoNotFound = errors.New("txo not found")

// Txo is the persisted record for one transaction output the scanner
// has matched to one of our accounts. It carries no status column —
// internal/txo computes Unverified/Unspent/Pending/Spent/Orphaned/
// Secreted from these primitive fields on every read.
type Txo struct {
	TxoID                      string
	AccountID                  string
	SubaddressIndex            *uint64
	PublicKey                  []byte
	TargetKey                  []byte
	KeyImage                   []byte
	Value                      uint64
	TokenID                    uint64
	BlockIndex                 *uint64
	SpentBlockIndex            *uint64
	ReceivedConfirmationHeight *uint64
	SharedSecret               []byte
	Memo                       []byte
	IsSecreted                 bool
	CreatedAt                  time.Time
}

// InsertTxo persists a newly scanned output.
func (s *Store) InsertTxo(t Txo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO txos (
			txo_id, account_id, subaddress_index, public_key, target_key, key_image,
			value, token_id, block_index, spent_block_index, received_confirmation_height,
			shared_secret, memo, is_secreted, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.TxoID, t.AccountID, nullableU64Ptr(t.SubaddressIndex), t.PublicKey, t.TargetKey, nullableBytes(t.KeyImage),
		t.Value, t.TokenID, nullableU64Ptr(t.BlockIndex), nullableU64Ptr(t.SpentBlockIndex), nullableU64Ptr(t.ReceivedConfirmationHeight),
		nullableBytes(t.SharedSecret), nullableBytes(t.Memo), boolToInt(t.IsSecreted), t.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil // the ledger sync can observe the same output twice across restarts
		}
		return fmt.Errorf("insert txo: %w", err)
	}
	return nil
}

// GetTxo fetches one TXO by id.
func (s *Store) GetTxo(txoID string) (*Txo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanTxo(s.db.QueryRow(txoSelect+" WHERE txo_id = ?", txoID))
}

// GetTxoByPublicKey looks up a TXO by its one-time tx public key, the
// lookup get_txo supports when called with txo_public_key instead of id.
func (s *Store) GetTxoByPublicKey(publicKey []byte) (*Txo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanTxo(s.db.QueryRow(txoSelect+" WHERE public_key = ?", publicKey))
}

// GetTxoByKeyImage looks up the TXO a key image was computed from,
// the lookup that detects a double-spend attempt.
func (s *Store) GetTxoByKeyImage(keyImage []byte) (*Txo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanTxo(s.db.QueryRow(txoSelect+" WHERE key_image = ?", keyImage))
}

// ListTxosByAccount returns every TXO belonging to an account,
// optionally filtered to a single token id (tokenID == nil matches all).
func (s *Store) ListTxosByAccount(accountID string, tokenID *uint64, limit, offset int) ([]*Txo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := txoSelect + " WHERE account_id = ?"
	args := []interface{}{accountID}
	if tokenID != nil {
		query += " AND token_id = ?"
		args = append(args, *tokenID)
	}
	query += " ORDER BY created_at LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list txos: %w", err)
	}
	defer rows.Close()
	return scanTxoRowsAll(rows)
}

// MarkTxoSpent records the block a TXO's key image was observed spent
// in. Called by the scanner once it sees a ledger key image matching
// an owned TXO.
func (s *Store) MarkTxoSpent(txoID string, spentBlockIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE txos SET spent_block_index = ? WHERE txo_id = ? AND spent_block_index IS NULL`, spentBlockIndex, txoID)
	if err != nil {
		return fmt.Errorf("mark txo spent: %w", err)
	}
	return requireRowsAffected(res, ErrTxoNotFound)
}

// MarkTxoSpentAndFinalizeLog marks a TXO spent and, if it is an input
// of a still-Pending transaction log, attaches that log's
// finalized_block_index in the same transaction — the atomic
// Pending→Succeeded / Unspent→Spent pair the scanner's spend detection
// must produce together.
func (s *Store) MarkTxoSpentAndFinalizeLog(txoID string, spentBlockIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin mark txo spent: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE txos SET spent_block_index = ? WHERE txo_id = ? AND spent_block_index IS NULL`, spentBlockIndex, txoID)
	if err != nil {
		return fmt.Errorf("mark txo spent: %w", err)
	}
	if err := requireRowsAffected(res, ErrTxoNotFound); err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE transaction_logs SET finalized_block_index = ?, updated_at = ?
		WHERE failed = 0 AND finalized_block_index IS NULL AND submitted_block_index IS NOT NULL
		AND transaction_log_id = (
			SELECT transaction_log_id FROM transaction_input_txos WHERE txo_id = ? LIMIT 1
		)
	`, spentBlockIndex, nowUnix(), txoID)
	if err != nil {
		return fmt.Errorf("finalize transaction log: %w", err)
	}

	return tx.Commit()
}

// BalancePerToken sums the value of every TXO the scanner considers
// spendable (block_index set, spent_block_index unset) per token, for
// get_account_status / get_balance.
func (s *Store) BalancePerToken(accountID string) (map[uint64]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT token_id, COALESCE(SUM(value), 0)
		FROM txos
		WHERE account_id = ? AND block_index IS NOT NULL AND spent_block_index IS NULL
		GROUP BY token_id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("balance per token: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64]uint64)
	for rows.Next() {
		var tokenID, sum uint64
		if err := rows.Scan(&tokenID, &sum); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		out[tokenID] = sum
	}
	return out, rows.Err()
}

// SpendableTxos returns every unspent TXO for a token ordered
// largest-first, the candidate pool internal/txbuilder selects inputs
// from. It carries no LIMIT: the 16-input ring-construction cap is
// applied by callers (internal/txbuilder.selectInputs,
// internal/txo.MaxSpendable), not by this query.
func (s *Store) SpendableTxos(accountID string, tokenID uint64) ([]*Txo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		txoSelect+` WHERE account_id = ? AND token_id = ? AND block_index IS NOT NULL AND spent_block_index IS NULL
		ORDER BY value DESC`, accountID, tokenID)
	if err != nil {
		return nil, fmt.Errorf("spendable txos: %w", err)
	}
	defer rows.Close()
	return scanTxoRowsAll(rows)
}

// ListTxosBySubaddress returns every TXO an account received at a
// specific subaddress index, the query orphan recovery uses once
// assign_address_for_account reaches that index.
func (s *Store) ListTxosBySubaddress(accountID string, subaddressIndex uint64) ([]*Txo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(txoSelect+` WHERE account_id = ? AND subaddress_index = ?`, accountID, subaddressIndex)
	if err != nil {
		return nil, fmt.Errorf("list txos by subaddress: %w", err)
	}
	defer rows.Close()
	return scanTxoRowsAll(rows)
}

// SetTxoKeyImage records a key image computed after the fact for a
// TXO that was Orphaned or Unverified at scan time — the orphan
// recovery and view-only sync_txos paths, neither of which replays the
// ledger.
func (s *Store) SetTxoKeyImage(txoID string, keyImage []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE txos SET key_image = ? WHERE txo_id = ?`, keyImage, txoID)
	if err != nil {
		return fmt.Errorf("set txo key image: %w", err)
	}
	return requireRowsAffected(res, ErrTxoNotFound)
}

// TxoReferencedByOpenLog reports whether a TXO is an input of any
// transaction log still in Built or Pending status for its account —
// the at-most-one-concurrent-spend predicate internal/txbuilder's
// input selection excludes against.
func (s *Store) TxoReferencedByOpenLog(txoID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM transaction_input_txos ti
		JOIN transaction_logs tl ON tl.transaction_log_id = ti.transaction_log_id
		WHERE ti.txo_id = ? AND tl.failed = 0 AND tl.finalized_block_index IS NULL
	`, txoID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("txo referenced by open log: %w", err)
	}
	return n > 0, nil
}

const txoSelect = `SELECT txo_id, account_id, subaddress_index, public_key, target_key, key_image,
	value, token_id, block_index, spent_block_index, received_confirmation_height,
	shared_secret, memo, is_secreted, created_at FROM txos`

func scanTxo(row *sql.Row) (*Txo, error) {
	var t Txo
	var subIdx, blockIdx, spentIdx, confHeight sql.NullInt64
	var keyImage, secret, memo sql.NullString
	var isSecreted int
	var createdAt int64

	err := row.Scan(&t.TxoID, &t.AccountID, &subIdx, &t.PublicKey, &t.TargetKey, &keyImage,
		&t.Value, &t.TokenID, &blockIdx, &spentIdx, &confHeight, &secret, &memo, &isSecreted, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, walleterr.New(walleterr.TxoNotFound, "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan txo: %w", err)
	}
	applyTxoNullables(&t, subIdx, blockIdx, spentIdx, confHeight, keyImage, secret, memo, isSecreted, createdAt)
	return &t, nil
}

func scanTxoRowsAll(rows *sql.Rows) ([]*Txo, error) {
	var out []*Txo
	for rows.Next() {
		var t Txo
		var subIdx, blockIdx, spentIdx, confHeight sql.NullInt64
		var keyImage, secret, memo sql.NullString
		var isSecreted int
		var createdAt int64

		err := rows.Scan(&t.TxoID, &t.AccountID, &subIdx, &t.PublicKey, &t.TargetKey, &keyImage,
			&t.Value, &t.TokenID, &blockIdx, &spentIdx, &confHeight, &secret, &memo, &isSecreted, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan txo: %w", err)
		}
		applyTxoNullables(&t, subIdx, blockIdx, spentIdx, confHeight, keyImage, secret, memo, isSecreted, createdAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func applyTxoNullables(t *Txo, subIdx, blockIdx, spentIdx, confHeight sql.NullInt64, keyImage, secret, memo sql.NullString, isSecreted int, createdAt int64) {
	if subIdx.Valid {
		v := uint64(subIdx.Int64)
		t.SubaddressIndex = &v
	}
	if blockIdx.Valid {
		v := uint64(blockIdx.Int64)
		t.BlockIndex = &v
	}
	if spentIdx.Valid {
		v := uint64(spentIdx.Int64)
		t.SpentBlockIndex = &v
	}
	if confHeight.Valid {
		v := uint64(confHeight.Int64)
		t.ReceivedConfirmationHeight = &v
	}
	if keyImage.Valid {
		t.KeyImage = []byte(keyImage.String)
	}
	if secret.Valid {
		t.SharedSecret = []byte(secret.String)
	}
	if memo.Valid {
		t.Memo = []byte(memo.String)
	}
	t.IsSecreted = isSecreted != 0
	t.CreatedAt = time.Unix(createdAt, 0)
}

func nullableU64Ptr(p *uint64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
