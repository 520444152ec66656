package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duskledger/walletd/internal/walleterr"
)

// ErrTransactionLogNotFound is returned when no row matches.
var ErrTransactionLogNotFound = errors.New("transaction log not found")

// TransactionLog is the persisted record of one proposed-then-submitted
// transaction. No status column exists here either — internal/txlog
// derives Built/Pending/Succeeded/Failed from submitted_block_index,
// finalized_block_index and failed.
type TransactionLog struct {
	TransactionLogID    string
	AccountID           string
	TokenID             uint64
	Fee                 uint64
	TombstoneBlockIndex uint64
	SubmittedBlockIndex *uint64
	FinalizedBlockIndex *uint64
	Failed              bool
	Comment             string
	RawTransaction      []byte
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OutputLink records which TXO a transaction log produced for which
// recipient, and whether it is the sender's own change.
type OutputLink struct {
	TransactionLogID          string
	TxoID                     string
	RecipientPublicAddressB58 string
	IsChange                  bool
	ConfirmationNumber        []byte
}

// InsertTransactionLog persists a Built transaction log along with its
// input/output TXO links in one transaction, matching the invariant
// that a transaction log is never visible without its full link set.
func (s *Store) InsertTransactionLog(t TransactionLog, inputTxoIDs []string, outputs []OutputLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert transaction log: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO transaction_logs (
			transaction_log_id, account_id, token_id, fee, tombstone_block_index,
			submitted_block_index, finalized_block_index, failed, comment, raw_transaction,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.TransactionLogID, t.AccountID, t.TokenID, t.Fee, t.TombstoneBlockIndex,
		nullableU64Ptr(t.SubmittedBlockIndex), nullableU64Ptr(t.FinalizedBlockIndex), boolToInt(t.Failed), t.Comment, t.RawTransaction,
		t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert transaction log: %w", err)
	}

	for _, txoID := range inputTxoIDs {
		if _, err := tx.Exec(`INSERT INTO transaction_input_txos (transaction_log_id, txo_id) VALUES (?, ?)`, t.TransactionLogID, txoID); err != nil {
			return fmt.Errorf("insert input txo link: %w", err)
		}
	}
	for _, o := range outputs {
		if _, err := tx.Exec(`
			INSERT INTO transaction_output_txos (transaction_log_id, txo_id, recipient_public_address_b58, is_change, confirmation_number)
			VALUES (?, ?, ?, ?, ?)
		`, t.TransactionLogID, o.TxoID, o.RecipientPublicAddressB58, boolToInt(o.IsChange), nullableBytes(o.ConfirmationNumber)); err != nil {
			return fmt.Errorf("insert output txo link: %w", err)
		}
	}

	return tx.Commit()
}

// GetTransactionLog fetches one transaction log by id.
func (s *Store) GetTransactionLog(id string) (*TransactionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanTxLog(s.db.QueryRow(txLogSelect+` WHERE transaction_log_id = ?`, id))
}

// ListTransactionLogsByAccount returns every transaction log for an
// account, newest first.
func (s *Store) ListTransactionLogsByAccount(accountID string, limit, offset int) ([]*TransactionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(txLogSelect+` WHERE account_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transaction logs: %w", err)
	}
	defer rows.Close()

	var out []*TransactionLog
	for rows.Next() {
		t, err := scanTxLogRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InputTxoIDs returns the TXO ids a transaction log consumed.
func (s *Store) InputTxoIDs(transactionLogID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT txo_id FROM transaction_input_txos WHERE transaction_log_id = ?`, transactionLogID)
	if err != nil {
		return nil, fmt.Errorf("input txo ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan input txo id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// OutputLinks returns the output TXO links a transaction log produced.
func (s *Store) OutputLinks(transactionLogID string) ([]OutputLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT transaction_log_id, txo_id, recipient_public_address_b58, is_change, confirmation_number
		FROM transaction_output_txos WHERE transaction_log_id = ?
	`, transactionLogID)
	if err != nil {
		return nil, fmt.Errorf("output links: %w", err)
	}
	defer rows.Close()

	var out []OutputLink
	for rows.Next() {
		var o OutputLink
		var isChange int
		var conf sql.NullString
		if err := rows.Scan(&o.TransactionLogID, &o.TxoID, &o.RecipientPublicAddressB58, &isChange, &conf); err != nil {
			return nil, fmt.Errorf("scan output link: %w", err)
		}
		o.IsChange = isChange != 0
		if conf.Valid {
			o.ConfirmationNumber = []byte(conf.String)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkSubmitted transitions a transaction log from Built to Pending by
// recording the block it was submitted at. Enforces the at-most-one-
// concurrent-spend invariant at the call site (internal/submission),
// not here — this is a pure state write.
func (s *Store) MarkSubmitted(id string, submittedBlockIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE transaction_logs SET submitted_block_index = ?, updated_at = ? WHERE transaction_log_id = ?`,
		submittedBlockIndex, nowUnix(), id)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	return requireRowsAffected(res, ErrTransactionLogNotFound)
}

// MarkFinalized transitions Pending to Succeeded.
func (s *Store) MarkFinalized(id string, finalizedBlockIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE transaction_logs SET finalized_block_index = ?, updated_at = ? WHERE transaction_log_id = ?`,
		finalizedBlockIndex, nowUnix(), id)
	if err != nil {
		return fmt.Errorf("mark finalized: %w", err)
	}
	return requireRowsAffected(res, ErrTransactionLogNotFound)
}

// UpdateRawTransaction replaces a Built log's raw transaction bytes,
// the path an offline signer's completed signature takes to turn a
// view-only account's unsigned proposal into a submittable one.
func (s *Store) UpdateRawTransaction(id string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE transaction_logs SET raw_transaction = ?, updated_at = ? WHERE transaction_log_id = ?`,
		raw, nowUnix(), id)
	if err != nil {
		return fmt.Errorf("update raw transaction: %w", err)
	}
	return requireRowsAffected(res, ErrTransactionLogNotFound)
}

// MarkFailed transitions Built or Pending to Failed.
func (s *Store) MarkFailed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE transaction_logs SET failed = 1, updated_at = ? WHERE transaction_log_id = ?`, nowUnix(), id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRowsAffected(res, ErrTransactionLogNotFound)
}

const txLogSelect = `SELECT transaction_log_id, account_id, token_id, fee, tombstone_block_index,
	submitted_block_index, finalized_block_index, failed, comment, raw_transaction, created_at, updated_at
	FROM transaction_logs`

func scanTxLog(row *sql.Row) (*TransactionLog, error) {
	var t TransactionLog
	var submitted, finalized sql.NullInt64
	var failed int
	var createdAt, updatedAt int64
	var raw sql.NullString

	err := row.Scan(&t.TransactionLogID, &t.AccountID, &t.TokenID, &t.Fee, &t.TombstoneBlockIndex,
		&submitted, &finalized, &failed, &t.Comment, &raw, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, walleterr.New(walleterr.TransactionLogNotFound, "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction log: %w", err)
	}
	applyTxLogNullables(&t, submitted, finalized, failed, raw, createdAt, updatedAt)
	return &t, nil
}

func scanTxLogRow(rows *sql.Rows) (*TransactionLog, error) {
	var t TransactionLog
	var submitted, finalized sql.NullInt64
	var failed int
	var createdAt, updatedAt int64
	var raw sql.NullString

	err := rows.Scan(&t.TransactionLogID, &t.AccountID, &t.TokenID, &t.Fee, &t.TombstoneBlockIndex,
		&submitted, &finalized, &failed, &t.Comment, &raw, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan transaction log: %w", err)
	}
	applyTxLogNullables(&t, submitted, finalized, failed, raw, createdAt, updatedAt)
	return &t, nil
}

func applyTxLogNullables(t *TransactionLog, submitted, finalized sql.NullInt64, failed int, raw sql.NullString, createdAt, updatedAt int64) {
	if submitted.Valid {
		v := uint64(submitted.Int64)
		t.SubmittedBlockIndex = &v
	}
	if finalized.Valid {
		v := uint64(finalized.Int64)
		t.FinalizedBlockIndex = &v
	}
	t.Failed = failed != 0
	if raw.Valid {
		t.RawTransaction = []byte(raw.String)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
}
