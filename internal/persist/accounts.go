package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duskledger/walletd/internal/walleterr"
)

var (
	// ErrAccountNotFound is returned by Get/Update/Delete when no row
	// matches the requested account id.
	ErrAccountNotFound = errors.New("account not found")
)

// AccountKind distinguishes a full account (can sign) from a
// view-only account (can scan and propose, never sign).
type AccountKind string

const (
	AccountKindFull     AccountKind = "full"
	AccountKindViewOnly AccountKind = "view_only"
)

// Account is the persisted row for one wallet account.
// SpendPrivateKey is nil for AccountKindViewOnly; ViewPrivateKey is set
// for every account. Both key columns are stored unsealed and are read
// whether or not the Store is unlocked.
type Account struct {
	AccountID            string
	Name                 string
	Kind                 AccountKind
	ViewPrivateKey       []byte
	ViewPublicKey        []byte
	SpendPrivateKey      []byte
	SpendPublicKey       []byte
	KeyDerivationVersion int
	NextSubaddressIndex  uint64
	FirstBlockIndex      uint64
	NextBlockIndex       uint64
	FogEnabled           bool
	CreatedAt            time.Time
}

// CreateAccountParams bundles everything InsertAccount needs, letting
// the caller pass plaintext entropy only when one exists to seal.
type CreateAccountParams struct {
	Account
	RootEntropy []byte // sealed via Store.Unlock's key; nil for view-only imports with no recoverable entropy
}

// InsertAccount persists a new account row, sealing RootEntropy if
// present. Returns walleterr.AccountAlreadyExists on a duplicate id.
func (s *Store) InsertAccount(p CreateAccountParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var encEntropy, salt, nonce []byte
	if len(p.RootEntropy) > 0 {
		ciphertext, n, err := s.sealSecret(p.RootEntropy)
		if err != nil {
			return err
		}
		encEntropy = ciphertext
		nonce = n
		salt = []byte{} // salt lives in the shared per-store salt file, not per-row
	}

	_, err := s.db.Exec(`
		INSERT INTO accounts (
			account_id, name, kind, view_private_key, view_public_key,
			spend_private_key, spend_public_key, key_derivation_version,
			encrypted_entropy, entropy_salt, entropy_nonce,
			next_subaddress_index, first_block_index, next_block_index,
			fog_enabled, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.AccountID, p.Name, string(p.Kind), nullableBytes(p.ViewPrivateKey), p.ViewPublicKey,
		nullableBytes(p.SpendPrivateKey), p.SpendPublicKey, p.KeyDerivationVersion,
		nullableBytes(encEntropy), nullableBytes(salt), nullableBytes(nonce),
		p.NextSubaddressIndex, p.FirstBlockIndex, p.NextBlockIndex,
		boolToInt(p.FogEnabled), p.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return walleterr.New(walleterr.AccountAlreadyExists, p.AccountID)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount fetches one account row by id.
func (s *Store) GetAccount(accountID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT account_id, name, kind, view_private_key, view_public_key,
		       spend_private_key, spend_public_key, key_derivation_version,
		       next_subaddress_index, first_block_index, next_block_index,
		       fog_enabled, created_at
		FROM accounts WHERE account_id = ?
	`, accountID)
	return scanAccount(row)
}

// ListAccounts returns every account, ordered by creation time.
func (s *Store) ListAccounts() ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT account_id, name, kind, view_private_key, view_public_key,
		       spend_private_key, spend_public_key, key_derivation_version,
		       next_subaddress_index, first_block_index, next_block_index,
		       fog_enabled, created_at
		FROM accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		acc, err := scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// UpdateAccountName renames an account.
func (s *Store) UpdateAccountName(accountID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE accounts SET name = ? WHERE account_id = ?`, name, accountID)
	if err != nil {
		return fmt.Errorf("update account name: %w", err)
	}
	return requireRowsAffected(res, ErrAccountNotFound)
}

// UpdateAccountSyncProgress advances next_block_index as the scanner
// processes new blocks for this account.
func (s *Store) UpdateAccountSyncProgress(accountID string, nextBlockIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE accounts SET next_block_index = ? WHERE account_id = ?`, nextBlockIndex, accountID)
	if err != nil {
		return fmt.Errorf("update account sync progress: %w", err)
	}
	return requireRowsAffected(res, ErrAccountNotFound)
}

// ReserveNextSubaddress atomically allocates and returns the next
// unused subaddress index for an account.
func (s *Store) ReserveNextSubaddress(accountID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin reserve subaddress: %w", err)
	}
	defer tx.Rollback()

	var next uint64
	if err := tx.QueryRow(`SELECT next_subaddress_index FROM accounts WHERE account_id = ?`, accountID).Scan(&next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, walleterr.New(walleterr.AccountNotFound, accountID)
		}
		return 0, fmt.Errorf("read next_subaddress_index: %w", err)
	}
	if _, err := tx.Exec(`UPDATE accounts SET next_subaddress_index = ? WHERE account_id = ?`, next+1, accountID); err != nil {
		return 0, fmt.Errorf("advance next_subaddress_index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reserve subaddress: %w", err)
	}
	return next, nil
}

// RemoveAccount deletes an account and its subaddresses. It does not
// cascade to TXOs or transaction logs — those remain for historical
// record-keeping per get_transaction_logs/get_txos after an account is
// removed, matching how the spec treats account deletion as tombstoning
// rather than erasure.
func (s *Store) RemoveAccount(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin remove account: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM subaddresses WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("delete subaddresses: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM accounts WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if err := requireRowsAffected(res, ErrAccountNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

// ExportAccountSecrets decrypts and returns the account's root entropy,
// for export_account_secrets. Fails with DatabaseLocked if Unlock has
// not been called, and with ViewOnlyOperationNotPermitted for
// view-only accounts (which have no entropy to export).
func (s *Store) ExportAccountSecrets(accountID string) ([]byte, error) {
	s.mu.RLock()
	var encEntropy, nonce sql.NullString
	var kindStr string
	err := s.db.QueryRow(`SELECT kind, encrypted_entropy, entropy_nonce FROM accounts WHERE account_id = ?`, accountID).
		Scan(&kindStr, &encEntropy, &nonce)
	s.mu.RUnlock()

	if errors.Is(err, sql.ErrNoRows) {
		return nil, walleterr.New(walleterr.AccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("query account secrets: %w", err)
	}
	if AccountKind(kindStr) == AccountKindViewOnly || !encEntropy.Valid {
		return nil, walleterr.New(walleterr.ViewOnlyOperationNotPermitted, "no exportable entropy for this account")
	}
	return s.openSecret([]byte(encEntropy.String), []byte(nonce.String))
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var kindStr string
	var viewPriv, spendPriv sql.NullString
	var createdAt int64

	err := row.Scan(
		&a.AccountID, &a.Name, &kindStr, &viewPriv, &a.ViewPublicKey,
		&spendPriv, &a.SpendPublicKey, &a.KeyDerivationVersion,
		&a.NextSubaddressIndex, &a.FirstBlockIndex, &a.NextBlockIndex,
		&a.FogEnabled, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, walleterr.New(walleterr.AccountNotFound, "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Kind = AccountKind(kindStr)
	if viewPriv.Valid {
		a.ViewPrivateKey = []byte(viewPriv.String)
	}
	if spendPriv.Valid {
		a.SpendPrivateKey = []byte(spendPriv.String)
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

func scanAccountRows(rows *sql.Rows) (*Account, error) {
	var a Account
	var kindStr string
	var viewPriv, spendPriv sql.NullString
	var createdAt int64

	err := rows.Scan(
		&a.AccountID, &a.Name, &kindStr, &viewPriv, &a.ViewPublicKey,
		&spendPriv, &a.SpendPublicKey, &a.KeyDerivationVersion,
		&a.NextSubaddressIndex, &a.FirstBlockIndex, &a.NextBlockIndex,
		&a.FogEnabled, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Kind = AccountKind(kindStr)
	if viewPriv.Valid {
		a.ViewPrivateKey = []byte(viewPriv.String)
	}
	if spendPriv.Valid {
		a.SpendPrivateKey = []byte(spendPriv.String)
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

func requireRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullableBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
