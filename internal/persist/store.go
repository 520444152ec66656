// Package persist implements the relational Persistence Layer: every
// account, subaddress, TXO, transaction log and gift code record the
// wallet keeps, backed by SQLite through mattn/go-sqlite3. It never
// stores a derived status column — status is always computed from the
// primitive fields a row carries, by the package that owns that
// derivation (internal/txo, internal/txlog).
package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/duskledger/walletd/internal/walleterr"
)

// Store is the Persistence Layer handle. SQLite allows only one
// writer at a time, so every write path takes mu for the duration of
// its statement, mirroring the teacher's storage.Storage pattern.
type Store struct {
	db     *sql.DB
	path   string
	mu     sync.RWMutex
	seal   *sealer
	sealMu sync.RWMutex
}

// Config configures where the wallet database lives.
type Config struct {
	Path string
}

// Open creates or opens the SQLite-backed persistence layer at
// cfg.Path, applying the baseline schema and any outstanding
// migrations. The store starts locked — Unlock must be called before
// any operation touching encrypted account secrets succeeds.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("persist: empty database path")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create wallet db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open wallet db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, walleterr.Wrap(walleterr.DatabaseBusy, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: cfg.Path}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init wallet db schema: %w", err)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for packages (txo, txlog, account)
// that need to compose multi-table transactions this package doesn't
// itself expose a helper for.
func (s *Store) DB() *sql.DB {
	return s.db
}

// saltPath derives a deterministic, file-level salt store path
// next to the wallet database, so the same passphrase always derives
// the same key across restarts without persisting the salt inside the
// (potentially attacker-readable) database file itself.
func (s *Store) saltPath() string {
	return s.path + ".salt"
}

// Unlock derives the sealing key for this passphrase, generating and
// persisting a fresh salt file on first use. Every subsequent call in
// the process lifetime (e.g. after a Lock) must use the same
// passphrase or secret decryption will fail with DatabaseLocked.
func (s *Store) Unlock(passphrase string) error {
	salt, err := s.loadOrCreateSalt()
	if err != nil {
		return err
	}
	seal, err := newSealer(passphrase, salt)
	if err != nil {
		return err
	}
	s.sealMu.Lock()
	s.seal = seal
	s.sealMu.Unlock()
	return nil
}

// Lock discards the in-memory sealing key. Operations that need to
// decrypt account secrets will fail with DatabaseLocked until Unlock
// is called again.
func (s *Store) Lock() {
	s.sealMu.Lock()
	s.seal = nil
	s.sealMu.Unlock()
}

func (s *Store) loadOrCreateSalt() ([]byte, error) {
	data, err := os.ReadFile(s.saltPath())
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read salt file: %w", err)
	}
	salt, err := newSalt()
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := os.WriteFile(s.saltPath(), salt, 0600); err != nil {
		return nil, fmt.Errorf("write salt file: %w", err)
	}
	return salt, nil
}

func (s *Store) sealSecret(plaintext []byte) (ciphertext, nonce []byte, err error) {
	s.sealMu.RLock()
	defer s.sealMu.RUnlock()
	if s.seal == nil {
		return nil, nil, walleterr.New(walleterr.DatabaseLocked, "wallet database is locked")
	}
	return s.seal.seal(plaintext)
}

func (s *Store) openSecret(ciphertext, nonce []byte) ([]byte, error) {
	s.sealMu.RLock()
	defer s.sealMu.RUnlock()
	if s.seal == nil {
		return nil, walleterr.New(walleterr.DatabaseLocked, "wallet database is locked")
	}
	return s.seal.open(ciphertext, nonce)
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return stringsContains(err.Error(), "UNIQUE constraint failed")
}

func stringsContains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func nowUnix() int64 {
	return time.Now().Unix()
}
