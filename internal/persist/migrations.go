package persist

import (
	"database/sql"
	"fmt"
)

// migration is one forward-only schema change, applied in ascending
// Version order and recorded in schema_migrations so it never reapplies.
type migration struct {
	Version int
	Apply   func(*sql.Tx) error
}

// migrations lists every schema change after the baseline in
// schema.go. Add new entries here rather than editing schema.go's
// CREATE TABLE statements directly once a migration has shipped.
// Empty for now — schema.go's baseline is still the only version any
// deployed database has seen.
var migrations = []migration{}

func (s *Store) runMigrations() error {
	applied := make(map[int]bool)
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("query schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if err := m.Apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, strftime('%s','now'))`, m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
