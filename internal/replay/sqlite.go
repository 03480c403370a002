package replay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS spent_nonces (
	network TEXT NOT NULL,
	nonce   TEXT NOT NULL,
	seen_at INTEGER NOT NULL,
	PRIMARY KEY (network, nonce)
);`

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists spent nonces so replay protection survives a server
// restart.  Atomicity comes from the primary key: INSERT OR IGNORE admits
// exactly one writer per (network, nonce).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the nonce database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open nonce database: %w", err)
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return store, nil
}

// NewSQLiteStore wraps an existing database handle, applying the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply nonce schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) MarkSpent(ctx context.Context, network, nonce string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO spent_nonces (network, nonce, seen_at) VALUES (?, ?, ?)",
		network, nonce, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record nonce: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record nonce: %w", err)
	}

	return n == 1, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
