package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps credentials in a tokens table keyed by account name.
type SQLiteStore struct {
	db    *sql.DB
	codec Codec
}

// OpenSQLiteStore opens (and if needed creates) the database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLiteStore(ctx context.Context, path string, enc *Encryption) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tokens (
		account_name TEXT PRIMARY KEY,
		token TEXT)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tokens table: %w", err)
	}

	return &SQLiteStore{db: db, codec: Codec{Encryption: enc}}, nil
}

// Load reads the account's row.
func (s *SQLiteStore) Load(ctx context.Context, account string) (Credential, error) {
	var token string
	err := s.db.QueryRowContext(ctx, "SELECT token FROM tokens WHERE account_name = ?", account).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}
	return s.codec.Unmarshal([]byte(token))
}

// Save replaces the account's row.
func (s *SQLiteStore) Save(ctx context.Context, account string, c Credential) error {
	data, err := s.codec.Marshal(c)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO tokens (account_name, token) VALUES (?, ?)", account, string(data)); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Delete removes the account's row.
func (s *SQLiteStore) Delete(ctx context.Context, account string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE account_name = ?", account); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
