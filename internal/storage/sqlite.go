package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	_ "github.com/mattn/go-sqlite3"

	"subsbuzz-client-go/internal/auth"
)

var ErrInvalidKey = errors.New("invalid encryption key")

// tokenRowID is the fixed key for the single persisted credential row. Both
// tokens live in one row so they are always written and cleared together.
const tokenRowID = 1

// SQLiteStore is a durable auth.Store backed by a local SQLite file. The token
// pair is encrypted at rest with AES-GCM using a fresh nonce per write.
type SQLiteStore struct {
	db  *sql.DB
	key []byte
}

// Open opens (creating if needed) the SQLite database at path. key must be a
// valid AES key (16, 24, or 32 bytes).
func Open(path string, key []byte) (*SQLiteStore, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: length must be 16, 24, or 32 bytes, got %d", ErrInvalidKey, len(key))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, key: key}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// migrate creates the tokens table if it does not exist.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS tokens (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		encrypted_pair BLOB NOT NULL,
		nonce BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Get retrieves and decrypts the stored token pair. Returns (nil, nil) when
// nothing is stored.
func (s *SQLiteStore) Get(ctx context.Context) (*auth.TokenPair, error) {
	var encrypted, nonce []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT encrypted_pair, nonce FROM tokens WHERE id = ?",
		tokenRowID).Scan(&encrypted, &nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}

	aesgcm, err := s.cipher()
	if err != nil {
		return nil, err
	}
	plain, err := aesgcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt tokens: %w", err)
	}

	var pair auth.TokenPair
	if err := json.Unmarshal(plain, &pair); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens: %w", err)
	}
	return &pair, nil
}

// Set encrypts and stores the token pair, replacing any previous row whole.
func (s *SQLiteStore) Set(ctx context.Context, pair auth.TokenPair) error {
	plain, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	aesgcm, err := s.cipher()
	if err != nil {
		return err
	}
	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	encrypted := aesgcm.Seal(nil, nonce, plain, nil)

	query := `INSERT OR REPLACE INTO tokens (id, encrypted_pair, nonce, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)`
	if _, err := s.db.ExecContext(ctx, query, tokenRowID, encrypted, nonce); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// Clear removes the persisted pair. Both tokens go together, never one.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE id = ?", tokenRowID); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return aesgcm, nil
}
