package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKeyRepository stores API keys for the service projection's write
// endpoints. Only sha256(key) ever reaches the table; the plaintext key
// exists once, in the response that minted it.
type APIKeyRepository struct {
	client *Client
	salt   string
}

// NewAPIKeyRepository creates a new API key repository. salt, when
// non-empty, is mixed into the hash so a leaked table cannot be checked
// against candidate keys without the service config.
func NewAPIKeyRepository(client *Client, salt string) *APIKeyRepository {
	return &APIKeyRepository{client: client, salt: salt}
}

// APIKeyRow is the persisted shape of an API key record.
type APIKeyRow struct {
	ID        string
	KeyHash   string
	Label     string
	CreatedAt time.Time
	Revoked   bool
}

func (r *APIKeyRepository) hash(key string) string {
	sum := sha256.Sum256([]byte(r.salt + key))
	return hex.EncodeToString(sum[:])
}

// Mint generates a new API key, stores its hash, and returns the
// plaintext key alongside the stored row. The plaintext is not
// recoverable afterward.
func (r *APIKeyRepository) Mint(ctx context.Context, label string) (string, *APIKeyRow, error) {
	key := uuid.NewString() + uuid.NewString()
	row := &APIKeyRow{
		ID:        uuid.NewString(),
		KeyHash:   r.hash(key),
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO api_keys (id, key_hash, label, created_at, revoked)
		VALUES ($1, $2, $3, $4, FALSE)`
	if _, err := r.client.ExecContext(ctx, query, row.ID, row.KeyHash, row.Label, row.CreatedAt); err != nil {
		return "", nil, fmt.Errorf("mint api key: %w", err)
	}
	return key, row, nil
}

// Authenticate looks up the presented plaintext key by hash and reports
// whether it exists and is not revoked.
func (r *APIKeyRepository) Authenticate(ctx context.Context, key string) (*APIKeyRow, error) {
	query := `SELECT id, key_hash, label, created_at, revoked FROM api_keys WHERE key_hash = $1`

	row := &APIKeyRow{}
	err := r.client.QueryRowContext(ctx, query, r.hash(key)).Scan(
		&row.ID, &row.KeyHash, &row.Label, &row.CreatedAt, &row.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate api key: %w", err)
	}
	if row.Revoked {
		return nil, ErrAPIKeyNotFound
	}
	return row, nil
}

// Revoke marks the key with the given id as revoked.
func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	res, err := r.client.ExecContext(ctx, `UPDATE api_keys SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}
