package database

import (
	"context"
	"fmt"
	"time"
)

// RevocationRepository checkpoints revocation entries.
type RevocationRepository struct {
	client *Client
}

// NewRevocationRepository creates a new revocation repository.
func NewRevocationRepository(client *Client) *RevocationRepository {
	return &RevocationRepository{client: client}
}

// RevocationRow is the persisted shape of a revocation.Entry.
type RevocationRow struct {
	TargetID  string
	Reason    string
	RevokedBy string
	Scope     string
	Timestamp time.Time
	Signature string
}

// Create inserts a revocation checkpoint.
func (r *RevocationRepository) Create(ctx context.Context, e *RevocationRow) error {
	query := `
		INSERT INTO revocations (target_id, reason, revoked_by, scope, "timestamp", signature)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.client.ExecContext(ctx, query,
		e.TargetID, e.Reason, e.RevokedBy, e.Scope, e.Timestamp, e.Signature)
	if err != nil {
		return fmt.Errorf("create revocation: %w", err)
	}
	return nil
}

// ByTarget returns all revocation entries for a target, oldest first.
func (r *RevocationRepository) ByTarget(ctx context.Context, targetID string) ([]*RevocationRow, error) {
	return r.queryMany(ctx, `
		SELECT target_id, reason, revoked_by, scope, "timestamp", signature
		FROM revocations WHERE target_id = $1 ORDER BY "timestamp" ASC, id ASC`, targetID)
}

// All returns every checkpointed revocation, used to rebuild the
// in-memory registry on service start.
func (r *RevocationRepository) All(ctx context.Context) ([]*RevocationRow, error) {
	return r.queryMany(ctx, `
		SELECT target_id, reason, revoked_by, scope, "timestamp", signature
		FROM revocations ORDER BY "timestamp" ASC, id ASC`)
}

// DeleteByTarget removes all entries for a target, mirroring the
// registry's administrative Unrevoke.
func (r *RevocationRepository) DeleteByTarget(ctx context.Context, targetID string) (int64, error) {
	res, err := r.client.ExecContext(ctx, `DELETE FROM revocations WHERE target_id = $1`, targetID)
	if err != nil {
		return 0, fmt.Errorf("delete revocations: %w", err)
	}
	return res.RowsAffected()
}

func (r *RevocationRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*RevocationRow, error) {
	rows, err := r.client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query revocations: %w", err)
	}
	defer rows.Close()

	var out []*RevocationRow
	for rows.Next() {
		e := &RevocationRow{}
		if err := rows.Scan(&e.TargetID, &e.Reason, &e.RevokedBy, &e.Scope, &e.Timestamp, &e.Signature); err != nil {
			return nil, fmt.Errorf("scan revocation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
