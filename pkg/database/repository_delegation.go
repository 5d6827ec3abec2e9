package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DelegationRepository checkpoints delegation records.
type DelegationRepository struct {
	client *Client
}

// NewDelegationRepository creates a new delegation repository.
func NewDelegationRepository(client *Client) *DelegationRepository {
	return &DelegationRepository{client: client}
}

// DelegationRow is the persisted shape of a delegation.Delegation.
// Scopes are stored comma-joined; scope labels are validated not to
// contain commas at the service boundary.
type DelegationRow struct {
	DelegationID string
	Principal    string
	Delegate     string
	Scopes       []string
	MaxDepth     int
	Depth        int
	ParentID     string
	ExpiresAt    *time.Time
	Timestamp    time.Time
	SignerPubkey string
	Signature    string
}

// Create inserts a delegation checkpoint, ignoring duplicates since
// delegation_id is derived deterministically from content.
func (r *DelegationRepository) Create(ctx context.Context, d *DelegationRow) error {
	query := `
		INSERT INTO delegations (
			delegation_id, principal, delegate, scopes, max_depth, depth,
			parent_id, expires_at, "timestamp", signer_pubkey, signature
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (delegation_id) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query,
		d.DelegationID, d.Principal, d.Delegate, strings.Join(d.Scopes, ","),
		d.MaxDepth, d.Depth, d.ParentID, d.ExpiresAt, d.Timestamp, d.SignerPubkey, d.Signature)
	if err != nil {
		return fmt.Errorf("create delegation: %w", err)
	}
	return nil
}

// Get retrieves a delegation by its content-derived id.
func (r *DelegationRepository) Get(ctx context.Context, delegationID string) (*DelegationRow, error) {
	query := `
		SELECT delegation_id, principal, delegate, scopes, max_depth, depth,
		       parent_id, expires_at, "timestamp", signer_pubkey, signature
		FROM delegations WHERE delegation_id = $1`

	row := r.client.QueryRowContext(ctx, query, delegationID)
	d, err := scanDelegation(row)
	if err == sql.ErrNoRows {
		return nil, ErrDelegationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delegation: %w", err)
	}
	return d, nil
}

// ByDelegate returns all delegations granted to delegate, oldest first.
func (r *DelegationRepository) ByDelegate(ctx context.Context, delegate string) ([]*DelegationRow, error) {
	query := `
		SELECT delegation_id, principal, delegate, scopes, max_depth, depth,
		       parent_id, expires_at, "timestamp", signer_pubkey, signature
		FROM delegations WHERE delegate = $1 ORDER BY "timestamp" ASC`

	rows, err := r.client.QueryContext(ctx, query, delegate)
	if err != nil {
		return nil, fmt.Errorf("query delegations: %w", err)
	}
	defer rows.Close()
	return collectDelegations(rows)
}

// All returns every checkpointed delegation, parents before children so
// that replaying them through delegation.Registry.Add never hits a
// missing parent.
func (r *DelegationRepository) All(ctx context.Context) ([]*DelegationRow, error) {
	query := `
		SELECT delegation_id, principal, delegate, scopes, max_depth, depth,
		       parent_id, expires_at, "timestamp", signer_pubkey, signature
		FROM delegations ORDER BY depth ASC, "timestamp" ASC`

	rows, err := r.client.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query delegations: %w", err)
	}
	defer rows.Close()
	return collectDelegations(rows)
}

type delegationScanner interface {
	Scan(dest ...interface{}) error
}

func scanDelegation(s delegationScanner) (*DelegationRow, error) {
	d := &DelegationRow{}
	var scopes string
	var expiresAt sql.NullTime
	if err := s.Scan(&d.DelegationID, &d.Principal, &d.Delegate, &scopes, &d.MaxDepth,
		&d.Depth, &d.ParentID, &expiresAt, &d.Timestamp, &d.SignerPubkey, &d.Signature); err != nil {
		return nil, err
	}
	if scopes != "" {
		d.Scopes = strings.Split(scopes, ",")
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		d.ExpiresAt = &t
	}
	return d, nil
}

func collectDelegations(rows *sql.Rows) ([]*DelegationRow, error) {
	var out []*DelegationRow
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delegation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
