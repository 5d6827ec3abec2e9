package database

import (
	"context"
	"database/sql"
	"fmt"
)

// AuditRepository checkpoints audit trail entries. The hash chain is
// recomputed and re-verified by audit.Trail on restore; the table stores
// entries verbatim and adds nothing.
type AuditRepository struct {
	client *Client
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(client *Client) *AuditRepository {
	return &AuditRepository{client: client}
}

// AuditRow is the persisted shape of an audit.Entry. Details is the
// entry's details object as JSON text; the checkpoint never interprets it.
type AuditRow struct {
	Sequence  int
	Timestamp float64
	EventType string
	AgentID   string
	Details   string
	PrevHash  string
	EntryHash string
}

// Append inserts an audit entry checkpoint. Sequence is the primary key,
// so re-checkpointing an already stored entry is a conflict and is
// ignored: the trail is append-only and an entry at a sequence never
// changes.
func (r *AuditRepository) Append(ctx context.Context, e *AuditRow) error {
	query := `
		INSERT INTO audit_entries (sequence, "timestamp", event_type, agent_id, details, prev_hash, entry_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query,
		e.Sequence, e.Timestamp, e.EventType, e.AgentID, e.Details, e.PrevHash, e.EntryHash)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Get retrieves the entry at sequence.
func (r *AuditRepository) Get(ctx context.Context, sequence int) (*AuditRow, error) {
	query := `
		SELECT sequence, "timestamp", event_type, agent_id, details, prev_hash, entry_hash
		FROM audit_entries WHERE sequence = $1`

	e := &AuditRow{}
	err := r.client.QueryRowContext(ctx, query, sequence).Scan(
		&e.Sequence, &e.Timestamp, &e.EventType, &e.AgentID, &e.Details, &e.PrevHash, &e.EntryHash)
	if err == sql.ErrNoRows {
		return nil, ErrAuditEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return e, nil
}

// All returns the full trail in sequence order, for restore-and-reverify
// on service start.
func (r *AuditRepository) All(ctx context.Context) ([]*AuditRow, error) {
	query := `
		SELECT sequence, "timestamp", event_type, agent_id, details, prev_hash, entry_hash
		FROM audit_entries ORDER BY sequence ASC`

	rows, err := r.client.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*AuditRow
	for rows.Next() {
		e := &AuditRow{}
		if err := rows.Scan(&e.Sequence, &e.Timestamp, &e.EventType, &e.AgentID, &e.Details, &e.PrevHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MaxSequence returns the highest checkpointed sequence, or -1 for an
// empty table, so the service knows where incremental checkpointing
// resumes.
func (r *AuditRepository) MaxSequence(ctx context.Context) (int, error) {
	var max sql.NullInt64
	if err := r.client.QueryRowContext(ctx, `SELECT MAX(sequence) FROM audit_entries`).Scan(&max); err != nil {
		return -1, fmt.Errorf("max audit sequence: %w", err)
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}
