package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AttestationRepository checkpoints trust-chain attestations.
type AttestationRepository struct {
	client *Client
}

// NewAttestationRepository creates a new attestation repository.
func NewAttestationRepository(client *Client) *AttestationRepository {
	return &AttestationRepository{client: client}
}

// AttestationRow is the persisted shape of a trustchain.Attestation.
type AttestationRow struct {
	AttestationID string
	Witness       string
	WitnessPubkey string
	Subject       string
	Task          string
	Evidence      string
	Timestamp     time.Time
	Signature     string
}

// Create inserts an attestation checkpoint, ignoring duplicates on conflict
// since attestation_id is derived deterministically from its content.
func (r *AttestationRepository) Create(ctx context.Context, a *AttestationRow) error {
	query := `
		INSERT INTO attestations (
			attestation_id, witness, witness_pubkey, subject, task, evidence, "timestamp", signature
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (attestation_id) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query,
		a.AttestationID, a.Witness, a.WitnessPubkey, a.Subject, a.Task, a.Evidence, a.Timestamp, a.Signature)
	if err != nil {
		return fmt.Errorf("create attestation: %w", err)
	}
	return nil
}

// Get retrieves a single attestation by its content-derived id.
func (r *AttestationRepository) Get(ctx context.Context, attestationID string) (*AttestationRow, error) {
	query := `
		SELECT attestation_id, witness, witness_pubkey, subject, task, evidence, "timestamp", signature
		FROM attestations WHERE attestation_id = $1`

	a := &AttestationRow{}
	err := r.client.QueryRowContext(ctx, query, attestationID).Scan(
		&a.AttestationID, &a.Witness, &a.WitnessPubkey, &a.Subject, &a.Task, &a.Evidence, &a.Timestamp, &a.Signature)
	if err == sql.ErrNoRows {
		return nil, ErrAttestationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attestation: %w", err)
	}
	return a, nil
}

// BySubject returns all attestations endorsing subject, oldest first.
func (r *AttestationRepository) BySubject(ctx context.Context, subject string) ([]*AttestationRow, error) {
	return r.queryMany(ctx, `
		SELECT attestation_id, witness, witness_pubkey, subject, task, evidence, "timestamp", signature
		FROM attestations WHERE subject = $1 ORDER BY "timestamp" ASC`, subject)
}

// ByWitness returns all attestations authored by witness, oldest first.
func (r *AttestationRepository) ByWitness(ctx context.Context, witness string) ([]*AttestationRow, error) {
	return r.queryMany(ctx, `
		SELECT attestation_id, witness, witness_pubkey, subject, task, evidence, "timestamp", signature
		FROM attestations WHERE witness = $1 ORDER BY "timestamp" ASC`, witness)
}

// All returns every checkpointed attestation, used to rebuild an in-memory
// Chain on service start.
func (r *AttestationRepository) All(ctx context.Context) ([]*AttestationRow, error) {
	return r.queryMany(ctx, `
		SELECT attestation_id, witness, witness_pubkey, subject, task, evidence, "timestamp", signature
		FROM attestations ORDER BY "timestamp" ASC`)
}

func (r *AttestationRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*AttestationRow, error) {
	rows, err := r.client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attestations: %w", err)
	}
	defer rows.Close()

	var out []*AttestationRow
	for rows.Next() {
		a := &AttestationRow{}
		if err := rows.Scan(&a.AttestationID, &a.Witness, &a.WitnessPubkey, &a.Subject, &a.Task, &a.Evidence, &a.Timestamp, &a.Signature); err != nil {
			return nil, fmt.Errorf("scan attestation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountBySubject returns the number of attestations endorsing subject.
func (r *AttestationRepository) CountBySubject(ctx context.Context, subject string) (int, error) {
	var count int
	err := r.client.QueryRowContext(ctx, `SELECT COUNT(*) FROM attestations WHERE subject = $1`, subject).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attestations: %w", err)
	}
	return count, nil
}
