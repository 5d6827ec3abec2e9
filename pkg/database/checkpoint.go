package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/delegation"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/revocation"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/trustchain"
)

// Checkpointer moves state between the authoritative in-memory core and
// the checkpoint tables. Restore replays attestation and delegation rows
// through the core's own verifying add paths, so a tampered row of either
// kind surfaces as a dropped record rather than as silently trusted state.
// Revocation rows are loaded as stored: Registry.Revoke does not verify
// their signatures.
type Checkpointer struct {
	attestations *AttestationRepository
	revocations  *RevocationRepository
	delegations  *DelegationRepository
	auditEntries *AuditRepository
	logger       *log.Logger
}

// NewCheckpointer creates a Checkpointer over the client's repositories.
func NewCheckpointer(client *Client, logger *log.Logger) *Checkpointer {
	if logger == nil {
		logger = log.New(log.Writer(), "[checkpoint] ", log.LstdFlags)
	}
	return &Checkpointer{
		attestations: NewAttestationRepository(client),
		revocations:  NewRevocationRepository(client),
		delegations:  NewDelegationRepository(client),
		auditEntries: NewAuditRepository(client),
		logger:       logger,
	}
}

// Restore rebuilds the in-memory chain and registries from the
// checkpoint tables. Revocations load first so the chain's add-time
// revocation checks see them. Returns the restored audit trail (a fresh
// empty trail when no entries are checkpointed).
func (c *Checkpointer) Restore(ctx context.Context, chain *trustchain.Chain,
	revs *revocation.Registry, dels *delegation.Registry) (*audit.Trail, error) {

	revRows, err := c.revocations.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore revocations: %w", err)
	}
	for _, row := range revRows {
		revs.Revoke(&revocation.Entry{
			TargetID:  row.TargetID,
			Reason:    revocation.Reason(row.Reason),
			RevokedBy: row.RevokedBy,
			Scope:     row.Scope,
			Timestamp: row.Timestamp.UTC().Format(time.RFC3339),
			Signature: row.Signature,
		})
	}

	attRows, err := c.attestations.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore attestations: %w", err)
	}
	restored, dropped := 0, 0
	for _, row := range attRows {
		a := &trustchain.Attestation{
			Subject:       row.Subject,
			Witness:       row.Witness,
			Task:          row.Task,
			Evidence:      row.Evidence,
			Timestamp:     row.Timestamp.UTC().Format(time.RFC3339),
			WitnessPubkey: row.WitnessPubkey,
			Signature:     row.Signature,
		}
		if chain.Add(a) {
			restored++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		c.logger.Printf("restore dropped %d attestations that no longer verify", dropped)
	}

	delRows, err := c.delegations.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore delegations: %w", err)
	}
	for _, row := range delRows {
		expiresAt := ""
		if row.ExpiresAt != nil {
			expiresAt = row.ExpiresAt.UTC().Format(time.RFC3339)
		}
		d := &delegation.Delegation{
			DelegationID: row.DelegationID,
			Principal:    row.Principal,
			Delegate:     row.Delegate,
			Scopes:       row.Scopes,
			MaxDepth:     row.MaxDepth,
			Depth:        row.Depth,
			ParentID:     row.ParentID,
			ExpiresAt:    expiresAt,
			Timestamp:    row.Timestamp.UTC().Format(time.RFC3339),
			SignerPubkey: row.SignerPubkey,
			Signature:    row.Signature,
		}
		if err := dels.Add(d); err != nil {
			c.logger.Printf("restore dropped delegation %s: %v", row.DelegationID, err)
		}
	}

	auditRows, err := c.auditEntries.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore audit entries: %w", err)
	}
	if len(auditRows) == 0 {
		c.logger.Printf("restored %d attestations, %d revocation entries, %d delegations",
			restored, len(revRows), len(delRows))
		return audit.New(), nil
	}

	entries := make([]*audit.Entry, 0, len(auditRows))
	for _, row := range auditRows {
		details := map[string]interface{}{}
		if row.Details != "" {
			if err := json.Unmarshal([]byte(row.Details), &details); err != nil {
				return nil, fmt.Errorf("restore audit entry %d: malformed details: %w", row.Sequence, err)
			}
		}
		entries = append(entries, &audit.Entry{
			Sequence:  row.Sequence,
			Timestamp: row.Timestamp,
			EventType: audit.EventType(row.EventType),
			AgentID:   row.AgentID,
			Details:   details,
			PrevHash:  row.PrevHash,
			EntryHash: row.EntryHash,
		})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("restore audit trail: %w", err)
	}
	trail, err := audit.FromJSON(data)
	if err != nil {
		// IntegrityBroken on a checkpointed trail is fatal by design
		return nil, fmt.Errorf("restore audit trail: %w", err)
	}

	c.logger.Printf("restored %d attestations, %d revocation entries, %d delegations, %d audit entries",
		restored, len(revRows), len(delRows), trail.Size())
	return trail, nil
}

// Sync checkpoints the chain's attestations and any audit entries past
// the last checkpointed sequence. Attestation inserts ignore an already
// stored attestation_id and audit entries at or below that sequence are
// skipped, so re-syncing overlapping state is harmless.
func (c *Checkpointer) Sync(ctx context.Context, chain *trustchain.Chain, trail *audit.Trail) error {
	for _, a := range chain.Attestations() {
		ts, err := time.Parse(time.RFC3339, a.Timestamp)
		if err != nil {
			ts = time.Now().UTC()
		}
		row := &AttestationRow{
			AttestationID: a.AttestationID(),
			Witness:       a.Witness,
			WitnessPubkey: a.WitnessPubkey,
			Subject:       a.Subject,
			Task:          a.Task,
			Evidence:      a.Evidence,
			Timestamp:     ts,
			Signature:     a.Signature,
		}
		if err := c.attestations.Create(ctx, row); err != nil {
			return err
		}
	}

	last, err := c.auditEntries.MaxSequence(ctx)
	if err != nil {
		return err
	}
	data, err := trail.ExportJSON()
	if err != nil {
		return fmt.Errorf("sync audit trail: %w", err)
	}
	var entries []*audit.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("sync audit trail: %w", err)
	}
	for _, e := range entries {
		if e.Sequence <= last {
			continue
		}
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("sync audit entry %d: %w", e.Sequence, err)
		}
		row := &AuditRow{
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
			EventType: string(e.EventType),
			AgentID:   e.AgentID,
			Details:   string(details),
			PrevHash:  e.PrevHash,
			EntryHash: e.EntryHash,
		}
		if err := c.auditEntries.Append(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
