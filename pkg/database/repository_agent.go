package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AgentRepository checkpoints registered agent identities.
type AgentRepository struct {
	client *Client
}

// NewAgentRepository creates a new agent repository.
func NewAgentRepository(client *Client) *AgentRepository {
	return &AgentRepository{client: client}
}

// AgentRow is the persisted shape of a registered agent identity.
type AgentRow struct {
	AgentID     string
	PublicKey   string
	DisplayName string
	CreatedAt   time.Time
}

// Create registers a new agent, or is a no-op if the agent_id already exists
// (the id is a deterministic hash of the public key, so a conflict means the
// same identity re-registering).
func (r *AgentRepository) Create(ctx context.Context, a *AgentRow) error {
	query := `
		INSERT INTO agents (agent_id, public_key, display_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_id) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query, a.AgentID, a.PublicKey, a.DisplayName, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// Get retrieves an agent by id.
func (r *AgentRepository) Get(ctx context.Context, agentID string) (*AgentRow, error) {
	query := `SELECT agent_id, public_key, display_name, created_at FROM agents WHERE agent_id = $1`

	a := &AgentRow{}
	err := r.client.QueryRowContext(ctx, query, agentID).Scan(&a.AgentID, &a.PublicKey, &a.DisplayName, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// Count returns the total number of registered agents.
func (r *AgentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.client.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return count, nil
}
