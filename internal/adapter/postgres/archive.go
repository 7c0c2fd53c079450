package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowdeck/flowdeck/internal/domain/stream"
)

// Archive implements the archive port using PostgreSQL (append-only).
// The bigserial seq preserves arrival order; duplicate event IDs are
// stored as-is since the stream makes no dedup promises.
type Archive struct {
	pool *pgxpool.Pool
}

// NewArchive creates an Archive backed by the given connection pool.
func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

// Append inserts one envelope into the archive.
func (a *Archive) Append(ctx context.Context, env stream.Envelope) error {
	var emitted *time.Time
	if !env.Timestamp.IsZero() {
		emitted = &env.Timestamp
	}

	_, err := a.pool.Exec(ctx,
		`INSERT INTO envelopes (event_id, workflow_id, event_type, payload, emitted_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		env.ID, env.WorkflowID, string(env.Type), env.Payload, emitted)
	if err != nil {
		return fmt.Errorf("append envelope: %w", err)
	}
	return nil
}

// LoadByWorkflow returns all archived envelopes for the workflow in
// arrival order, ready to fold back through the reducer.
func (a *Archive) LoadByWorkflow(ctx context.Context, workflowID string) ([]stream.Envelope, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT event_id, workflow_id, event_type, payload, COALESCE(emitted_at, received_at)
		 FROM envelopes WHERE workflow_id = $1 ORDER BY seq ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load envelopes for %s: %w", workflowID, err)
	}
	defer rows.Close()

	var envs []stream.Envelope
	for rows.Next() {
		var env stream.Envelope
		if err := rows.Scan(&env.ID, &env.WorkflowID, &env.Type, &env.Payload, &env.Timestamp); err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

// ListWorkflows returns the distinct workflow IDs present in the archive,
// most recently active first.
func (a *Archive) ListWorkflows(ctx context.Context) ([]string, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT workflow_id FROM envelopes GROUP BY workflow_id ORDER BY max(seq) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list archived workflows: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workflow id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
