// Package archive defines the port for the append-only envelope archive.
package archive

import (
	"context"

	"github.com/flowdeck/flowdeck/internal/domain/stream"
)

// Store persists every received envelope and serves them back in arrival
// order for replay.
type Store interface {
	Append(ctx context.Context, env stream.Envelope) error
	LoadByWorkflow(ctx context.Context, workflowID string) ([]stream.Envelope, error)
	ListWorkflows(ctx context.Context) ([]string, error)
}
