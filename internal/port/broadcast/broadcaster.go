// Package broadcast defines the port for pushing live updates to connected
// dashboard clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to clients watching a workflow.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all clients subscribed to the
	// given workflow.
	BroadcastEvent(ctx context.Context, workflowID, eventType string, payload any)
}
