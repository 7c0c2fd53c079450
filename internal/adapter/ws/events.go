package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// BroadcastEvent marshals a typed event and fans it out to the workflow's
// subscribers. Implements the broadcast port.
func (h *Hub) BroadcastEvent(ctx context.Context, workflowID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:       eventType,
		WorkflowID: workflowID,
		Payload:    json.RawMessage(data),
	})
}
