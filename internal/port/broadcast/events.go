package broadcast

// Event type constants for dashboard messages.
const (
	// EventStreamEnvelope re-broadcasts one raw engine envelope.
	EventStreamEnvelope = "stream.event"
	// EventSnapshotStatus carries the headline snapshot fields after an apply.
	EventSnapshotStatus = "snapshot.status"
	// EventConnectivity signals an upstream transport open/close.
	EventConnectivity = "snapshot.connectivity"
)

// SnapshotStatusEvent is pushed after every applied envelope.
type SnapshotStatusEvent struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	Connected  bool   `json:"connected"`
}

// ConnectivityEvent is pushed when the upstream transport opens or closes.
type ConnectivityEvent struct {
	WorkflowID string `json:"workflow_id"`
	Connected  bool   `json:"connected"`
}
