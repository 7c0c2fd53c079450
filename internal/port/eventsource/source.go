// Package eventsource defines the port between streaming transports and
// the snapshot reducer.
package eventsource

import (
	"context"

	"github.com/flowdeck/flowdeck/internal/domain/stream"
)

// State is the connection lifecycle of a source.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Sink receives decoded envelopes and connectivity transitions. The
// implementation must serialize Apply calls; sources deliver strictly in
// arrival order from a single goroutine.
type Sink interface {
	Apply(env stream.Envelope)
	SetConnected(connected bool)
}

// Source owns one logical streaming connection feeding a Sink.
// Connect while already connected tears down the prior connection first,
// so a sink can never receive from two transports at once.
type Source interface {
	Connect(ctx context.Context) error
	Disconnect() error
	State() State
}
