// Package observer owns live observation sessions: one Snapshot per
// workflow run, fed by exactly one event source, read by many.
package observer

import (
	"sync"

	"github.com/google/uuid"

	"github.com/flowdeck/flowdeck/internal/domain/snapshot"
	"github.com/flowdeck/flowdeck/internal/domain/stream"
)

// Subscriber is notified synchronously after each applied envelope, from
// the single-writer path. It receives a read-only view and must not block.
type Subscriber func(view snapshot.Snapshot, env stream.Envelope)

// ConnectivitySubscriber is notified when the transport opens or closes.
type ConnectivitySubscriber func(view snapshot.Snapshot)

// Session owns the Snapshot of one workflow run. All mutation goes through
// Apply/SetConnected under a single mutex; readers only ever see copies.
type Session struct {
	id         string
	workflowID string

	mu       sync.Mutex
	snap     *snapshot.Snapshot
	subs     []Subscriber
	connSubs []ConnectivitySubscriber
}

// NewSession creates a session with a fresh, empty Snapshot. logLimit
// bounds envelope log retention (0 = unbounded).
func NewSession(workflowID string, logLimit int) *Session {
	snap := snapshot.New(workflowID)
	snap.LogLimit = logLimit
	return &Session{
		id:         uuid.NewString(),
		workflowID: workflowID,
		snap:       snap,
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// WorkflowID returns the workflow run this session observes.
func (s *Session) WorkflowID() string { return s.workflowID }

// Subscribe registers a per-envelope subscriber. Register before the
// source connects; subscriptions are not synchronized with Apply.
func (s *Session) Subscribe(fn Subscriber) {
	s.subs = append(s.subs, fn)
}

// SubscribeConnectivity registers a connectivity-transition subscriber.
func (s *Session) SubscribeConnectivity(fn ConnectivitySubscriber) {
	s.connSubs = append(s.connSubs, fn)
}

// Apply folds one envelope into the snapshot and notifies subscribers.
// The envelope's effect is atomic: the lock is held across the whole
// reduction, so readers never observe a half-applied event.
func (s *Session) Apply(env stream.Envelope) {
	s.mu.Lock()
	snapshot.Apply(s.snap, env)
	view := s.snap.View()
	s.mu.Unlock()

	for _, fn := range s.subs {
		fn(view, env)
	}
}

// SetConnected records a transport open/close. It touches only the
// connectivity flag; workflow status is orthogonal.
func (s *Session) SetConnected(connected bool) {
	s.mu.Lock()
	changed := s.snap.Connected != connected
	s.snap.Connected = connected
	view := s.snap.View()
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range s.connSubs {
		fn(view)
	}
}

// Snapshot returns a deep-copied read-only view.
func (s *Session) Snapshot() snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.View()
}
