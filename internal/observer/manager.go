package observer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowdeck/flowdeck/internal/domain"
	"github.com/flowdeck/flowdeck/internal/domain/snapshot"
	"github.com/flowdeck/flowdeck/internal/domain/stream"
	"github.com/flowdeck/flowdeck/internal/port/archive"
	"github.com/flowdeck/flowdeck/internal/port/broadcast"
	"github.com/flowdeck/flowdeck/internal/port/eventsource"
	"github.com/flowdeck/flowdeck/internal/resilience"
)

// SourceFactory builds an event source for an endpoint, delivering into
// the given sink. The transport is picked by endpoint scheme; workflowID
// scopes broker subscriptions.
type SourceFactory func(workflowID, endpoint string, sink eventsource.Sink) (eventsource.Source, error)

// observation pairs one session with the source feeding it.
type observation struct {
	session *Session
	source  eventsource.Source
}

// Options configures a Manager.
type Options struct {
	// LogLimit bounds per-snapshot envelope log retention (0 = unbounded).
	LogLimit int
	// BreakerMaxFailures and BreakerTimeout configure the per-workflow
	// connect circuit breaker.
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// Manager owns all observation sessions, one per workflow run. It accepts
// exactly two commands from subscribers, connect and disconnect; every
// other state change is event-driven.
type Manager struct {
	newSource SourceFactory
	archive   archive.Store         // optional
	hub       broadcast.Broadcaster // optional
	opts      Options

	// mu guards the maps only. Connects serialize per workflow through
	// locks, so a slow dial to one engine never blocks commands or
	// queries for other workflows.
	mu       sync.Mutex
	obs      map[string]*observation
	breakers map[string]*resilience.Breaker
	locks    map[string]*sync.Mutex
}

// NewManager creates a Manager. archiveStore and hub may be nil.
func NewManager(newSource SourceFactory, archiveStore archive.Store, hub broadcast.Broadcaster, opts Options) *Manager {
	return &Manager{
		newSource: newSource,
		archive:   archiveStore,
		hub:       hub,
		opts:      opts,
		obs:       make(map[string]*observation),
		breakers:  make(map[string]*resilience.Breaker),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Connect starts observing a workflow run at the given endpoint. A fresh
// Snapshot is created every time: a dead connection is never resumed into
// an old Snapshot. If the workflow is already being observed, its prior
// source is torn down first so the sink can never double-apply.
func (m *Manager) Connect(ctx context.Context, workflowID, endpoint string) error {
	if endpoint == "" {
		return domain.ErrNoEndpoint
	}

	wfMu := m.workflowLock(workflowID)
	wfMu.Lock()
	defer wfMu.Unlock()

	m.mu.Lock()
	prior, hadPrior := m.obs[workflowID]
	breaker := m.breakerForLocked(workflowID)
	m.mu.Unlock()

	if hadPrior {
		if err := prior.source.Disconnect(); err != nil {
			slog.Warn("teardown of prior connection failed",
				"workflow_id", workflowID, "error", err)
		}
	}

	session := NewSession(workflowID, m.opts.LogLimit)
	m.wireSubscribers(session)

	source, err := m.newSource(workflowID, endpoint, session)
	if err != nil {
		return fmt.Errorf("create source for %s: %w", endpoint, err)
	}

	if err := breaker.Execute(func() error { return source.Connect(ctx) }); err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}

	m.mu.Lock()
	m.obs[workflowID] = &observation{session: session, source: source}
	m.mu.Unlock()

	slog.Info("observation started",
		"workflow_id", workflowID, "session_id", session.ID(), "endpoint", endpoint)
	return nil
}

// wireSubscribers attaches the archive writer and hub fan-out to a new
// session. Both run synchronously on the apply path and must stay cheap.
func (m *Manager) wireSubscribers(s *Session) {
	if m.archive != nil {
		s.Subscribe(func(_ snapshot.Snapshot, env stream.Envelope) {
			if err := m.archive.Append(context.Background(), env); err != nil {
				slog.Error("archive append failed",
					"workflow_id", s.WorkflowID(), "event_id", env.ID, "error", err)
			}
		})
	}
	if m.hub != nil {
		s.Subscribe(func(view snapshot.Snapshot, env stream.Envelope) {
			m.hub.BroadcastEvent(context.Background(), s.WorkflowID(), broadcast.EventStreamEnvelope, env)
			m.hub.BroadcastEvent(context.Background(), s.WorkflowID(), broadcast.EventSnapshotStatus, broadcast.SnapshotStatusEvent{
				WorkflowID: view.WorkflowID,
				Status:     string(view.Status),
				Progress:   view.Progress,
				Connected:  view.Connected,
			})
		})
		s.SubscribeConnectivity(func(view snapshot.Snapshot) {
			m.hub.BroadcastEvent(context.Background(), s.WorkflowID(), broadcast.EventConnectivity, broadcast.ConnectivityEvent{
				WorkflowID: view.WorkflowID,
				Connected:  view.Connected,
			})
		})
	}
}

// workflowLock returns the per-workflow connect lock, creating it on
// first use. Lock entries are tiny and kept for the manager's lifetime.
func (m *Manager) workflowLock(workflowID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[workflowID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[workflowID] = l
	}
	return l
}

// breakerForLocked must be called with m.mu held.
func (m *Manager) breakerForLocked(workflowID string) *resilience.Breaker {
	b, ok := m.breakers[workflowID]
	if !ok {
		b = resilience.NewBreaker(m.opts.BreakerMaxFailures, m.opts.BreakerTimeout)
		m.breakers[workflowID] = b
	}
	return b
}

// Disconnect closes the transport for a workflow. The Snapshot stays
// queryable, frozen with connected=false, until Discard.
func (m *Manager) Disconnect(workflowID string) error {
	m.mu.Lock()
	o, ok := m.obs[workflowID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	return o.source.Disconnect()
}

// Discard drops a workflow's session and Snapshot entirely, closing its
// transport if still open.
func (m *Manager) Discard(workflowID string) error {
	m.mu.Lock()
	o, ok := m.obs[workflowID]
	delete(m.obs, workflowID)
	delete(m.breakers, workflowID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	return o.source.Disconnect()
}

// Snapshot returns a read-only view of a workflow's current Snapshot.
func (m *Manager) Snapshot(workflowID string) (snapshot.Snapshot, error) {
	m.mu.Lock()
	o, ok := m.obs[workflowID]
	m.mu.Unlock()
	if !ok {
		return snapshot.Snapshot{}, fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	return o.session.Snapshot(), nil
}

// WorkflowInfo summarizes one observed workflow for listings.
type WorkflowInfo struct {
	WorkflowID string                  `json:"workflow_id"`
	SessionID  string                  `json:"session_id"`
	Status     snapshot.WorkflowStatus `json:"status"`
	Progress   int                     `json:"progress"`
	Connected  bool                    `json:"connected"`
	State      eventsource.State       `json:"connection_state"`
}

// List returns a summary of every observed workflow.
func (m *Manager) List() []WorkflowInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]WorkflowInfo, 0, len(m.obs))
	for id, o := range m.obs {
		view := o.session.Snapshot()
		infos = append(infos, WorkflowInfo{
			WorkflowID: id,
			SessionID:  o.session.ID(),
			Status:     view.Status,
			Progress:   view.Progress,
			Connected:  view.Connected,
			State:      o.source.State(),
		})
	}
	return infos
}

// ArchivedWorkflows returns the workflow IDs present in the archive, so
// a dashboard can discover which past runs are available for replay.
func (m *Manager) ArchivedWorkflows(ctx context.Context) ([]string, error) {
	if m.archive == nil {
		return nil, fmt.Errorf("list archived workflows: no archive configured")
	}
	ids, err := m.archive.ListWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list archived workflows: %w", err)
	}
	return ids, nil
}

// Replay rebuilds a Snapshot for an archived workflow by folding its
// stored envelopes through the reducer, in stored order. The live session
// (if any) is untouched.
func (m *Manager) Replay(ctx context.Context, workflowID string) (snapshot.Snapshot, error) {
	if m.archive == nil {
		return snapshot.Snapshot{}, fmt.Errorf("replay %s: no archive configured", workflowID)
	}

	envs, err := m.archive.LoadByWorkflow(ctx, workflowID)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("load archived envelopes: %w", err)
	}
	if len(envs) == 0 {
		return snapshot.Snapshot{}, fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}

	snap := snapshot.New(workflowID)
	for _, env := range envs {
		snapshot.Apply(snap, env)
	}
	return snap.View(), nil
}
