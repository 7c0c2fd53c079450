// Package natsource implements the event source port over NATS JetStream,
// for engines that publish their lifecycle stream to a broker instead of
// serving WebSocket sessions.
package natsource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/flowdeck/flowdeck/internal/adapter/otel"
	"github.com/flowdeck/flowdeck/internal/domain"
	"github.com/flowdeck/flowdeck/internal/domain/stream"
	"github.com/flowdeck/flowdeck/internal/port/eventsource"
)

const streamName = "WORKFLOWS"

// subjectFor returns the per-workflow event subject.
func subjectFor(workflowID string) string {
	return fmt.Sprintf("workflows.%s.events", workflowID)
}

// Source consumes one workflow's envelope subject and feeds the sink.
// JetStream delivers consumer callbacks serially, which preserves the
// single-writer discipline into the reducer.
type Source struct {
	url        string
	workflowID string
	sink       eventsource.Sink
	metrics    *otel.Metrics // optional

	mu    sync.Mutex
	state eventsource.State
	nc    *nats.Conn
	cons  jetstream.ConsumeContext
}

// New creates a source for the given NATS URL and workflow.
func New(url, workflowID string, sink eventsource.Sink, metrics *otel.Metrics) (*Source, error) {
	if url == "" {
		return nil, domain.ErrNoEndpoint
	}
	return &Source{
		url:        url,
		workflowID: workflowID,
		sink:       sink,
		metrics:    metrics,
		state:      eventsource.StateDisconnected,
	}, nil
}

// Connect establishes the NATS connection, ensures the stream exists and
// starts consuming. An already-open connection is torn down first.
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.nc != nil {
		s.teardownLocked()
	}
	s.state = eventsource.StateConnecting
	s.mu.Unlock()

	nc, err := nats.Connect(s.url, nats.ClosedHandler(func(*nats.Conn) {
		s.onClosed()
	}))
	if err != nil {
		s.setDisconnected()
		return fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		s.setDisconnected()
		return fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"workflows.>"},
	})
	if err != nil {
		nc.Close()
		s.setDisconnected()
		return fmt.Errorf("jetstream stream create: %w", err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subjectFor(s.workflowID),
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		nc.Close()
		s.setDisconnected()
		return fmt.Errorf("jetstream consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		s.handle(msg)
	})
	if err != nil {
		nc.Close()
		s.setDisconnected()
		return fmt.Errorf("jetstream consume: %w", err)
	}

	s.mu.Lock()
	s.nc = nc
	s.cons = cons
	s.state = eventsource.StateConnected
	s.mu.Unlock()

	s.sink.SetConnected(true)
	if s.metrics != nil {
		s.metrics.OpenSessions.Add(ctx, 1)
	}
	slog.Info("nats stream connected",
		"url", s.url, "subject", subjectFor(s.workflowID))
	return nil
}

// handle decodes one broker message. Undecodable messages are acked and
// dropped: redelivering garbage would only produce the same garbage.
func (s *Source) handle(msg jetstream.Msg) {
	env, err := stream.Decode(msg.Data())
	if err != nil {
		slog.Warn("discarding undecodable message",
			"subject", msg.Subject(), "error", err)
		if s.metrics != nil {
			s.metrics.DecodeFailures.Add(context.Background(), 1)
		}
		_ = msg.Ack()
		return
	}

	start := time.Now()
	s.sink.Apply(env)
	if s.metrics != nil {
		s.metrics.ApplyDuration.Record(context.Background(), time.Since(start).Seconds())
		s.metrics.EventsReceived.Add(context.Background(), 1)
		if _, unknown := env.Event().(stream.Unrecognized); unknown {
			s.metrics.UnrecognizedEvents.Add(context.Background(), 1)
		}
	}

	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "subject", msg.Subject(), "error", err)
	}
}

// Disconnect stops the consumer and closes the connection. Safe to call
// at any time.
func (s *Source) Disconnect() error {
	s.mu.Lock()
	open := s.nc != nil
	if open {
		s.teardownLocked()
	}
	s.mu.Unlock()

	if open {
		s.sink.SetConnected(false)
		if s.metrics != nil {
			s.metrics.OpenSessions.Add(context.Background(), -1)
		}
	}
	return nil
}

// State returns the connection lifecycle state.
func (s *Source) State() eventsource.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Source) onClosed() {
	s.mu.Lock()
	wasOpen := s.nc != nil
	s.nc = nil
	s.cons = nil
	s.state = eventsource.StateDisconnected
	s.mu.Unlock()

	if wasOpen {
		slog.Info("nats stream closed", "url", s.url)
		s.sink.SetConnected(false)
		if s.metrics != nil {
			s.metrics.OpenSessions.Add(context.Background(), -1)
		}
	}
}

func (s *Source) setDisconnected() {
	s.mu.Lock()
	s.state = eventsource.StateDisconnected
	s.mu.Unlock()
}

// teardownLocked must be called with s.mu held.
func (s *Source) teardownLocked() {
	if s.cons != nil {
		s.cons.Stop()
		s.cons = nil
	}
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
	s.state = eventsource.StateDisconnected
}
