// Package wsclient implements the event source port over a WebSocket
// connection to the workflow engine's stream endpoint.
package wsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/flowdeck/flowdeck/internal/adapter/otel"
	"github.com/flowdeck/flowdeck/internal/domain"
	"github.com/flowdeck/flowdeck/internal/domain/stream"
	"github.com/flowdeck/flowdeck/internal/port/eventsource"
)

// Client owns one logical WebSocket connection feeding decoded envelopes
// into a sink. Message handling is serialized: the single read loop calls
// the sink once per decoded envelope, strictly in arrival order.
type Client struct {
	endpoint string
	sink     eventsource.Sink
	metrics  *otel.Metrics // optional

	mu     sync.Mutex
	state  eventsource.State
	ws     *websocket.Conn
	cancel context.CancelFunc
	gen    int // connection generation; stale read loops must not clobber state
}

// New creates a client for the given endpoint. Fails fast on an empty
// endpoint: connecting without a target is a caller bug.
func New(endpoint string, sink eventsource.Sink, metrics *otel.Metrics) (*Client, error) {
	if endpoint == "" {
		return nil, domain.ErrNoEndpoint
	}
	return &Client{
		endpoint: endpoint,
		sink:     sink,
		metrics:  metrics,
		state:    eventsource.StateDisconnected,
	}, nil
}

// Connect dials the endpoint and starts the read loop. Calling Connect
// while a connection is open tears the prior one down first, so the sink
// never receives from two transports.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.ws != nil {
		c.teardownLocked()
	}
	c.state = eventsource.StateConnecting
	c.mu.Unlock()

	ws, _, err := websocket.Dial(ctx, c.endpoint, nil)
	if err != nil {
		c.mu.Lock()
		c.state = eventsource.StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.endpoint, err)
	}

	// The read loop outlives the dial context; it stops on teardown or
	// transport error.
	readCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.ws = ws
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.state = eventsource.StateConnected
	c.mu.Unlock()

	c.sink.SetConnected(true)
	if c.metrics != nil {
		c.metrics.OpenSessions.Add(ctx, 1)
	}
	slog.Info("stream connected", "endpoint", c.endpoint)

	go c.readLoop(readCtx, ws, gen)
	return nil
}

// readLoop receives frames until the connection dies or is torn down.
// Decode failures are logged and discarded; they never end the session.
func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			c.onClose(gen, err)
			return
		}

		env, err := stream.Decode(data)
		if err != nil {
			slog.Warn("discarding undecodable frame",
				"endpoint", c.endpoint, "error", err)
			if c.metrics != nil {
				c.metrics.DecodeFailures.Add(ctx, 1)
			}
			continue
		}

		// A frame still in flight when Disconnect lands is dropped whole;
		// its effect is never half-applied.
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		c.sink.Apply(env)
		if c.metrics != nil {
			c.metrics.ApplyDuration.Record(ctx, time.Since(start).Seconds())
			c.metrics.EventsReceived.Add(ctx, 1)
			if _, unknown := env.Event().(stream.Unrecognized); unknown {
				c.metrics.UnrecognizedEvents.Add(ctx, 1)
			}
		}
	}
}

// onClose flips connectivity off unless a newer connection has already
// replaced this one.
func (c *Client) onClose(gen int, err error) {
	c.mu.Lock()
	stale := gen != c.gen
	if !stale {
		c.ws = nil
		c.cancel = nil
		c.state = eventsource.StateDisconnected
	}
	c.mu.Unlock()

	if stale {
		return
	}
	slog.Info("stream closed", "endpoint", c.endpoint, "reason", err)
	c.sink.SetConnected(false)
	if c.metrics != nil {
		c.metrics.OpenSessions.Add(context.Background(), -1)
	}
}

// Disconnect closes the transport deterministically. Safe to call at any
// time, including with no open connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	open := c.ws != nil
	if open {
		c.teardownLocked()
	}
	c.mu.Unlock()

	if open {
		c.sink.SetConnected(false)
		if c.metrics != nil {
			c.metrics.OpenSessions.Add(context.Background(), -1)
		}
	}
	return nil
}

// teardownLocked must be called with c.mu held.
func (c *Client) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.ws != nil {
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
		c.ws = nil
	}
	c.gen++
	c.state = eventsource.StateDisconnected
}

// State returns the connection lifecycle state.
func (c *Client) State() eventsource.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
