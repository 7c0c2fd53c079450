package wsclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/flowdeck/flowdeck/internal/adapter/wsclient"
	"github.com/flowdeck/flowdeck/internal/domain/stream"
	"github.com/flowdeck/flowdeck/internal/port/eventsource"
)

// fakeSink records applied envelopes and connectivity transitions.
type fakeSink struct {
	mu        sync.Mutex
	envs      []stream.Envelope
	connected []bool
	applied   chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{applied: make(chan struct{}, 16)}
}

func (f *fakeSink) Apply(env stream.Envelope) {
	f.mu.Lock()
	f.envs = append(f.envs, env)
	f.mu.Unlock()
	f.applied <- struct{}{}
}

func (f *fakeSink) SetConnected(connected bool) {
	f.mu.Lock()
	f.connected = append(f.connected, connected)
	f.mu.Unlock()
}

func (f *fakeSink) appliedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.envs)
}

// streamServer serves the given frames to the first client, then idles.
func streamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("accept: %v", err)
			return
		}
		for _, frame := range frames {
			if err := ws.Write(r.Context(), websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		_, _, _ = ws.Read(r.Context())
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitApplies(t *testing.T, sink *fakeSink, n int) {
	t.Helper()
	for range n {
		select {
		case <-sink.applied:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for apply %d of %d", sink.appliedCount()+1, n)
		}
	}
}

func TestNew_EmptyEndpoint(t *testing.T) {
	if _, err := wsclient.New("", newFakeSink(), nil); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestClient_ReceivesInArrivalOrder(t *testing.T) {
	srv := streamServer(t, []string{
		`{"id":"e1","workflow_id":"w1","type":"status_change","payload":{"status":"running"}}`,
		`{"id":"e2","workflow_id":"w1","type":"agent_start","payload":{"agent_id":"a1","agent_name":"X","role":"Y"}}`,
	})
	defer srv.Close()

	sink := newFakeSink()
	client, err := wsclient.New(wsURL(srv), sink, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = client.Disconnect() }()

	waitApplies(t, sink, 2)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.envs[0].ID != "e1" || sink.envs[1].ID != "e2" {
		t.Fatalf("envelopes out of order: %+v", sink.envs)
	}
	if len(sink.connected) == 0 || !sink.connected[0] {
		t.Fatalf("expected connected=true transition first, got %v", sink.connected)
	}
}

func TestClient_DiscardsUndecodableFrames(t *testing.T) {
	srv := streamServer(t, []string{
		`this is not json`,
		`{"no":"type tag"}`,
		`{"id":"e1","workflow_id":"w1","type":"workflow_complete","payload":{"results":{"ok":true}}}`,
	})
	defer srv.Close()

	sink := newFakeSink()
	client, err := wsclient.New(wsURL(srv), sink, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = client.Disconnect() }()

	// Only the third frame decodes; the session must survive the garbage.
	waitApplies(t, sink, 1)
	if got := sink.appliedCount(); got != 1 {
		t.Fatalf("expected exactly 1 applied envelope, got %d", got)
	}
	if client.State() != eventsource.StateConnected {
		t.Fatalf("garbage frames must not close the connection, state=%s", client.State())
	}
}

func TestClient_DisconnectFlipsConnectivity(t *testing.T) {
	srv := streamServer(t, []string{
		`{"id":"e1","workflow_id":"w1","type":"status_change","payload":{"status":"running"}}`,
	})
	defer srv.Close()

	sink := newFakeSink()
	client, err := wsclient.New(wsURL(srv), sink, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitApplies(t, sink, 1)

	if err := client.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if client.State() != eventsource.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", client.State())
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.connected[len(sink.connected)-1] {
		t.Fatalf("expected final connectivity false, got %v", sink.connected)
	}
}

func TestClient_DisconnectWithoutConnectIsSafe(t *testing.T) {
	sink := newFakeSink()
	client, err := wsclient.New("ws://localhost:0/none", sink, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Disconnect(); err != nil {
		t.Fatalf("disconnect on idle client: %v", err)
	}
	if len(sink.connected) != 0 {
		t.Fatalf("no transitions expected, got %v", sink.connected)
	}
}

func TestClient_ConnectFailureLeavesDisconnected(t *testing.T) {
	sink := newFakeSink()
	client, err := wsclient.New("ws://127.0.0.1:1/stream", sink, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err == nil {
		t.Fatal("expected connect to a dead port to fail")
	}
	if client.State() != eventsource.StateDisconnected {
		t.Fatalf("expected disconnected after failed dial, got %s", client.State())
	}
}
