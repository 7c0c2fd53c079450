package stream_test

import (
	"testing"

	"github.com/flowdeck/flowdeck/internal/domain/stream"
)

func TestDecode_Valid(t *testing.T) {
	raw := []byte(`{"id":"e1","workflow_id":"w1","timestamp":"2025-08-12T19:54:44Z","type":"status_change","payload":{"status":"running","percent_complete":25}}`)
	env, err := stream.Decode(raw)
	if err != nil {
		t.Fatalf("expected decode to succeed, got: %v", err)
	}
	if env.ID != "e1" || env.WorkflowID != "w1" {
		t.Fatalf("unexpected envelope identity: %+v", env)
	}
	if env.Type != stream.TypeStatusChange {
		t.Fatalf("expected status_change, got %q", env.Type)
	}
}

func TestDecode_NotJSON(t *testing.T) {
	if _, err := stream.Decode([]byte("not json at all")); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestDecode_MissingType(t *testing.T) {
	if _, err := stream.Decode([]byte(`{"id":"e1","workflow_id":"w1"}`)); err == nil {
		t.Fatal("expected error for frame without type tag")
	}
}

func TestEvent_StatusChange(t *testing.T) {
	env, _ := stream.Decode([]byte(`{"type":"status_change","payload":{"status":"running","percent_complete":25}}`))
	ev, ok := env.Event().(stream.StatusChange)
	if !ok {
		t.Fatalf("expected StatusChange, got %T", env.Event())
	}
	if ev.Status != "running" {
		t.Fatalf("expected running, got %q", ev.Status)
	}
	if ev.PercentComplete == nil || *ev.PercentComplete != 25 {
		t.Fatalf("expected percent 25, got %v", ev.PercentComplete)
	}
}

func TestEvent_StatusChangeWithoutPercent(t *testing.T) {
	env, _ := stream.Decode([]byte(`{"type":"status_change","payload":{"status":"paused"}}`))
	ev := env.Event().(stream.StatusChange)
	if ev.PercentComplete != nil {
		t.Fatalf("expected nil percent, got %v", *ev.PercentComplete)
	}
}

func TestEvent_ToolResult(t *testing.T) {
	env, _ := stream.Decode([]byte(`{"type":"tool_result","payload":{"agent_id":"a1","data_extracted":{"topic":"MetaFlow"}}}`))
	ev, ok := env.Event().(stream.ToolResult)
	if !ok {
		t.Fatalf("expected ToolResult, got %T", env.Event())
	}
	if string(ev.DataExtracted["topic"]) != `"MetaFlow"` {
		t.Fatalf("unexpected extraction: %s", ev.DataExtracted["topic"])
	}
}

func TestEvent_UnknownType(t *testing.T) {
	env, _ := stream.Decode([]byte(`{"type":"heartbeat","payload":{"seq":9}}`))
	ev, ok := env.Event().(stream.Unrecognized)
	if !ok {
		t.Fatalf("expected Unrecognized, got %T", env.Event())
	}
	if ev.Type != "heartbeat" {
		t.Fatalf("expected original tag preserved, got %q", ev.Type)
	}
}

func TestEvent_KnownTypeCorruptPayload(t *testing.T) {
	// A known tag with a payload of the wrong shape must not error out of
	// the total interpretation; it degrades to Unrecognized.
	env, _ := stream.Decode([]byte(`{"type":"agent_start","payload":[1,2,3]}`))
	if _, ok := env.Event().(stream.Unrecognized); !ok {
		t.Fatalf("expected Unrecognized for corrupt payload, got %T", env.Event())
	}
}

func TestEvent_EmptyPayload(t *testing.T) {
	env, _ := stream.Decode([]byte(`{"type":"error"}`))
	ev, ok := env.Event().(stream.ErrorEvent)
	if !ok {
		t.Fatalf("expected ErrorEvent, got %T", env.Event())
	}
	if ev.AgentID != "" {
		t.Fatalf("expected empty agent_id, got %q", ev.AgentID)
	}
}
