// Package snapshot holds the reconstructed state of one workflow run and
// the reducer that folds stream envelopes into it.
package snapshot

import (
	"encoding/json"

	"github.com/flowdeck/flowdeck/internal/domain/stream"
)

// WorkflowStatus represents the overall state of a workflow run.
type WorkflowStatus string

const (
	WorkflowIdle      WorkflowStatus = "idle"
	WorkflowInitiated WorkflowStatus = "initiated"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowPaused    WorkflowStatus = "paused"
)

// AgentStatus represents the latest known lifecycle state of one agent.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "idle"
	AgentThinking AgentStatus = "thinking"
	AgentRunning  AgentStatus = "running"
	AgentSuccess  AgentStatus = "success"
	AgentFailed   AgentStatus = "failed"
)

// Placeholder identity for agents first seen through a non-start event.
const (
	PlaceholderName = "Unknown Agent"
	PlaceholderRole = "Worker"
)

// AgentRecord is the derived per-participant state. Records are created
// lazily on first reference and never deleted.
type AgentRecord struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Role         string      `json:"role"`
	Status       AgentStatus `json:"status"`
	Thought      string      `json:"thought,omitempty"`
	LastToolCall string      `json:"last_tool_call,omitempty"`
	Output       string      `json:"output,omitempty"`
}

// Snapshot is the authoritative view of one workflow run as observed by
// the dashboard. It is owned by a single writer; readers get copies via View.
type Snapshot struct {
	WorkflowID     string                     `json:"workflow_id"`
	Status         WorkflowStatus             `json:"status"`
	Progress       int                        `json:"progress"`
	Agents         map[string]*AgentRecord    `json:"agents"`
	Log            []stream.Envelope          `json:"log"`
	PartialResults map[string]json.RawMessage `json:"partial_results"`
	Results        json.RawMessage            `json:"results,omitempty"`
	Connected      bool                       `json:"connected"`

	// LogLimit bounds Log retention when > 0. Purely a memory knob; a
	// trimmed log does not affect any other field.
	LogLimit int `json:"-"`
}

// New creates an empty Snapshot for the given workflow run.
func New(workflowID string) *Snapshot {
	return &Snapshot{
		WorkflowID:     workflowID,
		Status:         WorkflowIdle,
		Agents:         make(map[string]*AgentRecord),
		PartialResults: make(map[string]json.RawMessage),
	}
}

// agent returns the record for id, creating a placeholder if the agent
// has never been seen. The reducer never rejects an unseen agent_id.
func (s *Snapshot) agent(id string) *AgentRecord {
	if rec, ok := s.Agents[id]; ok {
		return rec
	}
	rec := &AgentRecord{
		ID:     id,
		Name:   PlaceholderName,
		Role:   PlaceholderRole,
		Status: AgentIdle,
	}
	s.Agents[id] = rec
	return rec
}

// appendLog records the envelope unconditionally, trimming to LogLimit
// when retention is bounded.
func (s *Snapshot) appendLog(env stream.Envelope) {
	s.Log = append(s.Log, env)
	if s.LogLimit > 0 && len(s.Log) > s.LogLimit {
		s.Log = s.Log[len(s.Log)-s.LogLimit:]
	}
}

// View returns a deep copy safe to hand to readers. Raw JSON values are
// copied so a reader can never alias the writer's buffers.
func (s *Snapshot) View() Snapshot {
	v := Snapshot{
		WorkflowID:     s.WorkflowID,
		Status:         s.Status,
		Progress:       s.Progress,
		Agents:         make(map[string]*AgentRecord, len(s.Agents)),
		Log:            make([]stream.Envelope, len(s.Log)),
		PartialResults: make(map[string]json.RawMessage, len(s.PartialResults)),
		Results:        cloneRaw(s.Results),
		Connected:      s.Connected,
	}
	for id, rec := range s.Agents {
		cp := *rec
		v.Agents[id] = &cp
	}
	for i, env := range s.Log {
		env.Payload = cloneRaw(env.Payload)
		v.Log[i] = env
	}
	for k, val := range s.PartialResults {
		v.PartialResults[k] = cloneRaw(val)
	}
	return v
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return cp
}
