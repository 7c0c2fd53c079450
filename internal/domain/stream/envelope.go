// Package stream defines the wire-level event envelope emitted by the
// workflow engine and the closed set of typed payloads it carries.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type identifies the kind of workflow event.
type Type string

const (
	TypeStatusChange     Type = "status_change"
	TypeAgentStart       Type = "agent_start"
	TypeAgentThinking    Type = "agent_thinking"
	TypeToolCall         Type = "tool_call"
	TypeToolResult       Type = "tool_result"
	TypeAgentComplete    Type = "agent_complete"
	TypeWorkflowComplete Type = "workflow_complete"
	TypeError            Type = "error"
)

// Envelope is the unit of delivery on the event stream. The payload shape
// depends on Type; it stays raw until the reducer interprets it.
type Envelope struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       Type            `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ErrNotEnvelope indicates a frame that does not decode as an Envelope.
var ErrNotEnvelope = errors.New("frame is not an event envelope")

// Decode parses a raw frame into an Envelope. A frame missing the type tag
// is rejected; the caller discards it without touching any snapshot.
// Unknown type tags are NOT an error here; they decode fine and reduce
// to a log-only entry.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s", ErrNotEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type tag", ErrNotEnvelope)
	}
	return env, nil
}

// Event is the decoded, typed form of an envelope payload.
// Exactly one concrete type exists per known Type tag, plus Unrecognized
// for everything else, so a switch over Event covers the whole stream.
type Event interface {
	isEvent()
}

// StatusChange moves the workflow status and optionally the progress bar.
type StatusChange struct {
	Status          string `json:"status"`
	PercentComplete *int   `json:"percent_complete,omitempty"`
}

// AgentStart announces a participant and (re)sets its identity fields.
type AgentStart struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Role      string `json:"role"`
}

// AgentThinking carries an agent's latest free-text reasoning.
type AgentThinking struct {
	AgentID string `json:"agent_id"`
	Thought string `json:"thought"`
}

// ToolCall names the tool an agent just invoked.
type ToolCall struct {
	AgentID  string `json:"agent_id"`
	ToolName string `json:"tool_name"`
}

// ToolResult surfaces incremental key/value extractions. Values stay raw;
// their shape is the producer's business.
type ToolResult struct {
	AgentID       string                     `json:"agent_id"`
	DataExtracted map[string]json.RawMessage `json:"data_extracted,omitempty"`
}

// AgentComplete marks an agent finished with its final output.
type AgentComplete struct {
	AgentID string `json:"agent_id"`
	Output  string `json:"output"`
}

// WorkflowComplete carries the final result payload.
type WorkflowComplete struct {
	Results json.RawMessage `json:"results"`
}

// ErrorEvent reports a failure; AgentID is optional.
type ErrorEvent struct {
	AgentID string `json:"agent_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Unrecognized holds any envelope whose type tag or payload the reducer
// does not understand. It reduces to a log append and nothing else.
type Unrecognized struct {
	Type Type
	Raw  json.RawMessage
}

func (StatusChange) isEvent()     {}
func (AgentStart) isEvent()       {}
func (AgentThinking) isEvent()    {}
func (ToolCall) isEvent()         {}
func (ToolResult) isEvent()       {}
func (AgentComplete) isEvent()    {}
func (WorkflowComplete) isEvent() {}
func (ErrorEvent) isEvent()       {}
func (Unrecognized) isEvent()     {}

// Event interprets the envelope's payload according to its type tag.
// It is total: a payload that fails to unmarshal for a known tag comes
// back as Unrecognized rather than an error, so the reducer never has a
// failure path.
func (e Envelope) Event() Event {
	switch e.Type {
	case TypeStatusChange:
		return decodeAs[StatusChange](e)
	case TypeAgentStart:
		return decodeAs[AgentStart](e)
	case TypeAgentThinking:
		return decodeAs[AgentThinking](e)
	case TypeToolCall:
		return decodeAs[ToolCall](e)
	case TypeToolResult:
		return decodeAs[ToolResult](e)
	case TypeAgentComplete:
		return decodeAs[AgentComplete](e)
	case TypeWorkflowComplete:
		return decodeAs[WorkflowComplete](e)
	case TypeError:
		return decodeAs[ErrorEvent](e)
	default:
		return Unrecognized{Type: e.Type, Raw: e.Payload}
	}
}

func decodeAs[T Event](e Envelope) Event {
	var ev T
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &ev); err != nil {
			return Unrecognized{Type: e.Type, Raw: e.Payload}
		}
	}
	return ev
}
