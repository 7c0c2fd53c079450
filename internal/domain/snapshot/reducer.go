package snapshot

import (
	"log/slog"

	"github.com/flowdeck/flowdeck/internal/domain/stream"
)

// Apply folds one envelope into the snapshot. It is total: every envelope
// lands in the log, unknown or corrupt payloads change nothing else, and
// there is no error path. Statuses are last-write-wins: the producer's
// ordering is trusted, never "corrected" (an agent may legally move out
// of a terminal status if a later event says so).
func Apply(s *Snapshot, env stream.Envelope) {
	s.appendLog(env)

	switch ev := env.Event().(type) {
	case stream.StatusChange:
		s.Status = WorkflowStatus(ev.Status)
		if ev.PercentComplete != nil {
			s.Progress = *ev.PercentComplete
		}

	case stream.AgentStart:
		if ev.AgentID == "" {
			return
		}
		rec := s.agent(ev.AgentID)
		rec.Name = ev.AgentName
		rec.Role = ev.Role
		rec.Status = AgentRunning

	case stream.AgentThinking:
		if ev.AgentID == "" {
			return
		}
		rec := s.agent(ev.AgentID)
		if terminal(rec.Status) {
			slog.Debug("agent left terminal status",
				"workflow_id", s.WorkflowID, "agent_id", ev.AgentID, "from", rec.Status)
		}
		rec.Status = AgentThinking
		rec.Thought = ev.Thought

	case stream.ToolCall:
		if ev.AgentID == "" {
			return
		}
		s.agent(ev.AgentID).LastToolCall = ev.ToolName

	case stream.ToolResult:
		if ev.AgentID != "" {
			s.agent(ev.AgentID)
		}
		for k, v := range ev.DataExtracted {
			s.PartialResults[k] = v
		}

	case stream.AgentComplete:
		if ev.AgentID == "" {
			return
		}
		rec := s.agent(ev.AgentID)
		rec.Status = AgentSuccess
		rec.Output = ev.Output

	case stream.WorkflowComplete:
		s.Status = WorkflowCompleted
		s.Results = ev.Results

	case stream.ErrorEvent:
		// An agent-level error never fails the whole workflow by itself;
		// only an explicit status_change does that.
		if ev.AgentID != "" {
			s.agent(ev.AgentID).Status = AgentFailed
		}

	case stream.Unrecognized:
		slog.Debug("unrecognized event appended to log",
			"workflow_id", s.WorkflowID, "type", ev.Type)
	}
}

func terminal(st AgentStatus) bool {
	return st == AgentSuccess || st == AgentFailed
}
