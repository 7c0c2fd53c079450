package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowdeck/flowdeck/internal/adapter/otel"
	"github.com/flowdeck/flowdeck/internal/adapter/ws"
	"github.com/flowdeck/flowdeck/internal/logger"
	"github.com/flowdeck/flowdeck/internal/observer"
	"github.com/flowdeck/flowdeck/internal/port/cache"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Observers *observer.Manager
	Hub       *ws.Hub
	Views     cache.Cache // optional snapshot view cache
	ViewTTL   time.Duration
}

func viewKey(workflowID string) string { return "view:" + workflowID }

type connectRequest struct {
	Endpoint string `json:"endpoint"`
}

// Connect starts observing a workflow run's event stream.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	req, ok := readJSON[connectRequest](w, r)
	if !ok {
		return
	}

	ctx := logger.WithWorkflowID(r.Context(), workflowID)
	ctx, span := otel.StartConnectSpan(ctx, workflowID, req.Endpoint)
	defer span.End()

	if err := h.Observers.Connect(ctx, workflowID, req.Endpoint); err != nil {
		span.RecordError(err)
		writeDomainError(w, err, "workflow not found")
		return
	}
	h.invalidateView(r, workflowID)

	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": workflowID,
		"connected":   true,
	})
}

// Disconnect closes the stream transport; the snapshot stays queryable.
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	if err := h.Observers.Disconnect(workflowID); err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	h.invalidateView(r, workflowID)

	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": workflowID,
		"connected":   false,
	})
}

// DiscardWorkflow drops a workflow's session and snapshot entirely.
func (h *Handlers) DiscardWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	if err := h.Observers.Discard(workflowID); err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	h.invalidateView(r, workflowID)
	w.WriteHeader(http.StatusNoContent)
}

// ListWorkflows returns a summary of every observed workflow.
func (h *Handlers) ListWorkflows(w http.ResponseWriter, _ *http.Request) {
	infos := h.Observers.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": infos,
		"count":     len(infos),
	})
}

// GetSnapshot returns the full snapshot view for a workflow. Reads go
// through the tiered view cache when one is configured; the TTL bounds
// staleness for dashboard polling.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")

	if h.Views != nil {
		if data, ok, err := h.Views.Get(r.Context(), viewKey(workflowID)); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}

	view, err := h.Observers.Snapshot(workflowID)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}

	if h.Views != nil {
		if data, err := json.Marshal(view); err == nil {
			_ = h.Views.Set(r.Context(), viewKey(workflowID), data, h.ViewTTL)
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// GetAgents returns the per-agent records of a workflow snapshot.
func (h *Handlers) GetAgents(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	view, err := h.Observers.Snapshot(workflowID)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": workflowID,
		"agents":      view.Agents,
	})
}

// GetLog returns the envelope log of a workflow snapshot. The optional
// limit query parameter returns only the most recent N entries.
func (h *Handlers) GetLog(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	view, err := h.Observers.Snapshot(workflowID)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}

	log := view.Log
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(log) {
			log = log[len(log)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": workflowID,
		"total":       len(view.Log),
		"events":      log,
	})
}

// GetPartialResults returns the accumulated tool-result data of a workflow.
func (h *Handlers) GetPartialResults(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	view, err := h.Observers.Snapshot(workflowID)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id":     workflowID,
		"partial_results": view.PartialResults,
		"results":         view.Results,
	})
}

// ListArchivedWorkflows returns the workflow IDs with archived history,
// most recently active first. These are the runs available for replay.
func (h *Handlers) ListArchivedWorkflows(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Observers.ArchivedWorkflows(r.Context())
	if err != nil {
		writeDomainError(w, err, "archive unavailable")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": ids,
		"count":     len(ids),
	})
}

// Replay rebuilds a snapshot from the archived envelope history, without
// touching the live session.
func (h *Handlers) Replay(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")

	ctx, span := otel.StartReplaySpan(r.Context(), workflowID)
	defer span.End()

	view, err := h.Observers.Replay(ctx, workflowID)
	if err != nil {
		span.RecordError(err)
		writeDomainError(w, err, "no archived events for workflow")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Health reports service liveness and basic gauges.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"workflows":  len(h.Observers.List()),
		"dashboards": h.Hub.ConnectionCount(),
	})
}

// invalidateView drops a workflow's cached snapshot view after a
// lifecycle command so the next read reflects the change immediately.
func (h *Handlers) invalidateView(r *http.Request, workflowID string) {
	if h.Views == nil {
		return
	}
	_ = h.Views.Delete(r.Context(), viewKey(workflowID))
}
