package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/signal-trader/internal/alert"
	"github.com/your-org/signal-trader/internal/position"
)

// PositionSource exposes the current position table.
type PositionSource interface {
	Snapshot() []position.Position
}

// EventSource exposes recently published events.
type EventSource interface {
	Events() []alert.Event
	OfKind(kind alert.Kind) []alert.Event
}

// Controller starts and stops the trading loop.
type Controller interface {
	Start() bool
	Stop() bool
	Running() bool
}

// StatusHandler serves the operator endpoints.
type StatusHandler struct {
	positions PositionSource
	events    EventSource
	control   Controller
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(positions PositionSource, events EventSource, control Controller) *StatusHandler {
	return &StatusHandler{positions: positions, events: events, control: control}
}

// RegisterRoutes registers the status routes on a chi router.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Get("/positions", h.GetPositions)
	r.Get("/events", h.GetEvents)
	r.Post("/start", h.PostStart)
	r.Post("/stop", h.PostStop)
}

type statusResponse struct {
	Running       bool `json:"running"`
	OpenPositions int  `json:"open_positions"`
	Pending       int  `json:"pending_open"`
}

type controlResponse struct {
	Running bool `json:"running"`
	Changed bool `json:"changed"`
}

// GetStatus reports whether trading runs and how many keys are busy.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Running: h.control.Running()}
	for _, p := range h.positions.Snapshot() {
		if p.InPosition {
			resp.OpenPositions++
		}
		if p.PendingOpen {
			resp.Pending++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPositions returns every tracked key.
func (h *StatusHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.positions.Snapshot())
}

// GetEvents returns recent events, optionally filtered by ?kind= and
// truncated to the newest ?limit= entries.
func (h *StatusHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	var events []alert.Event
	if kind := r.URL.Query().Get("kind"); kind != "" {
		events = h.events.OfKind(alert.Kind(kind))
	} else {
		events = h.events.Events()
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if limit < len(events) {
			events = events[len(events)-limit:]
		}
	}
	if events == nil {
		events = []alert.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// PostStart requests the trading loop to start.
func (h *StatusHandler) PostStart(w http.ResponseWriter, r *http.Request) {
	changed := h.control.Start()
	writeJSON(w, http.StatusAccepted, controlResponse{Running: h.control.Running(), Changed: changed})
}

// PostStop requests the trading loop to stop after the current iteration.
func (h *StatusHandler) PostStop(w http.ResponseWriter, r *http.Request) {
	changed := h.control.Stop()
	writeJSON(w, http.StatusAccepted, controlResponse{Running: h.control.Running(), Changed: changed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response to JSON", http.StatusInternalServerError)
	}
}
