package handler

import (
	"net/http"
	"time"
)

// DelaySource reports a venue governor's current inter-call delay.
type DelaySource interface {
	Venue() string
	Delay() time.Duration
}

// StatusHandler serves the engine's mode, sports and rate governor state.
type StatusHandler struct {
	mode      string
	sports    []string
	governors []DelaySource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, sports []string, governors ...DelaySource) *StatusHandler {
	return &StatusHandler{mode: mode, sports: sports, governors: governors}
}

// GetStatus responds with the current mode, sports and governor delays.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	delays := make(map[string]string, len(h.governors))
	for _, g := range h.governors {
		delays[g.Venue()] = g.Delay().String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.mode,
		"sports": h.sports,
		"delays": delays,
	})
}
