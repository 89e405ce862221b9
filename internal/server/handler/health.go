package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

const probeTimeout = 2 * time.Second

// HealthHandler reports process liveness, the reachability of each backing
// store, and how many games are stuck in PARTIAL awaiting an operator.
type HealthHandler struct {
	mode    string
	started time.Time
	ledger  domain.Ledger
	probes  map[string]func(context.Context) error
}

// NewHealthHandler creates a HealthHandler. ledger and probes may be nil.
func NewHealthHandler(mode string, ledger domain.Ledger, probes map[string]func(context.Context) error) *HealthHandler {
	return &HealthHandler{mode: mode, started: time.Now(), ledger: ledger, probes: probes}
}

// HealthCheck answers 503 when a probe fails. Open PARTIAL positions turn the
// status to "attention" without failing the check.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.probes[name](ctx); err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	partial := 0
	if h.ledger != nil {
		entries, err := h.ledger.ListByState(ctx, domain.StatePartial)
		switch {
		case err != nil:
			checks["ledger"] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		default:
			partial = len(entries)
			if partial > 0 && status == "ok" {
				status = "attention"
			}
		}
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"mode":      h.mode,
		"partial":   partial,
		"checks":    checks,
		"uptime":    time.Since(h.started).Truncate(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
