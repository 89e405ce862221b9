package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Acknowledger settles a PARTIAL game once an operator has handled the
// exposure.
type Acknowledger interface {
	Acknowledge(ctx context.Context, gameID domain.GameID, note string) (domain.ExecutionRecord, error)
}

// LedgerHandler serves ledger entries and execution records.
type LedgerHandler struct {
	ledger  domain.Ledger
	records domain.ExecutionStore
	acker   Acknowledger
	logger  *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler. acker may be nil in scan mode,
// in which case acknowledgments are refused.
func NewLedgerHandler(ledger domain.Ledger, records domain.ExecutionStore, acker Acknowledger, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:  ledger,
		records: records,
		acker:   acker,
		logger:  logger.With(slog.String("handler", "ledger")),
	}
}

var listedStates = []domain.ExecutionState{
	domain.StateExecuting, domain.StatePartial, domain.StateFilled, domain.StateFailed, domain.StateSettled,
}

// ListEntries returns ledger entries, optionally filtered by ?state=.
// GET /api/ledger
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	states := listedStates
	if s := r.URL.Query().Get("state"); s != "" {
		st, ok := domain.ParseExecutionState(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown state "+s)
			return
		}
		states = []domain.ExecutionState{st}
	}

	entries := []domain.LedgerEntry{}
	for _, st := range states {
		got, err := h.ledger.ListByState(r.Context(), st)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "list ledger", slog.String("error", err.Error()))
			writeDomainError(w, err)
			return
		}
		entries = append(entries, got...)
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetExecution returns the ledger entry of a game and its latest record.
// GET /api/executions/{game}
func (h *LedgerHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	game := domain.GameID(r.PathValue("game"))
	entry, err := h.ledger.Get(r.Context(), game)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := map[string]any{"entry": entry}
	if entry.ExecutionID != "" {
		rec, err := h.records.Get(r.Context(), entry.ExecutionID)
		switch {
		case err == nil:
			resp["record"] = rec
		case !errors.Is(err, domain.ErrNotFound):
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListExecutions returns the most recent execution records.
// GET /api/executions
func (h *LedgerHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.records.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type ackRequest struct {
	Note string `json:"note"`
}

// Acknowledge settles a PARTIAL game. The optional JSON body carries a note.
// POST /api/ledger/{game}/ack
func (h *LedgerHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	if h.acker == nil {
		writeError(w, http.StatusServiceUnavailable, "execution disabled")
		return
	}
	var req ackRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	game := domain.GameID(r.PathValue("game"))
	rec, err := h.acker.Acknowledge(r.Context(), game, req.Note)
	if err != nil {
		h.logger.WarnContext(r.Context(), "acknowledge failed",
			slog.String("game", string(game)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
