// Package server exposes the owner-facing HTTP surface: a read-only
// summary plus the approve/decline action pair for pending proposals
// and lifecycle actions on rules. The server process is the single
// writer of both persisted files.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/steward-sh/steward/internal/decisionlog"
	"github.com/steward-sh/steward/internal/orchestrator"
	"github.com/steward-sh/steward/internal/report"
	"github.com/steward-sh/steward/internal/rules"
)

type App struct {
	log        *decisionlog.Log
	engine     *rules.Engine
	authorizer *orchestrator.Authorizer
	recorder   *orchestrator.Recorder
	logger     *slog.Logger
}

func NewApp(log *decisionlog.Log, engine *rules.Engine, authorizer *orchestrator.Authorizer, recorder *orchestrator.Recorder, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{log: log, engine: engine, authorizer: authorizer, recorder: recorder, logger: logger}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "ok\n")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", a.getSummary)
		r.Post("/check", a.checkStep)
		r.Post("/decisions", a.recordManual)
		r.Get("/decisions/recent", a.getRecentDecisions)

		r.Get("/rules", a.listRules)
		r.Get("/rules/{id}", a.getRule)
		r.Post("/rules/{id}/activate", a.ruleAction(a.engine.Activate))
		r.Post("/rules/{id}/pause", a.ruleAction(a.engine.Pause))
		r.Post("/rules/{id}/resume", a.ruleAction(a.engine.Resume))
		r.Post("/rules/{id}/revoke", a.ruleAction(a.engine.Revoke))

		r.Get("/proposals", a.listProposals)
		r.Post("/proposals/{id}/approve", a.ruleAction(a.engine.Activate))
		r.Post("/proposals/{id}/decline", a.ruleAction(a.engine.Decline))
	})

	return r
}

func (a *App) getSummary(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "recent", 20)
	writeJSON(w, http.StatusOK, report.Build(a.log, a.engine, n))
}

func (a *App) getRecentDecisions(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, a.log.Recent(n))
}

func (a *App) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Rules())
}

func (a *App) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := a.engine.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *App) listProposals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, report.Proposals(a.engine))
}

func (a *App) ruleAction(action func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := action(id); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, rules.ErrRuleNotFound) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
