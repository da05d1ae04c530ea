// Package http exposes the import and dashboard flows over JSON
// endpoints. Authentication is not implemented here: POST /session is
// the boundary where a real login layer would set the user id.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/importer"
)

// DashboardStore is the read surface the dashboard needs.
type DashboardStore interface {
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
	ListTransactionsRange(ctx context.Context, userID int64, from, to time.Time) ([]core.Transaction, error)
}

// EventPublisher publishes import-applied events. May be nil when AMQP
// is not configured.
type EventPublisher interface {
	PublishImportApplied(ctx context.Context, msg *amqp.ImportAppliedMessage) error
}

type Server struct {
	importer       *importer.Importer
	store          DashboardStore
	publisher      EventPublisher
	sessions       *sessionStore
	maxUploadBytes int64
	started        time.Time
}

// NewServer wires the handlers and returns a configured *http.Server;
// the caller still sets timeouts and runs it.
func NewServer(addr string, imp *importer.Importer, store DashboardStore, publisher EventPublisher, maxUploadBytes int64) *http.Server {
	s := &Server{
		importer:       imp,
		store:          store,
		publisher:      publisher,
		sessions:       newSessionStore(),
		maxUploadBytes: maxUploadBytes,
		started:        time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /session", s.handleSession)

	for _, kind := range []importer.Kind{importer.KindBudget, importer.KindTransaction} {
		base := importBase(kind)
		mux.HandleFunc("POST "+base+"/import", s.handleImportUpload(kind))
		mux.HandleFunc("GET "+base+"/import/review", s.handleImportReview(kind))
		mux.HandleFunc("POST "+base+"/import/apply", s.handleImportApply(kind))
		mux.HandleFunc("GET "+base+"/template.csv", s.handleTemplate(kind))
	}

	mux.HandleFunc("GET /dashboard", s.handleDashboard)

	return &http.Server{Addr: addr, Handler: mux}
}

func importBase(kind importer.Kind) string {
	if kind == importer.KindTransaction {
		return "/transaction"
	}
	return "/budget"
}

func batchSessionKey(kind importer.Kind) string {
	return string(kind) + "_import_batch_id"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleSession records the caller identity in the session. A real
// deployment replaces this with its authentication layer.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	uid, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
	if err != nil || uid <= 0 {
		writeError(w, http.StatusBadRequest, "user_id must be a positive number")
		return
	}
	s.sessions.Set(w, r, "user_id", strconv.FormatInt(uid, 10))
	writeJSON(w, http.StatusOK, map[string]any{"user_id": uid})
}

// currentUser resolves the caller identity from the session.
func (s *Server) currentUser(r *http.Request) (int64, bool) {
	value, ok := s.sessions.Get(r, "user_id")
	if !ok {
		return 0, false
	}
	uid, err := strconv.ParseInt(value, 10, 64)
	if err != nil || uid <= 0 {
		return 0, false
	}
	return uid, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
