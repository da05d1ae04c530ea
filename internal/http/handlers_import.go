package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/importer"
)

// handleImportUpload accepts a multipart CSV upload, stages a batch and
// redirects to the review step with the batch id in the session.
func (s *Server) handleImportUpload(kind importer.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.currentUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "no session")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file upload")
			return
		}
		defer file.Close()

		if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
			writeError(w, http.StatusBadRequest, "please upload a .csv file")
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
			return
		}

		batchID, err := s.importer.Upload(r.Context(), uid, kind, data)
		if err != nil {
			slog.ErrorContext(r.Context(), "Import upload failed", "kind", kind, "error", err)
			writeError(w, http.StatusInternalServerError, "import failed")
			return
		}

		s.sessions.Set(w, r, batchSessionKey(kind), batchID)
		http.Redirect(w, r, importBase(kind)+"/import/review", http.StatusSeeOther)
	}
}

// handleImportReview summarizes the staged batch. A missing, expired or
// foreign batch redirects back to the upload form to restart the flow.
func (s *Server) handleImportReview(kind importer.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.currentUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "no session")
			return
		}

		batchID, _ := s.sessions.Get(r, batchSessionKey(kind))
		review, err := s.importer.Review(uid, batchID)
		if err != nil {
			if errors.Is(err, importer.ErrBatchNotFound) {
				http.Redirect(w, r, importBase(kind)+"/import", http.StatusSeeOther)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, review)
	}
}

// handleImportApply consumes the staged batch with the chosen action
// and reports what changed.
func (s *Server) handleImportApply(kind importer.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.currentUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "no session")
			return
		}

		action, err := importer.ParseAction(r.FormValue("action"))
		if err != nil {
			http.Redirect(w, r, importBase(kind)+"/import/review", http.StatusSeeOther)
			return
		}

		batchID, _ := s.sessions.Get(r, batchSessionKey(kind))
		result, err := s.importer.Apply(r.Context(), uid, batchID, action)
		if err != nil {
			if errors.Is(err, importer.ErrBatchNotFound) {
				http.Redirect(w, r, importBase(kind)+"/import", http.StatusSeeOther)
				return
			}
			slog.ErrorContext(r.Context(), "Import apply failed", "kind", kind, "error", err)
			writeError(w, http.StatusInternalServerError, "apply failed")
			return
		}

		s.sessions.Delete(r, batchSessionKey(kind))
		s.publishApplied(r, uid, action, result)

		writeJSON(w, http.StatusOK, result)
	}
}

// publishApplied emits the import-applied event. Best effort: a broker
// failure is logged and never fails the apply.
func (s *Server) publishApplied(r *http.Request, uid int64, action importer.Action, result *importer.ApplyResult) {
	if s.publisher == nil {
		return
	}
	msg := &amqp.ImportAppliedMessage{
		UserID:    uid,
		Kind:      string(result.Kind),
		BatchID:   result.BatchID,
		Action:    string(action),
		Inserted:  result.Inserted,
		Deleted:   result.Deleted,
		Timestamp: time.Now(),
	}
	if err := s.publisher.PublishImportApplied(r.Context(), msg); err != nil {
		slog.WarnContext(r.Context(), "Import applied event not published",
			"batch_id", result.BatchID, "error", err)
	}
}

// handleTemplate serves a sample CSV for the given kind.
func (s *Server) handleTemplate(kind importer.Kind) http.HandlerFunc {
	budget := strings.Join([]string{
		"type,category,subcategory,amount,currency,schedule,date,repeat_every,repeat_unit,on_weekday,on_day,start_date,end_date,note",
		`expense,Housing,Rent,900.00,EUR,recurring,,1,month,,1,2025-01-01,,Monthly rent`,
		`expense,Insurance,,120.50,EUR,one-time,2025-02-01,,,,,,,Car insurance`,
	}, "\n") + "\n"

	transaction := strings.Join([]string{
		"date,type,category,subcategory,description,amount,currency,note",
		`2025-02-03,expense,Groceries,,Weekly shop,54.20,EUR,`,
		`2025-02-05,income,Salary,,February payroll,2100.00,EUR,`,
	}, "\n") + "\n"

	return func(w http.ResponseWriter, r *http.Request) {
		content := budget
		name := "budget_template.csv"
		if kind == importer.KindTransaction {
			content = transaction
			name = "transaction_template.csv"
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.Write([]byte(content))
	}
}
