package relay

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/supactl/internal/catalog"
	"github.com/mattjoyce/supactl/internal/dispatch"
	"github.com/mattjoyce/supactl/internal/jval"
)

// maxBodyBytes caps invoke request bodies.
const maxBodyBytes = 1 << 20

// handleHealthz reports relay liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleOperations returns the remote operation catalog.
func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"operations": catalog.All(),
	})
}

// invokeFailure is the relay's JSON shape for a dispatch error.
type invokeFailure struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	Kind  string `json:"kind"`
}

// handleInvoke runs one remote operation. The body is the argument
// object (empty body means {}); the response is the tool output verbatim.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	operation := chi.URLParam(r, "operation")
	if !catalog.Exists(operation) {
		s.writeError(w, http.StatusNotFound, "unknown operation: "+operation)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	var args *jval.Value
	if len(body) > 0 {
		args, err = jval.Parse(body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "arguments are not valid JSON: "+err.Error())
			return
		}
		if args.Kind() != jval.KindObject {
			s.writeError(w, http.StatusBadRequest, "arguments must be a JSON object")
			return
		}
	}

	raw, err := s.dispatcher.Invoke(r.Context(), operation, args)
	if err != nil {
		var de *dispatch.Error
		if errors.As(err, &de) {
			s.writeJSON(w, statusFor(de.Kind), invokeFailure{
				Error: de.Message,
				Code:  de.Code,
				Kind:  string(de.Kind),
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Error("failed to write invoke response", "error", err)
	}
}

// statusFor maps a dispatch failure kind to an HTTP status.
func statusFor(kind dispatch.Kind) int {
	switch kind {
	case dispatch.KindTimeout:
		return http.StatusGatewayTimeout
	case dispatch.KindRemote, dispatch.KindDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// journalEntry is the relay's JSON shape for one journal row.
type journalEntry struct {
	ID         string `json:"id"`
	Operation  string `json:"operation"`
	Status     string `json:"status"`
	Code       int    `json:"code"`
	Message    string `json:"message,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// handleJournal returns recent journal entries, newest first.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, "journal is disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query journal: "+err.Error())
		return
	}

	out := make([]journalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntry{
			ID:         e.ID,
			Operation:  e.Operation,
			Status:     string(e.Status),
			Code:       e.Code,
			Message:    e.Message,
			DurationMS: e.Duration.Milliseconds(),
			CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"calls": out})
}
