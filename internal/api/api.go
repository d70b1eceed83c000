package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/conflict"
	"github.com/joescharf/voicecal/internal/conversation"
	"github.com/joescharf/voicecal/internal/executor"
	"github.com/joescharf/voicecal/internal/intent"
	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/store"
	"github.com/joescharf/voicecal/internal/undo"
)

const maxBodyBytes = 1 << 20

// Server provides the REST API handlers.
type Server struct {
	engine  *conversation.Engine
	store   store.Store
	checker conversation.ConflictChecker
	cals    *calendar.Registry
	log     *slog.Logger
}

// NewServer creates a new API server.
func NewServer(e *conversation.Engine, s store.Store, checker conversation.ConflictChecker, cals *calendar.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: e, store: s, checker: checker, cals: cals, log: log}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/conversations", s.startConversation)
	mux.HandleFunc("GET /api/v1/conversations", s.listConversations)
	mux.HandleFunc("GET /api/v1/conversations/{id}", s.getConversation)
	mux.HandleFunc("POST /api/v1/conversations/{id}/turns", s.continueConversation)
	mux.HandleFunc("POST /api/v1/conversations/{id}/confirm", s.confirmConversation)
	mux.HandleFunc("POST /api/v1/conversations/{id}/cancel", s.cancelConversation)

	mux.HandleFunc("POST /api/v1/users/{user}/undo", s.undoLast)
	mux.HandleFunc("GET /api/v1/users/{user}/actions", s.listActions)

	mux.HandleFunc("POST /api/v1/conflicts/check", s.checkConflicts)
	mux.HandleFunc("GET /api/v1/calendars", s.listCalendars)

	return corsMiddleware(logMiddleware(s.log, mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps err to a status and includes the message meant for the speaker.
func writeFailure(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), map[string]string{
		"error":   err.Error(),
		"message": conversation.UserMessage(err),
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, conversation.ErrConversationBusy),
		errors.Is(err, conversation.ErrInvalidTransition),
		errors.Is(err, undo.ErrNothingToUndo):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrConversationExpired),
		errors.Is(err, conversation.ErrConversationClosed):
		return http.StatusGone
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, intent.ErrExtractionFailure),
		errors.Is(err, intent.ErrAmbiguousInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, executor.ErrExecutionFailure),
		errors.Is(err, undo.ErrUndoFailed):
		return http.StatusBadGateway
	case errors.Is(err, conflict.ErrInvalidRange),
		errors.Is(err, calendar.ErrUnknownCalendar),
		errors.Is(err, calendar.ErrReadOnly):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func queryLimit(r *http.Request, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		return v
	}
	return def
}

// --- Conversations ---

func (s *Server) startConversation(w http.ResponseWriter, r *http.Request) {
	var in conversation.TurnInput
	if !decode(w, r, &in) {
		return
	}
	if in.ConversationID == "" && in.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	in.CreateIfMissing = in.UserID != ""
	s.turn(w, r, in)
}

func (s *Server) continueConversation(w http.ResponseWriter, r *http.Request) {
	var in conversation.TurnInput
	if !decode(w, r, &in) {
		return
	}
	in.ConversationID = r.PathValue("id")
	s.turn(w, r, in)
}

func (s *Server) turn(w http.ResponseWriter, r *http.Request, in conversation.TurnInput) {
	started := in.ConversationID == ""
	res, err := s.engine.StartOrContinue(r.Context(), in)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.writeResult(w, res, started)
}

func (s *Server) writeResult(w http.ResponseWriter, res *conversation.TurnResult, started bool) {
	switch {
	case res.Kind == conversation.ResultFailed:
		status := errorStatus(res.Err)
		if status == http.StatusInternalServerError {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, res)
	case started:
		writeJSON(w, http.StatusCreated, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}
	convs, err := s.engine.List(r.Context(), user, queryLimit(r, 50))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if convs == nil {
		convs = []*models.VoiceConversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) confirmConversation(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Confirm(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.writeResult(w, res, false)
}

func (s *Server) cancelConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Cancel(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"conversation_id": id, "state": string(models.StateCancelled)})
}

// --- Actions ---

func (s *Server) undoLast(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.UndoLast(r.Context(), r.PathValue("user"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.store.ListActions(r.Context(), r.PathValue("user"), queryLimit(r, 20))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if actions == nil {
		actions = []*models.ExecutedAction{}
	}
	writeJSON(w, http.StatusOK, actions)
}

// --- Conflicts and calendars ---

type checkRequest struct {
	UserID string    `json:"user_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

func (s *Server) checkConflicts(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decode(w, r, &req) {
		return
	}
	report, err := s.checker.Check(r.Context(), models.TimeRange{Start: req.Start, End: req.End}, req.UserID, s.cals.Selected())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if report.Partial {
		s.log.Warn("conflict check incomplete", "unreachable", report.Unreachable)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listCalendars(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cals.List())
}
