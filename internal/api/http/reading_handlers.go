package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sleep-hub/sleep-hub/internal/domain/reading"
)

const maxReadingBody = 1 << 20

// Reading handlers
func (s *Server) ingestReading(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxReadingBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "failed to read body")
		return
	}

	res, err := s.ingestSvc.Process(r.Context(), payload, time.Now().UTC())
	if err != nil {
		respondError(w, http.StatusConflict, "TX_EXHAUSTED", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, res)
}

// Session handlers
func (s *Server) getSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = reading.DefaultUserID
	}
	st, err := s.sessions.Get(r.Context(), userID, sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if st == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	recs, err := s.transitions.ListBySession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "transitions": recs})
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	limit := parseLimit(r, 100, 200)
	cmds, err := s.commands.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "commands": cmds})
}
