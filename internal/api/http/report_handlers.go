package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appScore "github.com/sleep-hub/sleep-hub/internal/application/score"
)

// Score and insight handlers
func (s *Server) computeScore(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	rep, err := s.scoreSvc.SessionScore(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, appScore.ErrNoSessionData) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) getScore(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	rep, err := s.reports.GetBySession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if rep == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "report not found")
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) computeInsights(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	set, err := s.scoreSvc.Insights(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, set)
}

func (s *Server) getInsights(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	set, err := s.reports.GetInsights(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if set == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "insights not found")
		return
	}
	respondJSON(w, http.StatusOK, set)
}

// Stats handlers
func (s *Server) weeklyStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	var weekStart time.Time
	if v := r.URL.Query().Get("weekStart"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid weekStart, expected YYYY-MM-DD")
			return
		}
		weekStart = t
	}
	stats, err := s.scoreSvc.WeeklyStats(r.Context(), userID, weekStart)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) monthlyStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid days")
			return
		}
		days = d
	}
	trends, err := s.scoreSvc.MonthlyTrends(r.Context(), userID, days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, trends)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	since := time.Now().UTC().AddDate(0, 0, -30)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid since, expected YYYY-MM-DD")
			return
		}
		since = t
	}
	reps, err := s.reports.ListByUserSince(r.Context(), userID, since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "reports": reps})
}
