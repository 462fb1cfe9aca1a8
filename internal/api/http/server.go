package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	appIngest "github.com/sleep-hub/sleep-hub/internal/application/ingest"
	appScore "github.com/sleep-hub/sleep-hub/internal/application/score"
	"github.com/sleep-hub/sleep-hub/internal/domain/command"
	"github.com/sleep-hub/sleep-hub/internal/domain/device"
	"github.com/sleep-hub/sleep-hub/internal/domain/notification"
	"github.com/sleep-hub/sleep-hub/internal/domain/report"
	"github.com/sleep-hub/sleep-hub/internal/domain/session"
	"github.com/sleep-hub/sleep-hub/internal/domain/transition"
	"github.com/sleep-hub/sleep-hub/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	ingestSvc     *appIngest.Service
	scoreSvc      *appScore.Service
	sessions      session.Repository
	transitions   transition.Repository
	commands      command.Repository
	reports       report.Repository
	devices       device.Repository
	notifications notification.Repository
	sseHub        *sse.Hub
}

func NewServer(
	ingestSvc *appIngest.Service,
	scoreSvc *appScore.Service,
	sessions session.Repository,
	transitions transition.Repository,
	commands command.Repository,
	reports report.Repository,
	devices device.Repository,
	notifications notification.Repository,
	sseHub *sse.Hub,
) *Server {
	return &Server{
		ingestSvc:     ingestSvc,
		scoreSvc:      scoreSvc,
		sessions:      sessions,
		transitions:   transitions,
		commands:      commands,
		reports:       reports,
		devices:       devices,
		notifications: notifications,
		sseHub:        sseHub,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(s.requireDeviceKey).Post("/readings", s.ingestReading)

		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/state", s.getSessionState)
			r.Get("/transitions", s.listTransitions)
			r.Get("/commands", s.listCommands)
			r.Post("/score", s.computeScore)
			r.Get("/score", s.getScore)
			r.Post("/insights", s.computeInsights)
			r.Get("/insights", s.getInsights)
		})

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/stats/weekly", s.weeklyStats)
			r.Get("/stats/monthly", s.monthlyStats)
			r.Get("/reports", s.listReports)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Post("/", s.registerDevice)
			r.Get("/", s.listDevices)
			r.Put("/{deviceId}/settings", s.updateDeviceSettings)
			r.Put("/{deviceId}/push-token", s.updatePushToken)
		})

		r.Get("/notifications", s.listNotifications)
		r.Get("/events", s.sseEndpoint)
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
