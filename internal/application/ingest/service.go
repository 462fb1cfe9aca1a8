package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/sleep-hub/sleep-hub/internal/application/classifier"
	"github.com/sleep-hub/sleep-hub/internal/application/dispatch"
	"github.com/sleep-hub/sleep-hub/internal/application/stabilizer"
	"github.com/sleep-hub/sleep-hub/internal/domain/command"
	"github.com/sleep-hub/sleep-hub/internal/domain/notification"
	"github.com/sleep-hub/sleep-hub/internal/domain/reading"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
	"github.com/sleep-hub/sleep-hub/internal/domain/transition"
)

// Result reports what one ingested event did.
type Result struct {
	UserID       string           `json:"userId"`
	SessionID    string           `json:"sessionId"`
	RawStage     stage.Stage      `json:"rawStage"`
	StableStage  stage.Stage      `json:"stableStage"`
	Transitioned bool             `json:"transitioned"`
	ChangedAt    time.Time        `json:"changedAt"`
	Command      *command.Command `json:"command,omitempty"`
}

// Service runs the full ingestion pipeline for raw sensor events: decode and
// default the payload, normalize its timestamp, classify, stabilize, and on
// an approved transition append the transition log, dispatch the actuator
// command and broadcast the change.
type Service struct {
	classifier  classifier.Classifier
	stabilizer  *stabilizer.Service
	transitions transition.Repository
	dispatcher  *dispatch.Service
	sseHub      notification.SSEHub
	logger      zerolog.Logger
}

// NewService creates an ingest service.
func NewService(
	clf classifier.Classifier,
	stab *stabilizer.Service,
	transitions transition.Repository,
	dispatcher *dispatch.Service,
	sseHub notification.SSEHub,
	logger zerolog.Logger,
) *Service {
	return &Service{
		classifier:  clf,
		stabilizer:  stab,
		transitions: transitions,
		dispatcher:  dispatcher,
		sseHub:      sseHub,
		logger:      logger.With().Str("service", "ingest").Logger(),
	}
}

// Process handles one raw event payload. Malformed input is normalized, never
// rejected. The only error path is a failed stabilizer transaction; the event
// is then safe to redeliver since nothing was persisted.
func (s *Service) Process(ctx context.Context, payload []byte, now time.Time) (Result, error) {
	r := reading.Decode(payload, now)
	raw := s.classifier.Classify(r)

	res, err := s.stabilizer.Evaluate(ctx, r.UserID, r.SessionID, raw, r.SourceTS, now)
	if err != nil {
		return Result{}, err
	}

	out := Result{
		UserID:       r.UserID,
		SessionID:    r.SessionID,
		RawStage:     raw,
		StableStage:  res.StableStage,
		Transitioned: res.Transitioned,
		ChangedAt:    res.ChangedAt,
	}

	if res.Transitioned {
		rec := transition.NewRecord(r.UserID, r.SessionID, res.StableStage, raw, res.ChangedAt, r.SourceTS)
		if err := s.transitions.Append(ctx, rec); err != nil {
			// The transition itself is already committed; a lost log entry
			// is observable downstream but must not fail the event.
			s.logger.Warn().Err(err).
				Str("session_key", r.SessionKey()).
				Str("stage", res.StableStage.String()).
				Msg("failed to append transition record")
		}

		out.Command = s.dispatcher.Dispatch(ctx, r.UserID, r.SessionID, res.StableStage, res.ChangedAt)
		s.broadcastTransition(r, res)
	}

	s.logger.Debug().
		Str("session_key", r.SessionKey()).
		Str("raw_stage", raw.String()).
		Str("stable_stage", res.StableStage.String()).
		Bool("transitioned", res.Transitioned).
		Msg("event processed")

	return out, nil
}

func (s *Service) broadcastTransition(r reading.Reading, res stabilizer.Result) {
	if s.sseHub == nil {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"userId":    r.UserID,
		"sessionId": r.SessionID,
		"stage":     res.StableStage,
		"changedAt": res.ChangedAt,
	})
	if err != nil {
		return
	}
	s.sseHub.BroadcastToUser(r.UserID, notification.NewSSEMessage("stage_change", data))
}
