package stabilizer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/sleep-hub/sleep-hub/internal/domain/session"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
)

// DwellPolicy returns the minimum time a session must hold its current
// stable stage before a competing raw stage is accepted as a transition.
type DwellPolicy func(current stage.Stage) time.Duration

// Result is the stabilizer's verdict for one processed event.
type Result struct {
	Transitioned bool
	StableStage  stage.Stage
	ChangedAt    time.Time
}

// Service debounces raw per-sample classifications into a per-session stable
// stage. All decisions run inside the session store's optimistic transaction,
// so concurrent evaluations for the same session serialize and each attempt
// observes a consistent prior state.
type Service struct {
	sessions session.Repository
	dwell    DwellPolicy
	logger   zerolog.Logger
}

// NewService creates a stabilizer service.
func NewService(sessions session.Repository, dwell DwellPolicy, logger zerolog.Logger) *Service {
	return &Service{
		sessions: sessions,
		dwell:    dwell,
		logger:   logger.With().Str("service", "stabilizer").Logger(),
	}
}

// Evaluate processes one classified reading for a session. It returns whether
// a stage transition was approved, the stable stage after the event and when
// that stage last changed.
//
// The decision logic re-executes from a fresh read on every transaction
// attempt; a conflict with a concurrent writer is retried by the store. If
// retries are exhausted the event fails with no partial state written and
// must be redelivered by the caller.
func (s *Service) Evaluate(ctx context.Context, userID, sessionID string, raw stage.Stage, sourceTS, now time.Time) (Result, error) {
	var res Result

	err := s.sessions.RunInTx(ctx, func(ctx context.Context, store session.TxStore) error {
		st, err := store.Get(ctx, userID, sessionID)
		if err != nil {
			return fmt.Errorf("failed to read session state: %w", err)
		}

		if st == nil {
			// Cold start: the first sample of a session cannot be flicker,
			// there is no prior stable state to protect.
			if err := store.Create(ctx, session.NewState(userID, sessionID, raw, sourceTS, now)); err != nil {
				return fmt.Errorf("failed to create session state: %w", err)
			}
			res = Result{Transitioned: true, StableStage: raw, ChangedAt: now}
			return nil
		}

		if raw == st.StableStage {
			// Heartbeat: no candidate transition, advance liveness fields only.
			if err := store.Heartbeat(ctx, userID, sessionID, raw, sourceTS, now); err != nil {
				return fmt.Errorf("failed to record heartbeat: %w", err)
			}
			res = Result{Transitioned: false, StableStage: st.StableStage, ChangedAt: st.LastChangeAt}
			return nil
		}

		// Candidate transition: accept only after the dwell window. A
		// missing lastChangeAt counts as infinitely old so corrupt state
		// never blocks a transition.
		elapsed := time.Duration(math.MaxInt64)
		if !st.LastChangeAt.IsZero() {
			elapsed = now.Sub(st.LastChangeAt)
		}

		if elapsed >= s.dwell(st.StableStage) {
			if err := store.ApproveTransition(ctx, userID, sessionID, raw, sourceTS, now); err != nil {
				return fmt.Errorf("failed to approve transition: %w", err)
			}
			res = Result{Transitioned: true, StableStage: raw, ChangedAt: now}
			return nil
		}

		// Flicker: hold the stable stage, record the heartbeat.
		if err := store.Heartbeat(ctx, userID, sessionID, raw, sourceTS, now); err != nil {
			return fmt.Errorf("failed to record heartbeat: %w", err)
		}
		res = Result{Transitioned: false, StableStage: st.StableStage, ChangedAt: st.LastChangeAt}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("session_key", session.Key(userID, sessionID)).
			Str("raw_stage", raw.String()).
			Time("source_ts", sourceTS).
			Msg("evaluation failed")
		return Result{}, err
	}

	if res.Transitioned {
		s.logger.Info().
			Str("session_key", session.Key(userID, sessionID)).
			Str("stable_stage", res.StableStage.String()).
			Time("changed_at", res.ChangedAt).
			Msg("stage transition approved")
	}
	return res, nil
}
