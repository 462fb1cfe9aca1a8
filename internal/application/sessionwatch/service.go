package sessionwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sleep-hub/sleep-hub/internal/application/notify"
	"github.com/sleep-hub/sleep-hub/internal/application/score"
	"github.com/sleep-hub/sleep-hub/internal/domain/report"
	"github.com/sleep-hub/sleep-hub/internal/domain/session"
)

// DefaultAwakeAfter is how long a session must sit stably awake before it
// counts as ended.
const DefaultAwakeAfter = 30 * time.Minute

// Service detects ended sleep sessions and generates their reports. A
// session ends when its stable stage has been Awake past the threshold;
// sessions that already have a report are left alone, so the sweep is safe
// to repeat.
type Service struct {
	sessions   session.Repository
	reports    report.Repository
	scorer     *score.Service
	notifier   *notify.Service
	awakeAfter time.Duration
	batchSize  int
	logger     zerolog.Logger
}

// NewService creates a session watcher. awakeAfter <= 0 falls back to
// DefaultAwakeAfter; batchSize <= 0 falls back to 100.
func NewService(
	sessions session.Repository,
	reports report.Repository,
	scorer *score.Service,
	notifier *notify.Service,
	awakeAfter time.Duration,
	batchSize int,
	logger zerolog.Logger,
) *Service {
	if awakeAfter <= 0 {
		awakeAfter = DefaultAwakeAfter
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		sessions:   sessions,
		reports:    reports,
		scorer:     scorer,
		notifier:   notifier,
		awakeAfter: awakeAfter,
		batchSize:  batchSize,
		logger:     logger.With().Str("service", "sessionwatch").Logger(),
	}
}

// Sweep finds ended sessions and generates a report, insights and the report
// notification for each. It returns how many sessions were closed out.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.awakeAfter)
	stale, err := s.sessions.ListStaleAwake(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	closed := 0
	for _, st := range stale {
		if err := s.closeSession(ctx, st); err != nil {
			s.logger.Error().
				Err(err).
				Str("session_id", st.SessionID).
				Msg("failed to close session")
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *Service) closeSession(ctx context.Context, st *session.State) error {
	existing, err := s.reports.GetBySession(ctx, st.SessionID)
	if err != nil {
		return fmt.Errorf("failed to check existing report: %w", err)
	}
	if existing != nil {
		return nil
	}

	rep, err := s.scorer.SessionScore(ctx, st.SessionID)
	if err != nil {
		return fmt.Errorf("failed to score session: %w", err)
	}
	if _, err := s.scorer.Insights(ctx, st.SessionID); err != nil {
		return fmt.Errorf("failed to generate insights: %w", err)
	}

	s.logger.Info().
		Str("user_id", st.UserID).
		Str("session_id", st.SessionID).
		Int("score", rep.TotalScore).
		Msg("session ended, report generated")

	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.QueueSleepReport(ctx, st.UserID, st.SessionID, rep.TotalScore, rep.Message); err != nil {
		s.logger.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to queue report notification")
	}
	efficiency := 100 - rep.Summary.AwakeRatio
	if err := s.notifier.QueueEfficiencyAlert(ctx, st.UserID, st.SessionID, efficiency); err != nil {
		s.logger.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to queue efficiency notification")
	}
	if err := s.notifier.QueueSnoringAlert(ctx, st.UserID, st.SessionID, rep.Summary.SnoringMinutes); err != nil {
		s.logger.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to queue snoring notification")
	}
	return nil
}

// Run sweeps on a fixed interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("session watcher started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("session watcher stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
