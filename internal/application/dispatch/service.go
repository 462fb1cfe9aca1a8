package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sleep-hub/sleep-hub/internal/domain/command"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
	"github.com/sleep-hub/sleep-hub/internal/policy"
)

// Service turns approved stable-stage transitions into at most one actuator
// command each. Dispatch is best-effort relative to the transition itself: a
// store failure here is logged and swallowed, never undoing the committed
// transition.
type Service struct {
	commands command.Repository
	policy   *policy.Policy
	logger   zerolog.Logger
}

// NewService creates a command dispatcher.
func NewService(commands command.Repository, p *policy.Policy, logger zerolog.Logger) *Service {
	return &Service{
		commands: commands,
		policy:   p,
		logger:   logger.With().Str("service", "dispatch").Logger(),
	}
}

// Dispatch creates the actuator command for an approved transition, if the
// policy maps the stage to one. The command is keyed by a deterministic
// digest of (user, session, stage, transition second), so redelivery of the
// same transition is a silent no-op. The returned command is nil when the
// policy maps the stage to no action or when an identical command already
// exists.
func (s *Service) Dispatch(ctx context.Context, userID, sessionID string, st stage.Stage, changedAt time.Time) *command.Command {
	tmpl, ok := s.policy.TemplateFor(st)
	if !ok {
		// Stages without a template, unknown labels included, need no
		// actuation.
		return nil
	}

	dedupKey := command.DedupKey(userID, sessionID, st, changedAt)
	cmd := command.New(userID, sessionID, tmpl.Type, tmpl.PayloadJSON(), tmpl.TTLSeconds, dedupKey)

	outcome, err := s.commands.CreateIfAbsent(ctx, cmd)
	if err != nil {
		s.logger.Error().Err(err).
			Str("user_id", userID).
			Str("session_id", sessionID).
			Str("stage", st.String()).
			Str("dedup_key", dedupKey).
			Msg("failed to create command")
		return nil
	}
	if outcome == command.OutcomeAlreadyExists {
		s.logger.Debug().
			Str("dedup_key", dedupKey).
			Str("stage", st.String()).
			Msg("command already dispatched for this transition")
		return nil
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("session_id", sessionID).
		Str("command_type", cmd.Type).
		Str("dedup_key", dedupKey).
		Time("changed_at", changedAt).
		Msg("command created")
	return cmd
}
