package command

import "context"

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

// CreateOutcome is the result of an idempotent command creation attempt.
// AlreadyExists is an expected outcome under at-least-once redelivery, not an
// error.
type CreateOutcome int

const (
	OutcomeCreated CreateOutcome = iota
	OutcomeAlreadyExists
)

// Repository defines persistence for actuator commands.
type Repository interface {
	// CreateIfAbsent atomically creates the command unless one already
	// exists under the same dedup key. The store's native create-if-absent
	// primitive is used; there is no read-then-write race.
	CreateIfAbsent(ctx context.Context, cmd *Command) (CreateOutcome, error)

	// GetByDedupKey returns the command stored under a dedup key, or nil.
	GetByDedupKey(ctx context.Context, dedupKey string) (*Command, error)

	// ListBySession returns commands for a session, newest first.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Command, error)
}
