package transition

import "context"

// Repository defines append-only persistence for transition records.
type Repository interface {
	Append(ctx context.Context, rec *Record) error

	// ListBySession returns a session's transitions ordered by changedAt
	// ascending.
	ListBySession(ctx context.Context, sessionID string) ([]*Record, error)
}
