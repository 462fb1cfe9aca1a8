package report

import (
	"context"
	"time"
)

// Repository defines persistence for sleep reports and insight sets.
type Repository interface {
	// Upsert stores a report keyed by session; recomputing a score for the
	// same session replaces the earlier report.
	Upsert(ctx context.Context, r *Report) error
	GetBySession(ctx context.Context, sessionID string) (*Report, error)
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]*Report, error)

	SaveInsights(ctx context.Context, set *InsightSet) error
	GetInsights(ctx context.Context, sessionID string) (*InsightSet, error)
}
