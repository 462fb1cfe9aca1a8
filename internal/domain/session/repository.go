package session

import (
	"context"
	"errors"
	"time"

	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
)

// ErrTxExhausted is returned when a transaction could not commit within the
// store's bounded conflict-retry budget. No partial state is visible; the
// event is safe to redeliver.
var ErrTxExhausted = errors.New("session transaction retries exhausted")

// TxStore is the view of the session-state store available inside a
// transaction. All reads observe a consistent snapshot; writes become visible
// only on commit.
type TxStore interface {
	// Get returns the state for a session key, or nil if none exists.
	Get(ctx context.Context, userID, sessionID string) (*State, error)

	// Create inserts the cold-start state for a session.
	Create(ctx context.Context, st *State) error

	// Heartbeat advances rawStage, updatedAt and lastSourceTs without
	// touching the stable stage.
	Heartbeat(ctx context.Context, userID, sessionID string, raw stage.Stage, sourceTS, now time.Time) error

	// ApproveTransition confirms a new stable stage, advancing lastChangeAt
	// together with the heartbeat fields.
	ApproveTransition(ctx context.Context, userID, sessionID string, raw stage.Stage, sourceTS, now time.Time) error
}

// Repository provides linearizable read-modify-write access to session state.
type Repository interface {
	// RunInTx executes fn inside an optimistic transaction. On a write
	// conflict with a concurrent evaluation the transaction is rolled back
	// and fn re-executed against a fresh read, up to the store's retry
	// budget; past it, ErrTxExhausted is returned and nothing is persisted.
	RunInTx(ctx context.Context, fn func(ctx context.Context, store TxStore) error) error

	// Get reads a session's state outside any transaction (read-side only).
	Get(ctx context.Context, userID, sessionID string) (*State, error)

	// ListStaleAwake returns sessions whose stable stage is Awake and whose
	// last change is older than the cutoff, for session-end detection.
	ListStaleAwake(ctx context.Context, cutoff time.Time, limit int) ([]*State, error)
}
