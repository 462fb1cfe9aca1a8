package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sleep-hub/sleep-hub/internal/domain/command"
	"github.com/sleep-hub/sleep-hub/internal/domain/command/mocks"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
	"github.com/sleep-hub/sleep-hub/internal/policy"
)

var changedAt = time.Date(2024, 3, 10, 3, 0, 35, 0, time.UTC)

func TestDispatchCreatesCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockRepository(ctrl)
	svc := NewService(repo, policy.Default(), zerolog.Nop())
	ctx := context.Background()

	repo.EXPECT().
		CreateIfAbsent(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd *command.Command) (command.CreateOutcome, error) {
			assert.Equal(t, "u1", cmd.UserID)
			assert.Equal(t, "s1", cmd.SessionID)
			assert.Equal(t, "SET_HEIGHT", cmd.Type)
			assert.JSONEq(t, `{"heightMm": 45}`, string(cmd.Payload))
			assert.Equal(t, command.StatusPending, cmd.Status)
			assert.Equal(t, 10, cmd.TTLSeconds)
			assert.Equal(t, command.DedupKey("u1", "s1", stage.StageLight, changedAt), cmd.DedupKey)
			return command.OutcomeCreated, nil
		})

	cmd := svc.Dispatch(ctx, "u1", "s1", stage.StageLight, changedAt)
	require.NotNil(t, cmd)
}

func TestDispatchNoTemplateIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockRepository(ctrl)
	svc := NewService(repo, policy.Default(), zerolog.Nop())

	// REM and unknown stages map to no command; the store is never touched
	assert.Nil(t, svc.Dispatch(context.Background(), "u1", "s1", stage.StageREM, changedAt))
	assert.Nil(t, svc.Dispatch(context.Background(), "u1", "s1", stage.StageUnknown, changedAt))
}

func TestDispatchDuplicateIsSilentNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockRepository(ctrl)
	svc := NewService(repo, policy.Default(), zerolog.Nop())

	repo.EXPECT().
		CreateIfAbsent(gomock.Any(), gomock.Any()).
		Return(command.OutcomeAlreadyExists, nil)

	assert.Nil(t, svc.Dispatch(context.Background(), "u1", "s1", stage.StageDeep, changedAt))
}

func TestDispatchStoreErrorIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockRepository(ctrl)
	svc := NewService(repo, policy.Default(), zerolog.Nop())

	repo.EXPECT().
		CreateIfAbsent(gomock.Any(), gomock.Any()).
		Return(command.OutcomeCreated, errors.New("store unavailable"))

	// best-effort: the transition must not be affected
	assert.Nil(t, svc.Dispatch(context.Background(), "u1", "s1", stage.StageDeep, changedAt))
}

// memCommandRepo enforces create-if-absent semantics for the exactly-once
// test.
type memCommandRepo struct {
	mu    sync.Mutex
	byKey map[string]*command.Command
}

func (m *memCommandRepo) CreateIfAbsent(_ context.Context, cmd *command.Command) (command.CreateOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[cmd.DedupKey]; ok {
		return command.OutcomeAlreadyExists, nil
	}
	m.byKey[cmd.DedupKey] = cmd
	return command.OutcomeCreated, nil
}

func (m *memCommandRepo) GetByDedupKey(_ context.Context, key string) (*command.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[key], nil
}

func (m *memCommandRepo) ListBySession(_ context.Context, _ string, _ int) ([]*command.Command, error) {
	return nil, nil
}

func TestDispatchExactlyOnceUnderRetries(t *testing.T) {
	repo := &memCommandRepo{byKey: make(map[string]*command.Command)}
	svc := NewService(repo, policy.Default(), zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	created := make([]*command.Command, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created[i] = svc.Dispatch(ctx, "u1", "s1", stage.StageLight, changedAt)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, cmd := range created {
		if cmd != nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one dispatch attempt creates the command")
	assert.Len(t, repo.byKey, 1)
}
