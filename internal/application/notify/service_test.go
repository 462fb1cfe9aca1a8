package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleep-hub/sleep-hub/internal/domain/device"
	"github.com/sleep-hub/sleep-hub/internal/domain/notification"
)

type memNotificationRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*notification.Notification
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{byID: make(map[uuid.UUID]*notification.Notification)}
}

func (m *memNotificationRepo) Create(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.byID[n.NotificationID] = &cp
	return nil
}

func (m *memNotificationRepo) GetByID(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id], nil
}

func (m *memNotificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, n := range m.byID {
		if n.UserID == userID && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotificationRepo) Update(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.byID[n.NotificationID] = &cp
	return nil
}

func (m *memNotificationRepo) ListPendingNotifications(_ context.Context, limit int) ([]*notification.Notification, error) {
	return m.listByStatus(notification.StatusPending, limit), nil
}

func (m *memNotificationRepo) ListRetryableNotifications(_ context.Context, limit int) ([]*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, n := range m.byID {
		if n.CanRetry() && len(out) < limit {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memNotificationRepo) ExpireNotifications(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.byID {
		if n.Status == notification.StatusPending && n.IsExpired() {
			n.Status = notification.StatusExpired
			count++
		}
	}
	return count, nil
}

func (m *memNotificationRepo) listByStatus(status notification.Status, limit int) []*notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, n := range m.byID {
		if n.Status == status && len(out) < limit {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

type memDeviceRepo struct {
	byUser map[string][]*device.Device
}

func (m *memDeviceRepo) Create(_ context.Context, d *device.Device) error {
	m.byUser[d.UserID] = append(m.byUser[d.UserID], d)
	return nil
}

func (m *memDeviceRepo) GetByID(context.Context, uuid.UUID) (*device.Device, error) { return nil, nil }

func (m *memDeviceRepo) ListByUser(_ context.Context, userID string) ([]*device.Device, error) {
	return m.byUser[userID], nil
}

func (m *memDeviceRepo) UpdateSettings(context.Context, uuid.UUID, device.NotificationSettings) error {
	return nil
}
func (m *memDeviceRepo) UpdatePushToken(context.Context, uuid.UUID, string) error { return nil }
func (m *memDeviceRepo) TouchLastSeen(context.Context, uuid.UUID) error           { return nil }

type fakeHub struct {
	mu       sync.Mutex
	messages map[string][]*notification.SSEMessage
}

func newFakeHub() *fakeHub {
	return &fakeHub{messages: make(map[string][]*notification.SSEMessage)}
}

func (h *fakeHub) Register(*notification.SSEClient)         {}
func (h *fakeHub) Unregister(string)                        {}
func (h *fakeHub) GetClient(string) *notification.SSEClient { return nil }
func (h *fakeHub) GetClientCount() int                      { return 0 }
func (h *fakeHub) BroadcastToAll(*notification.SSEMessage)  {}
func (h *fakeHub) Stop()                                    {}

func (h *fakeHub) SendToClient(string, *notification.SSEMessage) error { return nil }

func (h *fakeHub) BroadcastToUser(userID string, msg *notification.SSEMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[userID] = append(h.messages[userID], msg)
}

type fakePusher struct {
	mu       sync.Mutex
	sent     []string
	failWith error
}

func (p *fakePusher) Send(_ context.Context, token, _, _ string, _ json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.sent = append(p.sent, token)
	return nil
}

type fixture struct {
	svc           *Service
	notifications *memNotificationRepo
	devices       *memDeviceRepo
	hub           *fakeHub
	pusher        *fakePusher
}

func newFixture() *fixture {
	notifications := newMemNotificationRepo()
	devices := &memDeviceRepo{byUser: make(map[string][]*device.Device)}
	hub := newFakeHub()
	pusher := &fakePusher{}
	return &fixture{
		svc:           NewService(notifications, devices, hub, pusher, zerolog.Nop()),
		notifications: notifications,
		devices:       devices,
		hub:           hub,
		pusher:        pusher,
	}
}

func registerDevice(t *testing.T, f *fixture, userID string, token *string, settings device.NotificationSettings) *device.Device {
	t.Helper()
	d, err := device.NewDevice(userID, "bed", "secret")
	require.NoError(t, err)
	d.Settings = settings
	d.PushToken = token
	require.NoError(t, f.devices.Create(context.Background(), d))
	return d
}

func TestQueueSleepReportCreatesSSEAndPush(t *testing.T) {
	f := newFixture()
	token := "tok-1"
	registerDevice(t, f, "u1", &token, device.DefaultSettings())

	err := f.svc.QueueSleepReport(context.Background(), "u1", "s1", 85, "Good sleep")
	require.NoError(t, err)

	pending, _ := f.notifications.ListPendingNotifications(context.Background(), 10)
	require.Len(t, pending, 2)
	channels := map[notification.Channel]bool{}
	for _, n := range pending {
		channels[n.Channel] = true
		assert.Equal(t, notification.KindSleepReport, n.Kind)
		require.NotNil(t, n.SessionID)
		assert.Equal(t, "s1", *n.SessionID)
	}
	assert.True(t, channels[notification.ChannelSSE])
	assert.True(t, channels[notification.ChannelPush])
}

func TestQueueRespectsSettings(t *testing.T) {
	f := newFixture()
	settings := device.DefaultSettings()
	settings.SleepReport = false
	registerDevice(t, f, "u1", nil, settings)

	require.NoError(t, f.svc.QueueSleepReport(context.Background(), "u1", "s1", 85, "Good sleep"))

	pending, _ := f.notifications.ListPendingNotifications(context.Background(), 10)
	assert.Empty(t, pending, "disabled kinds queue nothing")

	// other kinds still flow
	require.NoError(t, f.svc.QueueSnoringAlert(context.Background(), "u1", "s1", 45))
	pending, _ = f.notifications.ListPendingNotifications(context.Background(), 10)
	assert.Len(t, pending, 1)
}

func TestQueueWithoutDevicesFallsBackToSSE(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.QueueBedtimeReminder(context.Background(), "u2"))

	pending, _ := f.notifications.ListPendingNotifications(context.Background(), 10)
	require.Len(t, pending, 1)
	assert.Equal(t, notification.ChannelSSE, pending[0].Channel)
}

func TestQueueThresholds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.QueueSnoringAlert(ctx, "u1", "s1", 30))
	require.NoError(t, f.svc.QueueEfficiencyAlert(ctx, "u1", "s1", 80))

	pending, _ := f.notifications.ListPendingNotifications(ctx, 10)
	assert.Empty(t, pending, "below-threshold alerts queue nothing")

	require.NoError(t, f.svc.QueueSnoringAlert(ctx, "u1", "s1", 31))
	require.NoError(t, f.svc.QueueEfficiencyAlert(ctx, "u1", "s1", 60))
	pending, _ = f.notifications.ListPendingNotifications(ctx, 10)
	assert.Len(t, pending, 2)
}

func TestProcessPendingDeliversSSE(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.QueueBedtimeReminder(ctx, "u1"))

	sent, err := f.svc.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	assert.Len(t, f.hub.messages["u1"], 1)
	assert.Equal(t, "notification", f.hub.messages["u1"][0].Event)

	pending, _ := f.notifications.ListPendingNotifications(ctx, 10)
	assert.Empty(t, pending)
}

func TestProcessPendingDeliversPush(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	token := "tok-9"
	registerDevice(t, f, "u1", &token, device.DefaultSettings())

	require.NoError(t, f.svc.QueueSleepReport(ctx, "u1", "s1", 92, "Excellent sleep!"))

	sent, err := f.svc.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"tok-9"}, f.pusher.sent)
}

func TestFailedDeliveryRetriesThenExhausts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	token := "tok-2"
	registerDevice(t, f, "u1", &token, device.DefaultSettings())
	f.pusher.failWith = errors.New("push gateway down")

	require.NoError(t, f.svc.QueueSleepReport(ctx, "u1", "s1", 70, "Fair sleep"))

	// First attempt: SSE succeeds, push fails.
	sent, err := f.svc.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	for i := 0; i < 2; i++ {
		sent, err = f.svc.ProcessRetryable(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
	}

	// Three failures exhaust the retry budget.
	retryable, _ := f.notifications.ListRetryableNotifications(ctx, 10)
	assert.Empty(t, retryable)
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	token := "tok-3"
	registerDevice(t, f, "u1", &token, device.DefaultSettings())
	f.pusher.failWith = errors.New("timeout")

	require.NoError(t, f.svc.QueueSleepReport(ctx, "u1", "s1", 70, "Fair sleep"))
	_, err := f.svc.ProcessPending(ctx, 10)
	require.NoError(t, err)

	f.pusher.failWith = nil
	sent, err := f.svc.ProcessRetryable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"tok-3"}, f.pusher.sent)
}

func TestExpireStale(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	n := notification.New("u1", notification.KindGuide, notification.ChannelSSE, "t", "b", nil)
	n.SetExpiry(time.Now().UTC().Add(-time.Minute))
	require.NoError(t, f.notifications.Create(ctx, n))

	expired, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)
}
