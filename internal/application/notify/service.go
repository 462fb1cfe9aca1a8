package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sleep-hub/sleep-hub/internal/domain/device"
	"github.com/sleep-hub/sleep-hub/internal/domain/notification"
)

// Pusher delivers a push notification to one device token.
type Pusher interface {
	Send(ctx context.Context, token, title, body string, payload json.RawMessage) error
}

const defaultExpiry = 12 * time.Hour

// Service queues sleep notifications gated by user settings and runs the
// delivery workers that drain the queue over SSE and push.
type Service struct {
	notifications notification.Repository
	devices       device.Repository
	sseHub        notification.SSEHub
	pusher        Pusher
	logger        zerolog.Logger
}

// NewService creates a notify service. A nil pusher disables the push
// channel; PUSH notifications then fail and retry until they expire.
func NewService(
	notifications notification.Repository,
	devices device.Repository,
	sseHub notification.SSEHub,
	pusher Pusher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		notifications: notifications,
		devices:       devices,
		sseHub:        sseHub,
		pusher:        pusher,
		logger:        logger.With().Str("service", "notify").Logger(),
	}
}

// QueueSleepReport announces a finished sleep report to the user.
func (s *Service) QueueSleepReport(ctx context.Context, userID, sessionID string, score int, message string) error {
	payload, _ := json.Marshal(map[string]any{
		"type":      "sleep_report",
		"userId":    userID,
		"sessionId": sessionID,
		"score":     score,
	})
	title := "Sleep report ready"
	body := fmt.Sprintf("Tonight's sleep score is %d. %s", score, message)
	return s.queue(ctx, userID, &sessionID, notification.KindSleepReport, title, body, payload)
}

// QueueEfficiencyAlert warns about low sleep efficiency. Efficiency of 75
// percent or better is considered fine and queues nothing.
func (s *Service) QueueEfficiencyAlert(ctx context.Context, userID, sessionID string, efficiency float64) error {
	if efficiency >= 75 {
		return nil
	}
	payload, _ := json.Marshal(map[string]any{"type": "sleep_efficiency", "efficiency": efficiency})
	title := "Sleep efficiency needs attention"
	body := fmt.Sprintf("Sleep efficiency was %.1f%%. Check your sleep environment.", efficiency)
	return s.queue(ctx, userID, &sessionID, notification.KindSleepScore, title, body, payload)
}

// QueueSnoringAlert reports heavy snoring. Sessions with 30 minutes or less
// queue nothing.
func (s *Service) QueueSnoringAlert(ctx context.Context, userID, sessionID string, minutes float64) error {
	if minutes <= 30 {
		return nil
	}
	payload, _ := json.Marshal(map[string]any{"type": "snoring", "minutes": minutes})
	title := "Snoring detected"
	body := fmt.Sprintf("You snored for over %.0f minutes. Check your sleep position.", minutes)
	return s.queue(ctx, userID, &sessionID, notification.KindSnoring, title, body, payload)
}

// QueueBedtimeReminder nudges the user an hour before their usual bedtime.
func (s *Service) QueueBedtimeReminder(ctx context.Context, userID string) error {
	payload, _ := json.Marshal(map[string]any{"type": "bedtime_reminder"})
	return s.queue(ctx, userID, nil, notification.KindGuide, "Sleep guide", "Bedtime is an hour away. Time to wind down!", payload)
}

// queue creates one SSE notification for the user plus one push notification
// per device carrying a push token, all gated by the device settings.
func (s *Service) queue(ctx context.Context, userID string, sessionID *string, kind notification.Kind, title, body string, payload json.RawMessage) error {
	devices, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if !kindEnabled(devices, kind) {
		s.logger.Debug().
			Str("user_id", userID).
			Str("kind", string(kind)).
			Msg("notification disabled by settings")
		return nil
	}

	expiry := time.Now().UTC().Add(defaultExpiry)

	n := notification.New(userID, kind, notification.ChannelSSE, title, body, payload)
	n.SetExpiry(expiry)
	if sessionID != nil {
		n.SetSession(*sessionID)
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	for _, d := range devices {
		if d.PushToken == nil || !d.Settings.Allows(string(kind)) {
			continue
		}
		p := notification.New(userID, kind, notification.ChannelPush, title, body, payload)
		p.SetExpiry(expiry)
		if sessionID != nil {
			p.SetSession(*sessionID)
		}
		if err := s.notifications.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to create push notification: %w", err)
		}
	}
	return nil
}

// kindEnabled reports whether any of the user's devices allows the kind.
// Users without registered devices receive everything over SSE.
func kindEnabled(devices []*device.Device, kind notification.Kind) bool {
	if len(devices) == 0 {
		return true
	}
	for _, d := range devices {
		if d.Settings.Allows(string(kind)) {
			return true
		}
	}
	return false
}

// ProcessPending drains up to limit pending notifications and returns how
// many were delivered.
func (s *Service) ProcessPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.notifications.ListPendingNotifications(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending notifications: %w", err)
	}

	sent := 0
	for _, n := range pending {
		if s.attempt(ctx, n) {
			sent++
		}
	}
	return sent, nil
}

// ProcessRetryable re-queues failed notifications that still have retries
// left and attempts them again.
func (s *Service) ProcessRetryable(ctx context.Context, limit int) (int, error) {
	retryable, err := s.notifications.ListRetryableNotifications(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list retryable notifications: %w", err)
	}

	sent := 0
	for _, n := range retryable {
		if err := n.ResetForRetry(); err != nil {
			continue
		}
		if err := s.notifications.Update(ctx, n); err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.NotificationID.String()).Msg("failed to reset notification")
			continue
		}
		if s.attempt(ctx, n) {
			sent++
		}
	}
	return sent, nil
}

// ExpireStale marks expired pending and failed notifications.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	return s.notifications.ExpireNotifications(ctx)
}

// attempt delivers one notification and persists the outcome.
func (s *Service) attempt(ctx context.Context, n *notification.Notification) bool {
	deliverErr := s.deliver(ctx, n)

	var markErr error
	if deliverErr == nil {
		markErr = n.MarkSent()
	} else {
		markErr = n.MarkFailed(deliverErr.Error())
	}
	if markErr != nil && !errors.Is(markErr, notification.ErrExpired) {
		s.logger.Error().Err(markErr).Str("notification_id", n.NotificationID.String()).Msg("invalid notification transition")
		return false
	}

	if err := s.notifications.Update(ctx, n); err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.NotificationID.String()).Msg("failed to update notification")
		return false
	}

	if deliverErr != nil {
		s.logger.Warn().
			Err(deliverErr).
			Str("notification_id", n.NotificationID.String()).
			Str("channel", string(n.Channel)).
			Int("retry_count", n.RetryCount).
			Msg("notification delivery failed")
		return false
	}
	return true
}

func (s *Service) deliver(ctx context.Context, n *notification.Notification) error {
	switch n.Channel {
	case notification.ChannelSSE:
		if s.sseHub == nil {
			return errors.New("sse hub unavailable")
		}
		data, err := json.Marshal(map[string]any{
			"kind":    n.Kind,
			"title":   n.Title,
			"body":    n.Body,
			"payload": n.Payload,
		})
		if err != nil {
			return err
		}
		s.sseHub.BroadcastToUser(n.UserID, notification.NewSSEMessage("notification", data))
		return nil

	case notification.ChannelPush:
		if s.pusher == nil {
			return errors.New("push channel disabled")
		}
		devices, err := s.devices.ListByUser(ctx, n.UserID)
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		pushed := 0
		for _, d := range devices {
			if d.PushToken == nil || !d.Settings.Allows(string(n.Kind)) {
				continue
			}
			if err := s.pusher.Send(ctx, *d.PushToken, n.Title, n.Body, n.Payload); err != nil {
				return fmt.Errorf("failed to push to device %s: %w", d.DeviceID, err)
			}
			pushed++
		}
		if pushed == 0 {
			return errors.New("no push-capable device")
		}
		return nil

	default:
		return fmt.Errorf("unsupported channel %q", n.Channel)
	}
}

// RunWorker ticks the pending, retry and expiry sweeps until ctx is done.
func (s *Service) RunWorker(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("notification worker started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("notification worker stopped")
			return
		case <-ticker.C:
			if _, err := s.ProcessPending(ctx, batchSize); err != nil {
				s.logger.Error().Err(err).Msg("pending sweep failed")
			}
			if _, err := s.ProcessRetryable(ctx, batchSize); err != nil {
				s.logger.Error().Err(err).Msg("retry sweep failed")
			}
			if n, err := s.ExpireStale(ctx); err != nil {
				s.logger.Error().Err(err).Msg("expiry sweep failed")
			} else if n > 0 {
				s.logger.Info().Int64("expired", n).Msg("expired stale notifications")
			}
		}
	}
}
