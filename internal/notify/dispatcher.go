package notify

import (
	"context"

	"github.com/rs/zerolog"

	"churchops/internal/clock"
	"churchops/internal/models"
	"churchops/internal/storage"
)

// Dispatcher attempts delivery of a notification over every channel its
// server is configured for and contactable on. It is fire-and-forget:
// failures are logged and recorded on the notification, never returned, so
// the triggering business operation is not rolled back by a delivery
// problem.
type Dispatcher struct {
	store storage.Storage
	email Channel
	sms   Channel
	clock clock.Clock
	log   zerolog.Logger
}

func NewDispatcher(store storage.Storage, email, sms Channel, clk clock.Clock, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store: store,
		email: email,
		sms:   sms,
		clock: clk,
		log:   log.With().Str("component", "dispatcher").Logger(),
	}
}

func methodAllows(method models.ContactMethod, channel models.ContactMethod) bool {
	return method == channel || method == models.ContactBoth
}

// Dispatch loads the stored notification, attempts every eligible channel
// and records the outcome: at least one successful channel marks the
// notification sent, anything else marks it failed. Reports whether the
// notification ended up sent.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) bool {
	n, err := d.store.GetNotification(ctx, id)
	if err != nil {
		d.log.Error().Err(err).Str("notification_id", id).Msg("cannot load notification")
		return false
	}
	if n.Status != models.StatusPending {
		d.log.Debug().Str("notification_id", id).Str("status", string(n.Status)).
			Msg("notification no longer pending, skipping")
		return n.Status == models.StatusSent
	}

	srv, err := d.store.GetServer(ctx, n.ServerID)
	if err != nil {
		d.log.Error().Err(err).Str("notification_id", id).Str("server_id", n.ServerID).
			Msg("cannot load server, marking failed")
		d.markFailed(ctx, id)
		return false
	}

	succeeded := 0

	if srv.EmailNotifications && methodAllows(n.DeliveryMethod, models.ContactEmail) && srv.ContactEmail() != "" {
		if sendErr := d.email.Send(ctx, srv, n); sendErr != nil {
			d.log.Error().Err(sendErr).Str("notification_id", id).Str("channel", d.email.Name()).
				Msg("channel send failed")
		} else {
			succeeded++
		}
	}

	if srv.SMSNotifications && methodAllows(n.DeliveryMethod, models.ContactSMS) && srv.ContactPhone() != "" {
		if sendErr := d.sms.Send(ctx, srv, n); sendErr != nil {
			d.log.Error().Err(sendErr).Str("notification_id", id).Str("channel", d.sms.Name()).
				Msg("channel send failed")
		} else {
			succeeded++
		}
	}

	if succeeded == 0 {
		d.log.Warn().Str("notification_id", id).Str("server", srv.DisplayName()).
			Msg("no channel delivered, marking failed")
		d.markFailed(ctx, id)
		return false
	}

	now := d.clock.Now()
	if err := d.store.UpdateNotification(ctx, id, func(n *models.Notification) {
		n.Status = models.StatusSent
		n.SentAt = &now
	}); err != nil {
		d.log.Error().Err(err).Str("notification_id", id).Msg("cannot record sent status")
		return false
	}
	d.log.Info().Str("notification_id", id).Int("channels", succeeded).Msg("notification sent")
	return true
}

func (d *Dispatcher) markFailed(ctx context.Context, id string) {
	if err := d.store.UpdateNotification(ctx, id, func(n *models.Notification) {
		n.Status = models.StatusFailed
	}); err != nil {
		d.log.Error().Err(err).Str("notification_id", id).Msg("cannot record failed status")
	}
}
