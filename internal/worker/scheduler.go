package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/retry"

	"churchops/internal/clock"
	"churchops/internal/models"
	"churchops/internal/queue"
	"churchops/internal/storage"
)

// Sweeper periodically enqueues notifications the fast path missed:
// pending ones that were never published and reminders whose scheduled
// time has arrived. It publishes IDs only; the Processor does delivery.
type Sweeper struct {
	store storage.Storage
	queue *queue.Manager
	clock clock.Clock
	cron  *cron.Cron
	log   zerolog.Logger
}

func NewSweeper(store storage.Storage, q *queue.Manager, clk clock.Clock, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store: store,
		queue: q,
		clock: clk,
		cron:  cron.New(),
		log:   log.With().Str("component", "sweeper").Logger(),
	}
}

// Start registers the sweep on the given cron spec and starts the
// schedule. Returns an error for an unparsable spec.
func (s *Sweeper) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("spec", spec).Msg("sweeper started")
	return nil
}

// Stop halts the cron schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("sweeper stopped")
}

// Sweep enqueues every pending notification and every due reminder.
// Each candidate is handled independently; a publish failure is logged
// and the rest of the batch continues.
func (s *Sweeper) Sweep(ctx context.Context) {
	strategy := retry.Strategy{
		Attempts: 3,
		Delay:    100 * time.Millisecond,
		Backoff:  2,
	}

	var pending []*models.Notification
	err := retry.DoContext(ctx, strategy, func() error {
		var listErr error
		pending, listErr = s.store.GetPendingNotifications(ctx)
		return listErr
	})
	if err != nil {
		s.log.Error().Err(err).Msg("cannot list pending notifications")
	} else {
		s.enqueue(ctx, pending, "pending")
	}

	var due []*models.Notification
	err = retry.DoContext(ctx, strategy, func() error {
		var listErr error
		due, listErr = s.store.GetDueNotifications(ctx, s.clock.Now())
		return listErr
	})
	if err != nil {
		s.log.Error().Err(err).Msg("cannot list due reminders")
		return
	}
	s.enqueue(ctx, due, "due")
}

func (s *Sweeper) enqueue(ctx context.Context, batch []*models.Notification, kind string) {
	published := 0
	for _, n := range batch {
		if err := s.queue.Publish(ctx, n.ID); err != nil {
			s.log.Error().Err(err).Str("notification_id", n.ID).Msg("cannot enqueue notification")
			continue
		}
		published++
	}
	if len(batch) > 0 {
		s.log.Info().Str("kind", kind).Int("candidates", len(batch)).Int("published", published).
			Msg("sweep completed")
	}
}
