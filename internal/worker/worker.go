package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"churchops/internal/notify"
	"churchops/internal/queue"
	"churchops/internal/storage"
)

// Processor consumes the ready queue and hands each notification to the
// dispatcher. Delivery outcomes are recorded on the notification by the
// dispatcher, so messages are acked regardless of channel success; only
// infrastructure problems (bad payload, storage down) are surfaced.
type Processor struct {
	store      storage.Storage
	queue      *queue.Manager
	dispatcher *notify.Dispatcher
	log        zerolog.Logger
}

func NewProcessor(store storage.Storage, q *queue.Manager, dispatcher *notify.Dispatcher, log zerolog.Logger) *Processor {
	return &Processor{
		store:      store,
		queue:      q,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "processor").Logger(),
	}
}

func (p *Processor) Start(ctx context.Context) error {
	if err := p.queue.StartConsumer(ctx, p.handleMessage); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	p.log.Info().Msg("processor started")
	return nil
}

func (p *Processor) handleMessage(ctx context.Context, delivery amqp091.Delivery) error {
	var msg queue.Message
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		p.log.Error().Err(err).Msg("cannot unmarshal queue message, dropping")
		return nil
	}
	if msg.NotificationID == "" {
		p.log.Error().Msg("queue message without notification id, dropping")
		return nil
	}

	if _, err := p.store.GetNotification(ctx, msg.NotificationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			p.log.Warn().Str("notification_id", msg.NotificationID).Msg("notification gone, dropping")
			return nil
		}
		// Storage trouble: nack so the message is retried.
		return fmt.Errorf("load notification %s: %w", msg.NotificationID, err)
	}

	p.dispatcher.Dispatch(ctx, msg.NotificationID)
	return nil
}
