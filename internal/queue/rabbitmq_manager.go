package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
)

// Message is the queue envelope. Only the ID travels over the wire; the
// consumer reloads the notification so it always acts on current state
// (a response or cancellation recorded after enqueueing is respected).
type Message struct {
	NotificationID string `json:"notification_id"`
}

// Manager owns the RabbitMQ topology for notification delivery: a direct
// exchange with a ready queue the worker consumes and a delayed queue
// that dead-letters into it after a TTL. Short reminder delays ride the
// delayed queue; anything beyond a minute is left to the cron sweep.
type Manager struct {
	client    *rabbitmq.RabbitClient
	publisher *rabbitmq.Publisher
	consumer  *rabbitmq.Consumer
	log       zerolog.Logger
}

func NewManager(url string, log zerolog.Logger) (*Manager, error) {
	config := rabbitmq.ClientConfig{
		URL:       url,
		Heartbeat: 10 * time.Second,
		ReconnectStrat: retry.Strategy{
			Attempts: 10,
			Delay:    2 * time.Second,
			Backoff:  2,
		},
		ProducingStrat: retry.Strategy{
			Attempts: 3,
			Delay:    100 * time.Millisecond,
			Backoff:  2,
		},
		ConsumingStrat: retry.Strategy{
			Attempts: 3,
			Delay:    100 * time.Millisecond,
			Backoff:  2,
		},
	}

	client, err := rabbitmq.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create RabbitMQ client: %w", err)
	}

	if err := setupExchangesAndQueues(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchanges and queues: %w", err)
	}

	publisher := rabbitmq.NewPublisher(client, "notifications", "application/json")

	logger := log.With().Str("component", "queue").Logger()
	logger.Info().Msg("RabbitMQ manager initialized")
	return &Manager{
		client:    client,
		publisher: publisher,
		log:       logger,
	}, nil
}

func setupExchangesAndQueues(client *rabbitmq.RabbitClient) error {
	err := client.DeclareExchange("notifications", "direct", true, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	delayQueueArgs := map[string]interface{}{
		"x-dead-letter-exchange":    "notifications",
		"x-dead-letter-routing-key": "ready",
		"x-message-ttl":             60000,
	}

	err = client.DeclareQueue(
		"notifications.delayed",
		"notifications",
		"delayed",
		true,
		false,
		true,
		delayQueueArgs,
	)
	if err != nil {
		return fmt.Errorf("declare delayed queue: %w", err)
	}

	err = client.DeclareQueue(
		"notifications.ready",
		"notifications",
		"ready",
		true,
		false,
		true,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare ready queue: %w", err)
	}

	return nil
}

// Publish enqueues a notification for immediate delivery.
func (m *Manager) Publish(ctx context.Context, notificationID string) error {
	body, err := json.Marshal(Message{NotificationID: notificationID})
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	if err := m.publisher.Publish(ctx, body, "ready"); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	m.log.Debug().Str("notification_id", notificationID).Msg("published for immediate delivery")
	return nil
}

// PublishDelayed enqueues a notification due at sendAt. Delays longer
// than the delayed queue's TTL window are not enqueued; the periodic
// sweep picks those up when they come due.
func (m *Manager) PublishDelayed(ctx context.Context, notificationID string, sendAt time.Time) error {
	delay := time.Until(sendAt)

	if delay > 60*time.Second {
		m.log.Debug().Str("notification_id", notificationID).Dur("delay", delay).
			Msg("delay exceeds queue TTL window, leaving to the sweep")
		return nil
	}
	if delay <= 0 {
		return m.Publish(ctx, notificationID)
	}

	body, err := json.Marshal(Message{NotificationID: notificationID})
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	if err := m.publisher.Publish(ctx, body, "delayed", rabbitmq.WithExpiration(delay)); err != nil {
		return fmt.Errorf("publish delayed notification: %w", err)
	}

	m.log.Debug().Str("notification_id", notificationID).Dur("delay", delay).
		Msg("published for delayed delivery")
	return nil
}

func (m *Manager) StartConsumer(ctx context.Context, handler rabbitmq.MessageHandler) error {
	config := rabbitmq.ConsumerConfig{
		Queue:         "notifications.ready",
		ConsumerTag:   "notifications-consumer",
		AutoAck:       false,
		Workers:       3,
		PrefetchCount: 10,
		Ask: rabbitmq.AskConfig{
			Multiple: false,
		},
		Nack: rabbitmq.NackConfig{
			Multiple: false,
			Requeue:  true,
		},
		Args: nil,
	}

	m.consumer = rabbitmq.NewConsumer(m.client, config, handler)

	go func() {
		if err := m.consumer.Start(ctx); err != nil {
			m.log.Error().Err(err).Msg("consumer stopped")
		}
	}()

	m.log.Info().Msg("consumer started")
	return nil
}

func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
