// Package events exports committed reservation transitions to RabbitMQ.
// Failures are logged and never reach the reservation flow.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"wc-reservation-backend/internal/engine"
)

const publishTimeout = 5 * time.Second

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, io.Closer, error)

func dialAMQP(url string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, conn, nil
}

// Publisher queues transitions and publishes them from Run, one broker
// connection per message.
type Publisher struct {
	url    string
	queue  string
	events chan engine.Transition
	dial   dialFunc
	log    zerolog.Logger
}

// NewPublisher creates a publisher for the durable queue on the broker at url.
func NewPublisher(url, queue string, log zerolog.Logger) *Publisher {
	return &Publisher{
		url:    url,
		queue:  queue,
		events: make(chan engine.Transition, 64),
		dial:   dialAMQP,
		log:    log.With().Str("component", "events").Logger(),
	}
}

// OnTransition queues t for export. A full queue drops the event.
func (p *Publisher) OnTransition(_ context.Context, t engine.Transition) {
	select {
	case p.events <- t:
	default:
		p.log.Warn().Str("kind", string(t.Kind)).Msg("event queue full, transition dropped")
	}
}

// Run publishes queued transitions until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case t := <-p.events:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := p.Publish(pubCtx, t); err != nil {
				p.log.Error().Err(err).Str("kind", string(t.Kind)).Msg("publish transition")
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// Publish sends one transition as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, t engine.Transition) error {
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}

	return ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         "wc." + string(t.Kind),
		Timestamp:    t.At,
		Body:         body,
	})
}
