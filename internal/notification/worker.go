// Package notification tells web push subscribers when the WC becomes free.
package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"wc-reservation-backend/internal/engine"
	"wc-reservation-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Subscriptions is the part of the record store the pool reads and prunes.
type Subscriptions interface {
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// WorkerPool fans "WC is free" pushes out to every subscription.
type WorkerPool struct {
	size    int
	jobs    chan engine.Transition
	subs    Subscriptions
	webpush *webpush.Options
	sender  NotificationSender
	log     zerolog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, subs Subscriptions, webpushOptions *webpush.Options, log zerolog.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan engine.Transition, size*4),
		subs:    subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log.With().Str("component", "push").Logger(),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug().Int("worker", id).Msg("worker started")
	for {
		select {
		case t := <-wp.jobs:
			wp.notifyFree(ctx, t)
		case <-ctx.Done():
			wp.log.Debug().Int("worker", id).Msg("worker shutting down")
			return
		}
	}
}

// Dispatch queues a transition, blocking while the queue is full.
func (wp *WorkerPool) Dispatch(t engine.Transition) {
	wp.jobs <- t
}

// OnTransition queues releases without blocking the caller. Reservations
// are ignored since nobody waits for the WC to become busy.
func (wp *WorkerPool) OnTransition(_ context.Context, t engine.Transition) {
	if t.Kind == engine.KindReserved {
		return
	}
	select {
	case wp.jobs <- t:
	default:
		wp.log.Warn().Str("kind", string(t.Kind)).Msg("push queue full, notification dropped")
	}
}

// Message renders the push body for a release.
func Message(t engine.Transition) string {
	if t.Kind == engine.KindAutoReleased {
		return fmt.Sprintf("The WC is free again (released automatically after %d min).", t.DurationMinutes)
	}
	if t.Handle == "" {
		return "The WC is free again!"
	}
	return fmt.Sprintf("The WC is free again! %s stayed %d min.", t.Handle, t.DurationMinutes)
}

func (wp *WorkerPool) notifyFree(ctx context.Context, t engine.Transition) {
	subscriptions, err := wp.subs.ListSubscriptions(ctx)
	if err != nil {
		wp.log.Error().Err(err).Msg("list subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	wp.log.Info().Int("count", len(subscriptions)).Str("kind", string(t.Kind)).Msg("sending push notifications")

	payload := []byte(Message(t))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("send notification")
		return
	}
	defer resp.Body.Close()

	// The push service answers 410 for subscriptions the browser dropped.
	if resp.StatusCode == http.StatusGone {
		wp.log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("delete expired subscription")
		}
	}
}
