// Package gateway turns client requests into engine transitions and fans
// the authoritative state out to every connected client.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wc-reservation-backend/internal/engine"
	"wc-reservation-backend/internal/metrics"
	"wc-reservation-backend/internal/model"
	"wc-reservation-backend/internal/store"
)

// Peer identifies the sender of a request.
type Peer interface {
	ID() string
}

// Sink delivers events: Broadcast to every connected client, Reply to one.
type Sink interface {
	Broadcast(ev Event)
	Reply(to Peer, ev Event)
}

// Hook observes committed transitions. Implementations must not block.
type Hook interface {
	OnTransition(ctx context.Context, t engine.Transition)
}

// Reservations is the engine surface the gateway drives.
type Reservations interface {
	Reserve(ctx context.Context, userID int64) (engine.Occupancy, error)
	Release(ctx context.Context, userID int64, autoReleased bool) (engine.Release, error)
	AutoReleases() <-chan engine.Release
}

// Records is the read side of the record store.
type Records interface {
	GetUserByID(ctx context.Context, id int64) (model.User, error)
	GetResourceStatus(ctx context.Context) (store.StatusView, error)
	RecentHistory(ctx context.Context, limit int) ([]store.HistoryEntry, error)
}

// Gateway handles protocol messages.
type Gateway struct {
	engine  Reservations
	records Records
	sink    Sink
	hooks   []Hook
	log     zerolog.Logger

	// publishMu serialises snapshot reads with their delivery so no client
	// receives an older status after a newer one.
	publishMu sync.Mutex
}

// New creates a gateway.
func New(eng Reservations, records Records, sink Sink, log zerolog.Logger, hooks ...Hook) *Gateway {
	return &Gateway{
		engine:  eng,
		records: records,
		sink:    sink,
		hooks:   hooks,
		log:     log,
	}
}

// Run forwards auto-releases to clients until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	for {
		select {
		case rel := <-g.engine.AutoReleases():
			g.onAutoRelease(ctx, rel)
		case <-ctx.Done():
			return
		}
	}
}

// Handle processes one inbound message from a client.
func (g *Gateway) Handle(ctx context.Context, from Peer, msg Message) {
	switch msg.Event {
	case EventGetStatus:
		g.handleGetStatus(ctx, from)
	case EventReserve:
		if req, ok := g.decodeUserRequest(from, msg); ok {
			g.handleReserve(ctx, from, req)
		}
	case EventRelease:
		if req, ok := g.decodeUserRequest(from, msg); ok {
			g.handleRelease(ctx, from, req)
		}
	default:
		g.replyError(from, ErrMsgUnknownEvent)
	}
}

func (g *Gateway) decodeUserRequest(from Peer, msg Message) (UserRequest, bool) {
	var req UserRequest
	if len(msg.Data) == 0 {
		g.replyError(from, ErrMsgBadRequest)
		return req, false
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		g.replyError(from, ErrMsgBadRequest)
		return req, false
	}
	return req, true
}

func (g *Gateway) handleGetStatus(ctx context.Context, from Peer) {
	g.publishMu.Lock()
	defer g.publishMu.Unlock()

	payload, err := g.snapshot(ctx)
	if err != nil {
		g.log.Error().Err(err).Str("peer", from.ID()).Msg("status snapshot failed")
		g.replyError(from, ErrMsgStoreFailure)
		return
	}
	g.sink.Reply(from, Event{Name: EventStatus, Data: payload})
}

func (g *Gateway) handleReserve(ctx context.Context, from Peer, req UserRequest) {
	user, err := g.records.GetUserByID(ctx, req.UserID)
	if err != nil {
		g.replyError(from, errorMessage(err))
		return
	}

	occ, err := g.engine.Reserve(ctx, user.ID)
	if err != nil {
		g.log.Info().Err(err).Int64("user", user.ID).Msg("reserve rejected")
		g.replyError(from, errorMessage(err))
		return
	}
	g.log.Info().Str("handle", user.Handle).Msg("reserved the WC")

	g.publish(ctx)
	g.sink.Reply(from, Event{Name: EventReserved, Data: AckPayload{Success: true}})

	g.notify(ctx, engine.Transition{
		Kind:   engine.KindReserved,
		UserID: user.ID,
		Handle: user.Handle,
		Glyph:  user.Glyph,
		At:     occ.Since,
	})
}

func (g *Gateway) handleRelease(ctx context.Context, from Peer, req UserRequest) {
	user, err := g.records.GetUserByID(ctx, req.UserID)
	if err != nil {
		g.replyError(from, errorMessage(err))
		return
	}

	rel, err := g.engine.Release(ctx, user.ID, false)
	if err != nil {
		g.log.Info().Err(err).Int64("user", user.ID).Msg("release rejected")
		g.replyError(from, errorMessage(err))
		return
	}
	g.log.Info().Str("handle", user.Handle).Int("duration", rel.DurationMinutes).Msg("released the WC")

	g.publish(ctx, Event{Name: EventReleased, Data: ReleasedPayload{
		UserID:   user.ID,
		Handle:   user.Handle,
		Glyph:    user.Glyph,
		Duration: rel.DurationMinutes,
	}})
	g.sink.Reply(from, Event{Name: EventReleasedSuccess, Data: AckPayload{Success: true}})

	g.notify(ctx, engine.Transition{
		Kind:            engine.KindReleased,
		UserID:          user.ID,
		Handle:          user.Handle,
		Glyph:           user.Glyph,
		DurationMinutes: rel.DurationMinutes,
		At:              rel.End,
	})
}

func (g *Gateway) onAutoRelease(ctx context.Context, rel engine.Release) {
	g.log.Info().Int64("user", rel.HolderID).Int("duration", rel.DurationMinutes).Msg("WC released automatically")

	g.publish(ctx, Event{Name: EventAutoReleased, Data: AutoReleasedPayload{
		UserID:   rel.HolderID,
		Duration: rel.DurationMinutes,
	}})

	t := engine.Transition{
		Kind:            engine.KindAutoReleased,
		UserID:          rel.HolderID,
		DurationMinutes: rel.DurationMinutes,
		At:              rel.End,
	}
	if user, err := g.records.GetUserByID(ctx, rel.HolderID); err == nil {
		t.Handle = user.Handle
		t.Glyph = user.Glyph
	}
	g.notify(ctx, t)
}

// publish broadcasts the fresh status followed by extra events.
func (g *Gateway) publish(ctx context.Context, extra ...Event) {
	g.publishMu.Lock()
	defer g.publishMu.Unlock()

	payload, err := g.snapshot(ctx)
	if err != nil {
		g.log.Error().Err(err).Msg("status snapshot failed, broadcast skipped")
	} else {
		g.sink.Broadcast(Event{Name: EventStatus, Data: payload})
	}
	for _, ev := range extra {
		g.sink.Broadcast(ev)
	}
}

func (g *Gateway) snapshot(ctx context.Context) (StatusPayload, error) {
	status, err := g.records.GetResourceStatus(ctx)
	if err != nil {
		return StatusPayload{}, err
	}
	history, err := g.records.RecentHistory(ctx, HistorySize)
	if err != nil {
		return StatusPayload{}, err
	}
	return StatusPayload{Status: status, History: history}, nil
}

func (g *Gateway) notify(ctx context.Context, t engine.Transition) {
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	for _, h := range g.hooks {
		h.OnTransition(ctx, t)
	}
}

func (g *Gateway) replyError(to Peer, message string) {
	metrics.GatewayErrors.WithLabelValues(message).Inc()
	g.sink.Reply(to, Event{Name: EventError, Data: ErrorPayload{Message: message}})
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return ErrMsgUserNotFound
	case errors.Is(err, engine.ErrAlreadyOccupied):
		return ErrMsgAlreadyOccupied
	case errors.Is(err, engine.ErrNotHolder):
		return ErrMsgNotHolder
	case errors.Is(err, engine.ErrNotStarted):
		return ErrMsgNotReady
	default:
		return ErrMsgStoreFailure
	}
}
