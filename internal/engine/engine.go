// Package engine implements the reservation state machine for the single WC.
//
// The engine owns the authoritative occupancy (holder, since, fun message)
// and the auto-release timer slot. Every transition holds one mutex across
// read-check-persist-mutate, so at most one holder exists at any instant and
// only the holder can release manually.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"wc-reservation-backend/internal/metrics"
	"wc-reservation-backend/internal/model"
	"wc-reservation-backend/internal/store"
)

// DefaultTimeout is how long a reservation may last before it is reclaimed.
const DefaultTimeout = 10 * time.Minute

var (
	ErrAlreadyOccupied = errors.New("resource already occupied")
	ErrNotHolder       = errors.New("caller is not the current holder")
	ErrNotOccupied     = errors.New("resource is free")
	ErrNotStarted      = errors.New("engine not started")
)

// Store is the part of the record store the engine drives.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (model.User, error)
	GetResourceStatus(ctx context.Context) (store.StatusView, error)
	OpenReservation(ctx context.Context, userID int64, start time.Time, funMessage string) (int64, error)
	CloseReservation(ctx context.Context, holderID int64, end time.Time, durationMinutes int, autoReleased bool) error
}

// Occupancy describes a successful reservation.
type Occupancy struct {
	HolderID   int64
	Since      time.Time
	FunMessage string
	RecordID   int64
}

// Release describes a closed reservation.
type Release struct {
	HolderID        int64
	Start           time.Time
	End             time.Time
	DurationMinutes int
	AutoReleased    bool
}

// occupancy is the engine-owned state. epoch identifies the armed timer so a
// firing that belongs to an earlier occupancy is ignored.
type occupancy struct {
	occupied   bool
	holder     int64
	since      time.Time
	funMessage string

	epoch uint64
	timer *clock.Timer
}

// Engine is the reservation state machine.
type Engine struct {
	mu      sync.Mutex
	state   occupancy
	started bool

	store    Store
	clock    clock.Clock
	timeout  time.Duration
	pick     func(n int) int
	messages []string
	log      zerolog.Logger

	autoReleases chan Release
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithPicker replaces the uniform fun-message picker.
func WithPicker(pick func(n int) int) Option {
	return func(e *Engine) { e.pick = pick }
}

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an engine. Start must be called before any transition.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		clock:        clock.New(),
		timeout:      DefaultTimeout,
		pick:         uniformPick,
		messages:     funMessages,
		log:          zerolog.Nop(),
		autoReleases: make(chan Release, 16),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AutoReleases delivers every timeout-driven release, including the one
// performed by Start for an expired occupancy.
func (e *Engine) AutoReleases() <-chan Release {
	return e.autoReleases
}

// Start loads the persisted status and reconciles it with the timeout: an
// expired occupancy is released at once, a live one gets a timer for the
// remaining time.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	view, err := e.store.GetResourceStatus(ctx)
	if err != nil {
		return fmt.Errorf("load resource status: %w", err)
	}

	if view.Occupied && view.HolderID != nil && view.OccupiedSince != nil {
		e.state.occupied = true
		e.state.holder = *view.HolderID
		e.state.since = *view.OccupiedSince
		if view.FunMessage != nil {
			e.state.funMessage = *view.FunMessage
		}

		elapsed := e.clock.Now().Sub(e.state.since)
		if elapsed >= e.timeout {
			e.log.Info().Int64("holder", e.state.holder).Dur("elapsed", elapsed).Msg("expired reservation found at startup, releasing")
			rel, err := e.releaseLocked(ctx, true)
			if err != nil {
				return fmt.Errorf("release expired reservation: %w", err)
			}
			e.emit(rel)
		} else {
			remaining := e.timeout - elapsed
			e.log.Info().Int64("holder", e.state.holder).Dur("remaining", remaining).Msg("reservation in progress, auto-release armed")
			e.armLocked(remaining)
		}
	}

	e.started = true
	return nil
}

// Reserve makes userID the holder. It fails with ErrAlreadyOccupied while
// someone else (or userID) holds the WC.
func (e *Engine) Reserve(ctx context.Context, userID int64) (Occupancy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return Occupancy{}, ErrNotStarted
	}
	if e.state.occupied {
		return Occupancy{}, ErrAlreadyOccupied
	}
	if _, err := e.store.GetUserByID(ctx, userID); err != nil {
		return Occupancy{}, err
	}

	now := e.clock.Now()
	message := e.messages[e.pick(len(e.messages))]

	recordID, err := e.store.OpenReservation(ctx, userID, now, message)
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return Occupancy{}, ErrAlreadyOccupied
		}
		return Occupancy{}, err
	}

	e.state.occupied = true
	e.state.holder = userID
	e.state.since = now
	e.state.funMessage = message
	e.armLocked(e.timeout)

	metrics.Reservations.Inc()
	e.log.Info().Int64("holder", userID).Int64("record", recordID).Msg("reserved")

	return Occupancy{HolderID: userID, Since: now, FunMessage: message, RecordID: recordID}, nil
}

// Release frees the WC. Unless autoReleased is set, userID must be the
// current holder, otherwise ErrNotHolder is returned and nothing changes.
// With autoReleased the current holder is released whoever asks.
func (e *Engine) Release(ctx context.Context, userID int64, autoReleased bool) (Release, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return Release{}, ErrNotStarted
	}
	if !e.state.occupied {
		if autoReleased {
			return Release{}, ErrNotOccupied
		}
		return Release{}, ErrNotHolder
	}
	if !autoReleased && e.state.holder != userID {
		return Release{}, ErrNotHolder
	}
	return e.releaseLocked(ctx, autoReleased)
}

// Current returns the live occupancy, if any.
func (e *Engine) Current() (Occupancy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.occupied {
		return Occupancy{}, false
	}
	return Occupancy{
		HolderID:   e.state.holder,
		Since:      e.state.since,
		FunMessage: e.state.funMessage,
	}, true
}

// Stop disarms the pending timer. The persisted occupancy is kept and
// picked up again by the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disarmLocked()
}

// releaseLocked persists the release of the current holder and clears the
// in-memory occupancy. On error the state is left untouched.
func (e *Engine) releaseLocked(ctx context.Context, autoReleased bool) (Release, error) {
	now := e.clock.Now()
	holder := e.state.holder
	duration := roundMinutes(now.Sub(e.state.since))

	if err := e.store.CloseReservation(ctx, holder, now, duration, autoReleased); err != nil {
		return Release{}, err
	}

	rel := Release{
		HolderID:        holder,
		Start:           e.state.since,
		End:             now,
		DurationMinutes: duration,
		AutoReleased:    autoReleased,
	}

	e.disarmLocked()
	e.state = occupancy{epoch: e.state.epoch}

	kind := "manual"
	if autoReleased {
		kind = "auto"
	}
	metrics.Releases.WithLabelValues(kind).Inc()
	metrics.VisitDuration.Observe(float64(duration))
	e.log.Info().Int64("holder", holder).Int("duration", duration).Bool("auto", autoReleased).Msg("released")

	return rel, nil
}

// armLocked replaces any pending timer with a new one for the current epoch.
func (e *Engine) armLocked(d time.Duration) {
	e.disarmLocked()
	e.state.epoch++
	epoch := e.state.epoch
	e.state.timer = e.clock.AfterFunc(d, func() { e.fire(epoch) })
}

func (e *Engine) disarmLocked() {
	if e.state.timer != nil {
		e.state.timer.Stop()
		e.state.timer = nil
	}
}

// fire runs when the timer of the given epoch elapses.
func (e *Engine) fire(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.timer == nil || e.state.epoch != epoch {
		return
	}
	e.state.timer = nil

	if !e.state.occupied {
		return
	}

	holder := e.state.holder
	rel, err := e.releaseLocked(context.Background(), true)
	if err != nil {
		metrics.AutoReleaseFailures.Inc()
		e.log.Error().Err(err).Int64("holder", holder).Msg("auto-release failed")
		return
	}
	e.emit(rel)
}

func (e *Engine) emit(rel Release) {
	select {
	case e.autoReleases <- rel:
	default:
		e.log.Warn().Int64("holder", rel.HolderID).Msg("auto-release notification dropped, no reader")
	}
}

// roundMinutes rounds d to the nearest whole minute, halves rounding up.
func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
