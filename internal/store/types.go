package store

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when an operation references an unknown user.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateHandle is returned when a handle is already taken.
	ErrDuplicateHandle = errors.New("handle already exists")
	// ErrStatusConflict is returned when the stored status does not allow
	// the requested open or close (e.g. opening while already occupied).
	ErrStatusConflict = errors.New("resource status conflict")
	// ErrSubscriptionNotFound is returned for an unknown push endpoint.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrStoreFailure wraps every persistence error not classified above.
	ErrStoreFailure = errors.New("store failure")
)

// StatusView is the resource status joined with the holder's handle and glyph.
// All holder fields are nil while the WC is free.
type StatusView struct {
	Occupied      bool       `json:"occupied"`
	HolderID      *int64     `json:"holderId"`
	Handle        *string    `json:"handle"`
	Glyph         *string    `json:"glyph"`
	OccupiedSince *time.Time `json:"occupiedSince"`
	FunMessage    *string    `json:"funMessage"`
}

// HistoryEntry is a closed reservation joined with its user.
type HistoryEntry struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"userId"`
	Handle          string    `json:"handle"`
	Glyph           string    `json:"glyph"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	DurationMinutes int       `json:"durationMinutes"`
	AutoReleased    bool      `json:"autoReleased"`
}

// UserStats aggregates a user's closed reservations.
type UserStats struct {
	UserID        int64   `json:"userId"`
	VisitCount    int64   `json:"visitCount"`
	AvgDuration   float64 `json:"avgDuration"`
	TotalDuration int64   `json:"totalDuration"`
}
