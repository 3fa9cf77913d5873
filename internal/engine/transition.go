package engine

import "time"

// TransitionKind names a completed state change.
type TransitionKind string

const (
	KindReserved     TransitionKind = "reserved"
	KindReleased     TransitionKind = "released"
	KindAutoReleased TransitionKind = "auto-released"
)

// Transition is handed to side-effect hooks (push, event export) after a
// state change has been committed.
type Transition struct {
	Kind            TransitionKind `json:"kind"`
	UserID          int64          `json:"userId"`
	Handle          string         `json:"handle,omitempty"`
	Glyph           string         `json:"glyph,omitempty"`
	DurationMinutes int            `json:"durationMinutes"`
	At              time.Time      `json:"at"`
}
