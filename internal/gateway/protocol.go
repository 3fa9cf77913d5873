package gateway

import (
	"encoding/json"

	"wc-reservation-backend/internal/store"
)

// Event names on the wire.
const (
	EventGetStatus = "get-status"
	EventReserve   = "reserve"
	EventRelease   = "release"

	EventStatus          = "status"
	EventReleased        = "released"
	EventAutoReleased    = "auto-released"
	EventReserved        = "reserved"
	EventReleasedSuccess = "released-success"
	EventError           = "error"
)

// Error messages sent in EventError payloads.
const (
	ErrMsgUserNotFound    = "UserNotFound"
	ErrMsgAlreadyOccupied = "AlreadyOccupied"
	ErrMsgNotHolder       = "NotHolder"
	ErrMsgStoreFailure    = "StoreFailure"
	ErrMsgNotReady        = "NotReady"
	ErrMsgBadRequest      = "BadRequest"
	ErrMsgUnknownEvent    = "UnknownEvent"
	ErrMsgRateLimited     = "RateLimited"
)

// HistorySize is how many closed visits accompany every status push.
const HistorySize = 5

// Message is an inbound frame. Data is decoded according to Event.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// UserRequest is the payload of reserve and release.
type UserRequest struct {
	UserID int64 `json:"userId"`
}

// StatusPayload is the authoritative state pushed to clients.
type StatusPayload struct {
	Status  store.StatusView     `json:"status"`
	History []store.HistoryEntry `json:"history"`
}

// ReleasedPayload celebrates a manual release.
type ReleasedPayload struct {
	UserID   int64  `json:"userId"`
	Handle   string `json:"handle"`
	Glyph    string `json:"glyph"`
	Duration int    `json:"duration"`
}

// AutoReleasedPayload reports a timeout-driven release.
type AutoReleasedPayload struct {
	UserID   int64 `json:"userId"`
	Duration int   `json:"duration"`
}

// AckPayload acknowledges a request to its sender.
type AckPayload struct {
	Success bool `json:"success"`
}

// ErrorPayload carries one of the ErrMsg* values.
type ErrorPayload struct {
	Message string `json:"message"`
}
