package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"wc-reservation-backend/internal/avatar"
	"wc-reservation-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	webpush *webpush.Options
	avatars *avatar.Service
	log     zerolog.Logger
}

// NewHandler creates a new API handler. webpushOptions and avatars may be
// nil when the matching feature is disabled.
func NewHandler(s store.Store, webpushOptions *webpush.Options, avatars *avatar.Service, log zerolog.Logger) *Handler {
	return &Handler{
		store:   s,
		webpush: webpushOptions,
		avatars: avatars,
		log:     log,
	}
}
