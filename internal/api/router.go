package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"wc-reservation-backend/internal/avatar"
	"wc-reservation-backend/internal/gateway"
	"wc-reservation-backend/internal/mw"
	"wc-reservation-backend/internal/store"
)

// Deps gathers what the router wires into handlers.
type Deps struct {
	Store   store.Store
	Webpush *webpush.Options
	Avatars *avatar.Service
	// LocalAvatars is set when avatars are served from disk.
	LocalAvatars *avatar.LocalStore

	Hub     *gateway.Hub
	Gateway *gateway.Gateway

	Limiter     *mw.IPRateLimiter
	CacheTTL    time.Duration
	CORSOrigins []string
	Log         zerolog.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(mw.RequestID(), mw.Logger(d.Log), mw.Recovery(d.Log), mw.CORS(d.CORSOrigins))

	handler := NewHandler(d.Store, d.Webpush, d.Avatars, d.Log)

	cacheTTL := d.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	caching := mw.Cache(cache.New(cacheTTL, 2*cacheTTL), cacheTTL)

	api := r.Group("/api")
	if d.Limiter != nil {
		api.Use(mw.RateLimiter(d.Limiter))
	}
	{
		api.GET("/health", handler.GetHealth)

		api.POST("/users", handler.CreateUser)
		api.GET("/users", handler.ListUsers)
		api.GET("/users/:handle", caching, handler.GetUser)
		api.GET("/users/:handle/stats", handler.GetUserStats)

		api.GET("/wc/status", handler.GetStatus)
		api.GET("/history", handler.GetHistory)

		api.POST("/upload-avatar", handler.UploadAvatar)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	if d.LocalAvatars != nil {
		r.Static(d.LocalAvatars.URLPath(), d.LocalAvatars.Dir())
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.Hub != nil && d.Gateway != nil {
		r.GET("/ws", d.Hub.ServeWS(d.Gateway))
	}

	return r
}
