package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wc-reservation-backend/internal/parse"
	"wc-reservation-backend/internal/store"
)

type createUserRequest struct {
	Handle string `json:"handle" binding:"required"`
	Glyph  string `json:"glyph" binding:"required"`
}

// CreateUser handles POST /api/users.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handle and glyph are required"})
		return
	}

	handle, err := parse.Handle(req.Handle)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	glyph, err := parse.Glyph(req.Glyph)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), handle, glyph)
	switch {
	case errors.Is(err, store.ErrDuplicateHandle):
		c.JSON(http.StatusConflict, gin.H{"error": "handle already taken"})
		return
	case err != nil:
		h.log.Error().Err(err).Str("handle", handle).Msg("create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	h.log.Info().Int64("user", user.ID).Str("handle", user.Handle).Msg("user created")
	c.JSON(http.StatusCreated, user)
}

// ListUsers handles GET /api/users. With ?id=N it returns that single user.
func (h *Handler) ListUsers(c *gin.Context) {
	if raw, ok := c.GetQuery("id"); ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		user, err := h.store.GetUserByID(c.Request.Context(), id)
		if err != nil {
			h.userError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
		return
	}

	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetUser handles GET /api/users/:handle.
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.store.GetUserByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetUserStats handles GET /api/users/:handle/stats.
func (h *Handler) GetUserStats(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.store.GetUserByHandle(ctx, c.Param("handle"))
	if err != nil {
		h.userError(c, err)
		return
	}
	stats, err := h.store.UserStats(ctx, user.ID)
	if err != nil {
		h.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) userError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	h.log.Error().Err(err).Msg("user lookup")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve user"})
}
