package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wc-reservation-backend/internal/avatar"
)

// multipartOverhead leaves room for the form encoding around the file.
const multipartOverhead = 64 << 10

// UploadAvatar handles POST /api/upload-avatar with a multipart "avatar" file.
func (h *Handler) UploadAvatar(c *gin.Context) {
	if h.avatars == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "avatar upload is not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.avatars.MaxBytes()+multipartOverhead)
	header, err := c.FormFile("avatar")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file too large, 1 MiB maximum"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}
	defer file.Close()

	url, err := h.avatars.Upload(c.Request.Context(), file)
	switch {
	case errors.Is(err, avatar.ErrTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large, 1 MiB maximum"})
	case errors.Is(err, avatar.ErrUnsupportedType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "only PNG and JPEG images are accepted"})
	case errors.Is(err, avatar.ErrEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
	case err != nil:
		h.log.Error().Err(err).Msg("store avatar")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store avatar"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "avatarUrl": url})
	}
}
