package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harentsoaR/medrec-api/internal/middleware"
	"github.com/harentsoaR/medrec-api/internal/services"
)

const defaultMaxUploadBytes = 20 << 20

// Handler groups the HTTP endpoints. Every method is a gin handler.
type Handler struct {
	Sessions       *services.SessionManager
	Profiles       *services.ProfileService
	Notifications  *services.NotificationService
	Log            *zap.Logger
	MaxUploadBytes int64
}

func NewHandler(sessions *services.SessionManager, profiles *services.ProfileService, notifications *services.NotificationService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Sessions:       sessions,
		Profiles:       profiles,
		Notifications:  notifications,
		Log:            log,
		MaxUploadBytes: defaultMaxUploadBytes,
	}
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindConflict:
		return http.StatusBadRequest
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"message": ...}. Internal causes are logged
// and never sent to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	if kind == services.KindInternal {
		h.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
	}
	c.JSON(statusFor(kind), gin.H{"message": services.MessageOf(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}

// bindJSON decodes an optional JSON body. An empty body leaves v untouched.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body.")
		return false
	}
	return true
}
