package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/medrec-api/internal/middleware"
	"github.com/harentsoaR/medrec-api/internal/services"
	"github.com/harentsoaR/medrec-api/internal/utils"
)

// APIPrefix is where the versioned API is mounted.
const APIPrefix = "/api/v1"

// ImagesPath is the public path profile image URLs point at.
const ImagesPath = APIPrefix + "/users/images"

type RouterDeps struct {
	Codec       *utils.TokenCodec
	Users       middleware.UserFinder
	AuthLimiter *middleware.IPRateLimiter
	// Realtime and Metrics are optional.
	Realtime gin.HandlerFunc
	Metrics  http.Handler
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r *gin.Engine, d RouterDeps) {
	verify := middleware.VerifyToken(d.Codec, h.Log)
	hydrate := middleware.HydrateUser(d.Users, h.Log)
	limit := middleware.RateLimit(d.AuthLimiter)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	if d.Realtime != nil {
		r.GET("/ws", d.Realtime)
	}

	api := r.Group(APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", limit, h.RegisterUser)
		auth.POST("/login", limit, h.Login)
		auth.POST("/refresh", h.RefreshToken)
		auth.POST("/revoke", verify, h.RevokeToken)
	}

	users := api.Group("/users")
	{
		users.GET("/profile", verify, hydrate, h.GetProfile)
		users.PUT("/editProfile", verify, hydrate, h.EditProfile)
		users.GET("/images/:id", h.GetProfileImage)
	}

	notifications := api.Group("/notifications", verify)
	{
		notifications.GET("", h.ListNotifications)
		notifications.PATCH("/:id/read", h.MarkNotificationRead)
		notifications.POST("", middleware.Authorize(services.NotificationSenderRoles...), h.CreateNotification)
	}
}
