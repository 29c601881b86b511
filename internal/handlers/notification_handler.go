package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/medrec-api/internal/middleware"
	"github.com/harentsoaR/medrec-api/internal/models"
	"github.com/harentsoaR/medrec-api/internal/services"
)

type CreateNotificationRequest struct {
	RecipientID    string `json:"recipientId"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	ReferenceModel string `json:"referenceModel"`
	ReferenceID    string `json:"referenceId"`
}

func (h *Handler) caller(c *gin.Context) (primitive.ObjectID, models.Role, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Not authenticated"})
		return primitive.NilObjectID, "", false
	}
	id, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
		return primitive.NilObjectID, "", false
	}
	return id, claims.Role, true
}

func (h *Handler) ListNotifications(c *gin.Context) {
	me, _, ok := h.caller(c)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)

	items, err := h.Notifications.List(c.Request.Context(), me, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	me, _, ok := h.caller(c)
	if !ok {
		return
	}

	n, err := h.Notifications.MarkRead(c.Request.Context(), c.Param("id"), me)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": n})
}

func (h *Handler) CreateNotification(c *gin.Context) {
	me, role, ok := h.caller(c)
	if !ok {
		return
	}
	var req CreateNotificationRequest
	if !bindJSON(c, &req) {
		return
	}

	n, err := h.Notifications.Create(c.Request.Context(), services.CreateNotificationInput{
		RecipientID:    req.RecipientID,
		SenderID:       me.Hex(),
		SenderRole:     role,
		Type:           req.Type,
		Title:          req.Title,
		Message:        req.Message,
		ReferenceModel: req.ReferenceModel,
		ReferenceID:    req.ReferenceID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"notification": n})
}
