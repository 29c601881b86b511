package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/medrec-api/internal/models"
	"github.com/harentsoaR/medrec-api/internal/store"
)

// NotificationEvent is the realtime event carrying a new notification.
const NotificationEvent = "newNotification"

const defaultNotificationLimit = 50

const (
	msgNotificationRequired = "Recipient, title, and message are required."
	msgInvalidRecipient     = "Invalid recipient id."
	msgInvalidNotifType     = "Invalid notification type."
	msgInvalidNotifID       = "Invalid notification id."
	msgNotificationNotFound = "Notification not found."
	msgInsufficientRole     = "Forbidden: insufficient role"
)

// NotificationSenderRoles may create notifications addressed to other users.
var NotificationSenderRoles = []models.Role{models.RoleDoctor, models.RoleLabTechnician, models.RoleAdmin}

// CanSendNotifications reports whether role is one of NotificationSenderRoles.
func CanSendNotifications(role models.Role) bool {
	return slices.Contains(NotificationSenderRoles, role)
}

// Emitter pushes an event to every live connection of a user. It must not
// block; it reports whether at least one connection took the event.
type Emitter interface {
	Emit(userID, event string, data any) bool
}

type CreateNotificationInput struct {
	RecipientID    string
	SenderID       string
	SenderRole     models.Role
	Type           string
	Title          string
	Message        string
	ReferenceModel string
	ReferenceID    string
}

type NotificationService struct {
	store   NotificationStore
	emitter Emitter
	log     *zap.Logger
}

func NewNotificationService(s NotificationStore, emitter Emitter, log *zap.Logger) *NotificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{store: s, emitter: emitter, log: log}
}

// Create persists a notification and pushes it to the recipient if online.
// Only NotificationSenderRoles may call it, whatever the transport.
func (s *NotificationService) Create(ctx context.Context, in CreateNotificationInput) (*models.Notification, error) {
	if !CanSendNotifications(in.SenderRole) {
		s.log.Warn("notification: sender role rejected", zap.String("sender", in.SenderID), zap.String("role", string(in.SenderRole)))
		return nil, forbiddenError(msgInsufficientRole)
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if strings.TrimSpace(in.RecipientID) == "" || in.Title == "" || in.Message == "" {
		return nil, validationError(msgNotificationRequired)
	}
	recipient, err := primitive.ObjectIDFromHex(strings.TrimSpace(in.RecipientID))
	if err != nil {
		return nil, validationError(msgInvalidRecipient)
	}

	typ := models.NotificationType(strings.TrimSpace(in.Type))
	if typ == "" {
		typ = models.NotificationSystem
	}
	if !typ.Valid() {
		return nil, validationError(msgInvalidNotifType)
	}

	n := &models.Notification{
		Recipient:      recipient,
		Type:           typ,
		Title:          in.Title,
		Message:        in.Message,
		ReferenceModel: in.ReferenceModel,
	}
	if id, err := primitive.ObjectIDFromHex(in.SenderID); err == nil {
		n.Sender = &id
	}
	if id, err := primitive.ObjectIDFromHex(in.ReferenceID); err == nil {
		n.ReferenceID = &id
	}

	if err := s.store.Create(ctx, n); err != nil {
		s.log.Error("notification: persist", zap.String("recipient", in.RecipientID), zap.Error(err))
		return nil, internalError(msgServerError, err)
	}

	if s.emitter != nil {
		delivered := s.emitter.Emit(recipient.Hex(), NotificationEvent, n)
		s.log.Debug("notification: created", zap.String("recipient", recipient.Hex()), zap.Bool("delivered", delivered))
	}
	return n, nil
}

// List returns the newest notifications of recipient, newest first.
func (s *NotificationService) List(ctx context.Context, recipient primitive.ObjectID, limit int64) ([]models.Notification, error) {
	if limit <= 0 || limit > defaultNotificationLimit {
		limit = defaultNotificationLimit
	}
	items, err := s.store.ListByRecipient(ctx, recipient, limit)
	if err != nil {
		s.log.Error("notification: list", zap.String("recipient", recipient.Hex()), zap.Error(err))
		return nil, internalError(msgServerError, err)
	}
	return items, nil
}

// MarkRead flags one notification of recipient as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string, recipient primitive.ObjectID) (*models.Notification, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, validationError(msgInvalidNotifID)
	}
	n, err := s.store.MarkRead(ctx, oid, recipient)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, notFoundError(msgNotificationNotFound)
	case err != nil:
		s.log.Error("notification: mark read", zap.String("id", id), zap.Error(err))
		return nil, internalError(msgServerError, err)
	}
	return n, nil
}
