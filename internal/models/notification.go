package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationMessage     NotificationType = "message"
	NotificationLabResult   NotificationType = "lab_result"
	NotificationAppointment NotificationType = "appointment"
	NotificationSystem      NotificationType = "system"
	NotificationAlert       NotificationType = "alert"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMessage, NotificationLabResult, NotificationAppointment, NotificationSystem, NotificationAlert:
		return true
	}
	return false
}

type Notification struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Recipient      primitive.ObjectID  `bson:"recipient" json:"recipient"`
	Sender         *primitive.ObjectID `bson:"sender,omitempty" json:"sender,omitempty"`
	Type           NotificationType    `bson:"type" json:"type"`
	Title          string              `bson:"title" json:"title"`
	Message        string              `bson:"message" json:"message"`
	ReferenceModel string              `bson:"referenceModel,omitempty" json:"referenceModel,omitempty"`
	ReferenceID    *primitive.ObjectID `bson:"referenceId,omitempty" json:"referenceId,omitempty"`
	Read           bool                `bson:"read" json:"read"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt" json:"updatedAt"`
}
