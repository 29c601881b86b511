package store

import "errors"

var (
	// ErrNotFound indicates that the requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail indicates that another user already owns the email.
	ErrDuplicateEmail = errors.New("email already in use")
)

const (
	UsersCollection         = "users"
	RefreshTokensCollection = "refreshtokens"
	NotificationsCollection = "notifications"
	ImagesBucket            = "profileImages"
)
