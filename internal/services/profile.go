package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/harentsoaR/medrec-api/internal/models"
	"github.com/harentsoaR/medrec-api/internal/store"
)

const (
	msgProfileRequired = "First name, last name, email, and phone are required."
	msgInvalidEmail    = "Invalid email format."
	msgImagesOnly      = "Only image files are allowed."
	msgImageNotFound   = "Image not found."
)

// ImageUpload is a profile picture as received from the client.
type ImageUpload struct {
	Filename string
	Data     []byte
}

type EditProfileInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	// Address replaces the stored list when non-nil.
	Address []models.Address
	Image   *ImageUpload
}

// ProfileUpdate is the result of EditProfile. RefreshToken is empty when the
// identity claims did not change and the presented access token stays valid.
type ProfileUpdate struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

type ProfileDeps struct {
	Users    UserStore
	Images   ImageStore
	Sessions *SessionManager
	Events   EventPublisher
	Logger   *zap.Logger
}

type ProfileService struct {
	users    UserStore
	images   ImageStore
	sessions *SessionManager
	events   EventPublisher
	log      *zap.Logger
	validate *validator.Validate
}

func NewProfileService(d ProfileDeps) *ProfileService {
	s := &ProfileService{
		users:    d.Users,
		images:   d.Images,
		sessions: d.Sessions,
		events:   d.Events,
		log:      d.Logger,
		validate: validator.New(),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.events == nil {
		s.events = NewLogPublisher(s.log)
	}
	return s
}

// EditProfile updates the contact fields and picture of user. When the email
// or the name changes a new token pair is issued, since both are carried in
// the access token; otherwise presentedAccess is handed back unchanged.
func (s *ProfileService) EditProfile(ctx context.Context, user *models.User, presentedAccess string, in EditProfileInput) (*ProfileUpdate, error) {
	l := s.log.With(zap.String("flow", "edit_profile"), zap.String("user_id", user.ID.Hex()))

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = models.NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.Phone == "" {
		return nil, validationError(msgProfileRequired)
	}
	if err := s.validate.Var(in.Email, "email"); err != nil {
		return nil, validationError(msgInvalidEmail)
	}

	emailChanged := in.Email != user.Email
	if emailChanged {
		exists, err := s.users.EmailExists(ctx, in.Email)
		if err != nil {
			l.Error("edit profile: email lookup failed", zap.Error(err))
			return nil, internalError(msgServerError, err)
		}
		if exists {
			return nil, conflictError(msgEmailInUse)
		}
	}

	var contentType string
	if in.Image != nil {
		mt := mimetype.Detect(in.Image.Data)
		if !strings.HasPrefix(mt.String(), "image/") {
			l.Warn("edit profile: rejected upload", zap.String("mime", mt.String()))
			return nil, validationError(msgImagesOnly)
		}
		contentType = mt.String()
	}

	updated := *user
	updated.FirstName, updated.LastName = in.FirstName, in.LastName
	updated.Email, updated.Phone = in.Email, in.Phone
	if in.Address != nil {
		updated.Address = models.WithAddressIDs(in.Address)
	}

	oldImage := user.UserImage
	if in.Image != nil {
		img, err := s.images.Save(ctx, in.Image.Filename, contentType, in.Image.Data)
		if err != nil {
			l.Error("edit profile: store image", zap.Error(err))
			return nil, internalError(msgServerError, err)
		}
		updated.UserImage = img
	}

	if err := s.users.UpdateProfile(ctx, &updated); err != nil {
		if in.Image != nil {
			s.dropImage(ctx, l, updated.UserImage)
		}
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return nil, conflictError(msgEmailInUse)
		case errors.Is(err, store.ErrNotFound):
			return nil, notFoundError(msgUserNotFound)
		}
		l.Error("edit profile: update user", zap.Error(err))
		return nil, internalError(msgServerError, err)
	}
	if in.Image != nil && oldImage != nil {
		s.dropImage(ctx, l, oldImage)
	}

	res := &ProfileUpdate{User: &updated, AccessToken: presentedAccess}
	if emailChanged || in.FirstName != user.FirstName || in.LastName != user.LastName {
		tokens, err := s.sessions.IssueTokens(ctx, &updated)
		if err != nil {
			l.Error("edit profile: reissue tokens", zap.Error(err))
			return nil, internalError(msgServerError, err)
		}
		res.AccessToken, res.RefreshToken = tokens.AccessToken, tokens.RefreshToken
	}

	l.Info("edit profile: updated", zap.Bool("tokens_reissued", res.RefreshToken != ""))
	if err := s.events.Publish(ctx, AuthEvent{Type: EventProfileUpdated, UserID: updated.ID.Hex(), Role: string(updated.Role), At: updated.UpdatedAt}); err != nil {
		l.Warn("audit: publish failed", zap.Error(err))
	}
	return res, nil
}

// OpenImage streams a stored profile picture.
func (s *ProfileService) OpenImage(ctx context.Context, publicID string) (io.ReadCloser, string, error) {
	rc, contentType, err := s.images.Open(ctx, publicID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, "", notFoundError(msgImageNotFound)
	case err != nil:
		s.log.Error("open image", zap.String("public_id", publicID), zap.Error(err))
		return nil, "", internalError(msgServerError, err)
	}
	return rc, contentType, nil
}

func (s *ProfileService) dropImage(ctx context.Context, l *zap.Logger, img *models.UserImage) {
	if img == nil || img.PublicID == "" {
		return
	}
	if err := s.images.Delete(ctx, img.PublicID); err != nil && !errors.Is(err, store.ErrNotFound) {
		l.Warn("edit profile: delete image", zap.String("public_id", img.PublicID), zap.Error(err))
	}
}
