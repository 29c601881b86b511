package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/medrec-api/internal/metrics"
	"github.com/harentsoaR/medrec-api/internal/models"
	"github.com/harentsoaR/medrec-api/internal/store"
	"github.com/harentsoaR/medrec-api/internal/utils"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit
)

// Caller-facing messages.
const (
	msgRegisterRequired    = "First name, last name, email, password, and confirm password are required."
	msgPasswordMismatch    = "Password and Confirm Password must match."
	msgPasswordTooShort    = "Password must be at least 6 characters."
	msgPasswordTooLong     = "Password must be at most 72 characters."
	msgEmailInUse          = "Email already in use."
	msgLoginRequired       = "Please provide email and password."
	msgInvalidCredentials  = "Invalid email or password."
	msgRefreshRequired     = "Refresh token is required"
	msgRefreshExpired      = "Refresh token has expired"
	msgRefreshBadSignature = "Invalid refresh token signature or format"
	msgRefreshRevoked      = "Invalid or revoked refresh token"
	msgRefreshMismatch     = "Invalid refresh token"
	msgUserNotFound        = "User not found"
	msgRevokeFailed        = "Failed to revoke token"
	msgServerError         = "Server error."

	msgInvalidRole      = "Invalid role."
	msgDoctorFields     = "Doctors must provide specialization and license number."
	msgPatientFields    = "Patients must provide gender and date of birth."
	msgInvalidGender    = "Gender must be male, female, or other."
	msgInvalidBirthDate = "Date of birth must be a valid date (YYYY-MM-DD)."
)

// TokenPair is what every successful login, registration and refresh returns.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Session is an authenticated user plus its freshly issued tokens. User
// never carries the password hash.
type Session struct {
	User   *models.User
	Tokens TokenPair
}

type RegisterInput struct {
	FirstName           string
	LastName            string
	Email               string
	Password            string
	CPassword           string
	Phone               string
	Address             []models.Address
	Role                string
	Specialization      string
	LicenseNumber       string
	HospitalAffiliation string
	DateOfBirth         string
	Gender              string
}

type SessionDeps struct {
	Users      UserStore
	Ledger     RefreshTokenLedger
	Codec      *utils.TokenCodec
	Events     EventPublisher
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	BcryptCost int
	Now        func() time.Time
}

// SessionManager runs the register, login, refresh and revoke flows. Each
// user holds at most one refresh token: issuing a pair drops older rows.
// Concurrent logins can still race and leave an extra row behind; refresh
// only ever checks the newest one.
type SessionManager struct {
	users      UserStore
	ledger     RefreshTokenLedger
	codec      *utils.TokenCodec
	events     EventPublisher
	log        *zap.Logger
	metrics    *metrics.Metrics
	bcryptCost int
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewSessionManager(d SessionDeps) *SessionManager {
	m := &SessionManager{
		users:      d.Users,
		ledger:     d.Ledger,
		codec:      d.Codec,
		events:     d.Events,
		log:        d.Logger,
		metrics:    d.Metrics,
		bcryptCost: d.BcryptCost,
		now:        d.Now,
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.events == nil {
		m.events = NewLogPublisher(m.log)
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Register validates the payload, stores the user and issues the first token pair.
func (m *SessionManager) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	l := m.log.With(zap.String("flow", "register"), zap.String("email", in.Email))

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = models.NormalizeEmail(in.Email)
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.Password == "" || in.CPassword == "" {
		l.Warn("register: missing required base fields")
		return nil, m.fail("register", validationError(msgRegisterRequired))
	}
	if in.Password != in.CPassword {
		l.Warn("register: passwords do not match")
		return nil, m.fail("register", validationError(msgPasswordMismatch))
	}
	switch {
	case len(in.Password) < minPasswordLen:
		return nil, m.fail("register", validationError(msgPasswordTooShort))
	case len(in.Password) > maxPasswordLen:
		return nil, m.fail("register", validationError(msgPasswordTooLong))
	}

	profile, err := models.NewRoleProfile(models.ProfileInput{
		Role:                in.Role,
		Specialization:      in.Specialization,
		LicenseNumber:       in.LicenseNumber,
		HospitalAffiliation: in.HospitalAffiliation,
		Gender:              in.Gender,
		DateOfBirth:         in.DateOfBirth,
	})
	if err != nil {
		l.Warn("register: role validation failed", zap.String("role", in.Role), zap.Error(err))
		return nil, m.fail("register", validationError(roleProfileMessage(err)))
	}

	exists, err := m.users.EmailExists(ctx, in.Email)
	if err != nil {
		l.Error("register: email lookup failed", zap.Error(err))
		return nil, m.fail("register", internalError(msgServerError, err))
	}
	if exists {
		l.Warn("register: email already in use")
		return nil, m.fail("register", conflictError(msgEmailInUse))
	}

	hash, err := utils.HashPassword(in.Password, m.bcryptCost)
	if err != nil {
		l.Error("register: hash password", zap.Error(err))
		return nil, m.fail("register", internalError(msgServerError, err))
	}

	user := &models.User{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  hash,
		Phone:     strings.TrimSpace(in.Phone),
		Address:   models.WithAddressIDs(in.Address),
	}
	user.ApplyProfile(profile)

	// Tokens are signed before the insert so a signing failure leaves no user behind.
	user.ID = primitive.NewObjectID()
	tokens, rec, err := m.signPair(user)
	if err != nil {
		l.Error("register: sign tokens", zap.Error(err))
		return nil, m.fail("register", internalError(msgServerError, err))
	}

	if err := m.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			l.Warn("register: email taken during insert")
			return nil, m.fail("register", conflictError(msgEmailInUse))
		}
		l.Error("register: insert user", zap.Error(err))
		return nil, m.fail("register", internalError(msgServerError, err))
	}
	user.Password = ""

	if err := m.recordRefresh(ctx, rec); err != nil {
		l.Error("register: store refresh token", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		if derr := m.users.Delete(ctx, user.ID); derr != nil {
			l.Error("register: roll back user", zap.String("user_id", user.ID.Hex()), zap.Error(derr))
		}
		return nil, m.fail("register", internalError(msgServerError, err))
	}

	l.Info("register: user created", zap.String("user_id", user.ID.Hex()), zap.String("role", string(user.Role)))
	m.metrics.AuthOutcome("register", "ok")
	m.publish(ctx, EventUserRegistered, user)
	return &Session{User: user, Tokens: tokens}, nil
}

// Login checks credentials and issues a new pair. Unknown email and wrong
// password produce the same error.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*Session, error) {
	email = models.NormalizeEmail(email)
	l := m.log.With(zap.String("flow", "login"), zap.String("email", email))

	if email == "" || password == "" {
		l.Warn("login: missing email or password")
		return nil, m.fail("login", validationError(msgLoginRequired))
	}

	user, err := m.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Spend the same bcrypt time as a real comparison.
		utils.CheckPasswordHash(password, m.dummyPasswordHash())
		l.Warn("login: invalid credentials")
		m.publish(ctx, EventLoginFailed, nil)
		return nil, m.fail("login", unauthorizedError(msgInvalidCredentials))
	case err != nil:
		l.Error("login: user lookup failed", zap.Error(err))
		return nil, m.fail("login", internalError(msgServerError, err))
	}

	if !utils.CheckPasswordHash(password, user.Password) {
		l.Warn("login: invalid credentials")
		m.publish(ctx, EventLoginFailed, user)
		return nil, m.fail("login", unauthorizedError(msgInvalidCredentials))
	}
	user.Password = ""

	now := m.now().UTC()
	if err := m.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		l.Error("login: update last login", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		return nil, m.fail("login", internalError(msgServerError, err))
	}
	user.LastLogin = &now

	tokens, err := m.IssueTokens(ctx, user)
	if err != nil {
		l.Error("login: issue tokens", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		return nil, m.fail("login", internalError(msgServerError, err))
	}

	l.Info("login: success", zap.String("user_id", user.ID.Hex()), zap.String("role", string(user.Role)))
	m.metrics.AuthOutcome("login", "ok")
	m.publish(ctx, EventUserLoggedIn, user)
	return &Session{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// single use: its ledger row is deleted whether it succeeds or not.
func (m *SessionManager) Refresh(ctx context.Context, raw string) (*Session, error) {
	l := m.log.With(zap.String("flow", "refresh"))

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, m.fail("refresh", validationError(msgRefreshRequired))
	}

	claims, err := m.codec.VerifyRefreshToken(raw)
	if err != nil {
		l.Warn("refresh: token verification failed", zap.Error(err))
		return nil, m.fail("refresh", m.refreshVerifyError(err))
	}
	userID, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		l.Warn("refresh: malformed subject", zap.String("sub", claims.Subject))
		return nil, m.fail("refresh", forbiddenError(msgRefreshBadSignature))
	}
	l = l.With(zap.String("user_id", claims.Subject))

	rec, err := m.ledger.FindByUser(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		l.Warn("refresh: no ledger record")
		return nil, m.fail("refresh", forbiddenError(msgRefreshRevoked))
	case err != nil:
		l.Error("refresh: ledger lookup failed", zap.Error(err))
		return nil, m.fail("refresh", internalError(msgServerError, err))
	}

	if !m.codec.CompareRefreshToken(raw, rec.TokenHash) {
		l.Warn("refresh: presented token does not match stored hash")
		m.dropRecord(ctx, l, rec)
		m.publish(ctx, EventTokenReuse, &models.User{ID: userID, Role: claims.Role})
		return nil, m.fail("refresh", forbiddenError(msgRefreshMismatch))
	}

	now := m.now()
	if rec.Expired(now) {
		l.Warn("refresh: ledger record expired")
		m.dropRecord(ctx, l, rec)
		return nil, m.fail("refresh", forbiddenError(msgRefreshExpired))
	}

	user, err := m.users.FindByID(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		l.Warn("refresh: user no longer exists")
		m.dropRecord(ctx, l, rec)
		return nil, m.fail("refresh", notFoundError(msgUserNotFound))
	case err != nil:
		l.Error("refresh: user lookup failed", zap.Error(err))
		return nil, m.fail("refresh", internalError(msgServerError, err))
	}

	n, err := m.ledger.DeleteOne(ctx, rec.ID)
	if err != nil {
		l.Error("refresh: rotate out old record", zap.Error(err))
		return nil, m.fail("refresh", internalError(msgServerError, err))
	}
	if n == 0 {
		// A concurrent refresh with the same token rotated it first.
		l.Warn("refresh: record already rotated")
		return nil, m.fail("refresh", forbiddenError(msgRefreshRevoked))
	}

	tokens, err := m.IssueTokens(ctx, user)
	if err != nil {
		l.Error("refresh: issue tokens", zap.Error(err))
		return nil, m.fail("refresh", internalError(msgServerError, err))
	}

	if n, err := m.ledger.DeleteExpired(ctx, now); err != nil {
		l.Warn("refresh: expired token sweep failed", zap.Error(err))
	} else {
		m.metrics.TokensSwept(n)
	}

	l.Info("refresh: rotated")
	m.metrics.AuthOutcome("refresh", "ok")
	m.publish(ctx, EventSessionRefreshed, user)
	return &Session{User: user, Tokens: tokens}, nil
}

// Revoke deletes the caller's refresh token. subject is the user id from the
// verified access token. When raw is empty every record of the user goes.
func (m *SessionManager) Revoke(ctx context.Context, subject, raw string) error {
	l := m.log.With(zap.String("flow", "revoke"), zap.String("user_id", subject))

	userID, err := primitive.ObjectIDFromHex(subject)
	if err != nil {
		return m.fail("revoke", unauthorizedError("Invalid token"))
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		n, err := m.ledger.DeleteByUser(ctx, userID)
		if err != nil {
			l.Error("revoke: delete user records", zap.Error(err))
			return m.fail("revoke", internalError(msgRevokeFailed, err))
		}
		l.Info("revoke: all records removed", zap.Int64("count", n))
		m.metrics.AuthOutcome("revoke", "ok")
		m.publish(ctx, EventSessionRevoked, &models.User{ID: userID})
		return nil
	}

	claims, err := m.codec.VerifyRefreshToken(raw)
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		// Refresh already rejects it; the sweep removes the row.
		l.Info("revoke: token already expired")
		return nil
	case errors.Is(err, utils.ErrSecretNotConfigured):
		l.Error("revoke: refresh secret missing", zap.Error(err))
		return m.fail("revoke", internalError(msgRevokeFailed, err))
	case err != nil:
		l.Warn("revoke: refresh token verification failed", zap.Error(err))
		return m.fail("revoke", unauthorizedError(msgRefreshMismatch))
	}
	if claims.Subject != subject {
		l.Warn("revoke: refresh token belongs to another user")
		return m.fail("revoke", unauthorizedError(msgRefreshMismatch))
	}

	records, err := m.ledger.ListByUser(ctx, userID)
	if err != nil {
		l.Error("revoke: ledger lookup failed", zap.Error(err))
		return m.fail("revoke", internalError(msgRevokeFailed, err))
	}
	removed := 0
	for _, rec := range records {
		if !m.codec.CompareRefreshToken(raw, rec.TokenHash) {
			continue
		}
		n, err := m.ledger.DeleteOne(ctx, rec.ID)
		if err != nil {
			l.Error("revoke: delete record", zap.Error(err))
			return m.fail("revoke", internalError(msgRevokeFailed, err))
		}
		removed += int(n)
	}

	l.Info("revoke: done", zap.Int("removed", removed))
	m.metrics.AuthOutcome("revoke", "ok")
	m.publish(ctx, EventSessionRevoked, &models.User{ID: userID, Role: claims.Role})
	return nil
}

// IssueTokens signs a new pair for user and records the refresh hash,
// replacing any previous record of the user.
func (m *SessionManager) IssueTokens(ctx context.Context, user *models.User) (TokenPair, error) {
	pair, rec, err := m.signPair(user)
	if err != nil {
		return TokenPair{}, err
	}
	if err := m.recordRefresh(ctx, rec); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// signPair signs both tokens without touching storage.
func (m *SessionManager) signPair(user *models.User) (TokenPair, *models.RefreshToken, error) {
	refresh, err := m.codec.SignRefreshToken(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	access, err := m.codec.SignAccessToken(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	rec := &models.RefreshToken{
		TokenHash: refresh.Hash,
		UserID:    user.ID,
		ExpiresAt: refresh.ExpiresAt,
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh.Raw}, rec, nil
}

// recordRefresh replaces the user's ledger rows with rec.
func (m *SessionManager) recordRefresh(ctx context.Context, rec *models.RefreshToken) error {
	if _, err := m.ledger.DeleteByUser(ctx, rec.UserID); err != nil {
		return err
	}
	return m.ledger.Store(ctx, rec)
}

// SweepExpired removes expired ledger rows. It is cleanup only; the refresh
// flow checks expiry on its own.
func (m *SessionManager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.ledger.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	m.metrics.TokensSwept(n)
	return n, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := m.SweepExpired(ctx)
			if err != nil {
				m.log.Warn("sweeper: delete expired refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				m.log.Info("sweeper: removed expired refresh tokens", zap.Int64("count", n))
			}
		}
	}
}

func (m *SessionManager) refreshVerifyError(err error) error {
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		return forbiddenError(msgRefreshExpired)
	case errors.Is(err, utils.ErrSecretNotConfigured):
		return internalError(msgServerError, err)
	}
	return forbiddenError(msgRefreshBadSignature)
}

func (m *SessionManager) dropRecord(ctx context.Context, l *zap.Logger, rec *models.RefreshToken) {
	if _, err := m.ledger.DeleteOne(ctx, rec.ID); err != nil {
		l.Error("refresh: delete rejected record", zap.Error(err))
	}
}

func roleProfileMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrDoctorFields):
		return msgDoctorFields
	case errors.Is(err, models.ErrPatientFields):
		return msgPatientFields
	case errors.Is(err, models.ErrInvalidGender):
		return msgInvalidGender
	case errors.Is(err, models.ErrInvalidBirthDate):
		return msgInvalidBirthDate
	}
	return msgInvalidRole
}

func (m *SessionManager) dummyPasswordHash() string {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = utils.HashPassword("not-a-real-password", m.bcryptCost)
	})
	return m.dummyHash
}

func (m *SessionManager) fail(flow string, err error) error {
	m.metrics.AuthOutcome(flow, KindOf(err).String())
	return err
}

func (m *SessionManager) publish(ctx context.Context, typ string, user *models.User) {
	ev := AuthEvent{Type: typ, At: m.now().UTC()}
	if user != nil {
		ev.UserID = user.ID.Hex()
		ev.Role = string(user.Role)
	}
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.Warn("audit: publish failed", zap.String("type", typ), zap.Error(err))
	}
}
