package store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/medrec-api/internal/models"
)

// The in-memory stores are a dev-only fallback when MONGO_URI is not
// configured, and the backing store for tests.

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[primitive.ObjectID]models.User)}
}

func (s *MemoryUserStore) Create(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = models.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = models.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryUserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Password = ""
	return &u, nil
}

func (s *MemoryUserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := s.FindByEmail(ctx, email)
	switch err {
	case nil:
		return true, nil
	case ErrNotFound:
		return false, nil
	}
	return false, err
}

func (s *MemoryUserStore) UpdateLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLogin = &at
	u.UpdatedAt = at
	s.users[id] = u
	return nil
}

func (s *MemoryUserStore) UpdateProfile(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	u.Email = models.NormalizeEmail(u.Email)
	for id, other := range s.users {
		if id != u.ID && other.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	cur.FirstName, cur.LastName = u.FirstName, u.LastName
	cur.Email, cur.Phone = u.Email, u.Phone
	cur.Address = u.Address
	cur.UserImage = u.UserImage
	cur.UpdatedAt = time.Now().UTC()
	u.UpdatedAt = cur.UpdatedAt
	s.users[u.ID] = cur
	return nil
}

// Delete removes a user. Used to simulate accounts removed after token issuance.
func (s *MemoryUserStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// Count returns the number of stored users.
func (s *MemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

type MemoryRefreshTokenLedger struct {
	mu     sync.Mutex
	tokens []models.RefreshToken
	seq    int64
}

func NewMemoryRefreshTokenLedger() *MemoryRefreshTokenLedger {
	return &MemoryRefreshTokenLedger{}
}

func (l *MemoryRefreshTokenLedger) Store(ctx context.Context, t *models.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	// createdAt ordering must be strict for FindByUser, even within one clock tick.
	l.seq++
	now := time.Now().UTC().Add(time.Duration(l.seq))
	t.CreatedAt, t.UpdatedAt = now, now
	l.tokens = append(l.tokens, *t)
	return nil
}

func (l *MemoryRefreshTokenLedger) FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.RefreshToken, error) {
	tokens, err := l.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrNotFound
	}
	return &tokens[0], nil
}

func (l *MemoryRefreshTokenLedger) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.RefreshToken
	for _, t := range l.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (l *MemoryRefreshTokenLedger) DeleteOne(ctx context.Context, id primitive.ObjectID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remove(func(t models.RefreshToken) bool { return t.ID == id }), nil
}

func (l *MemoryRefreshTokenLedger) DeleteByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remove(func(t models.RefreshToken) bool { return t.UserID == userID }), nil
}

func (l *MemoryRefreshTokenLedger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remove(func(t models.RefreshToken) bool { return t.ExpiresAt.Before(now) }), nil
}

// All returns a snapshot of every stored record.
func (l *MemoryRefreshTokenLedger) All() []models.RefreshToken {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.RefreshToken(nil), l.tokens...)
}

// Put stores t verbatim, keeping its timestamps.
func (l *MemoryRefreshTokenLedger) Put(t models.RefreshToken) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	l.tokens = append(l.tokens, t)
}

func (l *MemoryRefreshTokenLedger) remove(match func(models.RefreshToken) bool) int64 {
	kept := l.tokens[:0]
	var n int64
	for _, t := range l.tokens {
		if match(t) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	l.tokens = kept
	return n
}

type MemoryNotificationStore struct {
	mu    sync.Mutex
	items []models.Notification
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{}
}

func (s *MemoryNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	n.CreatedAt, n.UpdatedAt = now, now
	s.items = append(s.items, *n)
	return nil
}

func (s *MemoryNotificationStore) ListByRecipient(ctx context.Context, recipient primitive.ObjectID, limit int64) ([]models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Notification, 0)
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Recipient == recipient {
			out = append(out, s.items[i])
			if limit > 0 && int64(len(out)) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryNotificationStore) MarkRead(ctx context.Context, id, recipient primitive.ObjectID) (*models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id && s.items[i].Recipient == recipient {
			s.items[i].Read = true
			s.items[i].UpdatedAt = time.Now().UTC()
			n := s.items[i]
			return &n, nil
		}
	}
	return nil, ErrNotFound
}

type memoryImage struct {
	contentType string
	data        []byte
}

type MemoryImageStore struct {
	mu      sync.RWMutex
	baseURL string
	images  map[string]memoryImage
}

func NewMemoryImageStore(baseURL string) *MemoryImageStore {
	return &MemoryImageStore{baseURL: baseURL, images: make(map[string]memoryImage)}
}

func (s *MemoryImageStore) Save(ctx context.Context, _ string, contentType string, data []byte) (*models.UserImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := primitive.NewObjectID().Hex()
	s.images[id] = memoryImage{contentType: contentType, data: append([]byte(nil), data...)}
	return &models.UserImage{URL: s.baseURL + "/" + id, PublicID: id}, nil
}

func (s *MemoryImageStore) Delete(ctx context.Context, publicID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[publicID]; !ok {
		return ErrNotFound
	}
	delete(s.images, publicID)
	return nil
}

func (s *MemoryImageStore) Open(ctx context.Context, publicID string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[publicID]
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(img.data)), img.contentType, nil
}

// Len returns the number of stored images.
func (s *MemoryImageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
