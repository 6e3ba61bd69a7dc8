// Package memstore is an in-process store.Store used by tests and by
// DB_DRIVER=memory for local development. Data is lost on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"fintrack/models"
	"fintrack/pkg/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User
	accounts map[string]models.Account
	tokens   map[string]models.TokenRecord
	now      func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[string]models.User),
		accounts: make(map[string]models.Account),
		tokens:   make(map[string]models.TokenRecord),
		now:      time.Now,
	}
}

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error    { return nil }
func (s *Store) Close(context.Context) error   { return nil }

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return store.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = models.NewID()
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindByUsername(_ context.Context, username string) (models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Username == username })
}

func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Email == email })
}

func (s *Store) findUser(match func(models.User) bool) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (s *Store) UsernameOrEmailExists(_ context.Context, username, email string) (bool, error) {
	_, err := s.findUser(func(u models.User) bool { return u.Username == username || u.Email == email })
	return err == nil, nil
}

func (s *Store) UpdateProfile(_ context.Context, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	cur.FullName = u.FullName
	cur.PhoneNumber = u.PhoneNumber
	cur.Address = u.Address
	cur.DateOfBirth = u.DateOfBirth
	cur.UpdatedAt = s.now()
	s.users[u.ID] = cur
	return cur, nil
}

func (s *Store) UpdatePassword(_ context.Context, id string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	cur.PasswordHash = hash
	cur.UpdatedAt = s.now()
	s.users[id] = cur
	return nil
}

func (s *Store) CreateAccount(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = models.NewID()
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = *a
	return nil
}

func (s *Store) DefaultAccount(_ context.Context, userID string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []models.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			owned = append(owned, a)
		}
	}
	if len(owned) == 0 {
		return models.Account{}, store.ErrNotFound
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].IsDefault != owned[j].IsDefault {
			return owned[i].IsDefault
		}
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})
	return owned[0], nil
}

func (s *Store) CreateToken(_ context.Context, r *models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tokens {
		if existing.AccessTokenHash == r.AccessTokenHash || existing.RefreshTokenHash == r.RefreshTokenHash {
			return store.ErrDuplicate
		}
	}
	if r.ID == "" {
		r.ID = models.NewID()
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	s.tokens[r.ID] = *r
	return nil
}

func (s *Store) RotateToken(_ context.Context, rot store.Rotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.tokens[rot.SessionID]
	if !ok || r.RefreshTokenHash != rot.OldRefreshHash || r.UserID != rot.UserID || !r.Usable(rot.Now) {
		return store.ErrNotFound
	}
	r.AccessTokenHash = rot.NewAccessHash
	r.RefreshTokenHash = rot.NewRefreshHash
	r.ExpiresAt = rot.NewExpiresAt
	r.UpdatedAt = s.now()
	s.tokens[rot.SessionID] = r
	return nil
}

func (s *Store) RevokeSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.tokens[id]; ok {
		r.Revoked = true
		r.UpdatedAt = s.now()
		s.tokens[id] = r
	}
	return nil
}

func (s *Store) RevokeAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.tokens {
		if r.UserID == userID && !r.Revoked {
			r.Revoked = true
			r.UpdatedAt = s.now()
			s.tokens[id] = r
		}
	}
	return nil
}

// Tokens returns a snapshot of the session records owned by userID.
func (s *Store) Tokens(userID string) []models.TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TokenRecord
	for _, r := range s.tokens {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}
