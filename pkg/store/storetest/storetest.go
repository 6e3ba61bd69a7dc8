// Package storetest holds the behaviour every store.Store backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"fintrack/models"
	"fintrack/pkg/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises st. The store may already hold data; every case creates
// its own users.
func Run(t *testing.T, st store.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, st) })
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, st) })
	t.Run("Rotation", func(t *testing.T) { testRotation(t, st) })
	t.Run("ConcurrentRotation", func(t *testing.T) { testConcurrentRotation(t, st) })
	t.Run("Revocation", func(t *testing.T) { testRevocation(t, st) })
}

func newUser(t *testing.T, st store.Store) models.User {
	t.Helper()
	suffix := uuid.NewString()[:8]
	u := models.User{
		Username:     "user-" + suffix,
		Email:        "user-" + suffix + "@example.com",
		PasswordHash: []byte("hash"),
		FullName:     "User " + suffix,
	}
	require.NoError(t, st.CreateUser(context.Background(), &u))
	require.NotEmpty(t, u.ID)
	return u
}

func newSession(t *testing.T, st store.Store, userID string, expires time.Time) models.TokenRecord {
	t.Helper()
	r := models.TokenRecord{
		ID:               models.NewID(),
		UserID:           userID,
		AccessTokenHash:  "a-" + uuid.NewString(),
		RefreshTokenHash: "r-" + uuid.NewString(),
		ExpiresAt:        expires,
	}
	require.NoError(t, st.CreateToken(context.Background(), &r))
	return r
}

func testUsers(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := newUser(t, st)

	got, err := st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Username, got.Username)
	assert.Equal(t, []byte("hash"), got.PasswordHash)

	got, err = st.FindByUsername(ctx, u.Username)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = st.FindByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = st.GetUser(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.FindByUsername(ctx, "nobody-"+uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)

	exists, err := st.UsernameOrEmailExists(ctx, u.Username, "free@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = st.UsernameOrEmailExists(ctx, "free-"+uuid.NewString(), u.Email)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = st.UsernameOrEmailExists(ctx, "free-"+uuid.NewString(), "free-"+uuid.NewString()+"@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	dup := models.User{Username: u.Username, Email: "other-" + uuid.NewString() + "@example.com", PasswordHash: []byte("x"), FullName: "Dup"}
	assert.ErrorIs(t, st.CreateUser(ctx, &dup), store.ErrDuplicate)
	dup = models.User{Username: "other-" + uuid.NewString()[:8], Email: u.Email, PasswordHash: []byte("x"), FullName: "Dup"}
	assert.ErrorIs(t, st.CreateUser(ctx, &dup), store.ErrDuplicate)

	dob := time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC)
	updated, err := st.UpdateProfile(ctx, models.User{ID: u.ID, FullName: "Renamed", DateOfBirth: &dob, PhoneNumber: "123", Address: "Somewhere"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.FullName)
	assert.Equal(t, u.Username, updated.Username)
	require.NotNil(t, updated.DateOfBirth)
	assert.True(t, updated.DateOfBirth.Equal(dob))

	_, err = st.UpdateProfile(ctx, models.User{ID: uuid.NewString(), FullName: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.UpdatePassword(ctx, u.ID, []byte("new-hash")))
	got, err = st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-hash"), got.PasswordHash)
	assert.ErrorIs(t, st.UpdatePassword(ctx, uuid.NewString(), []byte("x")), store.ErrNotFound)
}

func testAccounts(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := newUser(t, st)

	_, err := st.DefaultAccount(ctx, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	savings := models.Account{UserID: u.ID, Name: "Savings", Type: "bank", Currency: "IDR"}
	require.NoError(t, st.CreateAccount(ctx, &savings))
	primary := models.Account{UserID: u.ID, Name: "Main account", Type: "cash", Currency: "IDR", IsDefault: true}
	require.NoError(t, st.CreateAccount(ctx, &primary))

	got, err := st.DefaultAccount(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, primary.ID, got.ID)
	assert.Equal(t, int64(0), got.Balance)
}

// rotation builds a fresh Rotation for the current digests of r.
func rotation(r models.TokenRecord, now time.Time) store.Rotation {
	return store.Rotation{
		SessionID:      r.ID,
		UserID:         r.UserID,
		OldRefreshHash: r.RefreshTokenHash,
		NewAccessHash:  "a-" + uuid.NewString(),
		NewRefreshHash: "r-" + uuid.NewString(),
		NewExpiresAt:   now.Add(2 * time.Hour),
		Now:            now,
	}
}

func testRotation(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := newUser(t, st)
	now := time.Now().UTC()
	r := newSession(t, st, u.ID, now.Add(time.Hour))

	rot := rotation(r, now)
	require.NoError(t, st.RotateToken(ctx, rot))
	assert.ErrorIs(t, st.RotateToken(ctx, rot), store.ErrNotFound, "old digest is superseded")

	r.RefreshTokenHash = rot.NewRefreshHash

	wrongUser := rotation(r, now)
	wrongUser.UserID = uuid.NewString()
	assert.ErrorIs(t, st.RotateToken(ctx, wrongUser), store.ErrNotFound)

	other := newSession(t, st, u.ID, now.Add(time.Hour))
	wrongSession := rotation(r, now)
	wrongSession.SessionID = other.ID
	assert.ErrorIs(t, st.RotateToken(ctx, wrongSession), store.ErrNotFound)

	require.NoError(t, st.RotateToken(ctx, rotation(r, now)), "the current digest still rotates")

	expired := newSession(t, st, u.ID, now.Add(-time.Minute))
	assert.ErrorIs(t, st.RotateToken(ctx, rotation(expired, now)), store.ErrNotFound)

	dup := models.TokenRecord{UserID: u.ID, AccessTokenHash: other.AccessTokenHash, RefreshTokenHash: "r-" + uuid.NewString(), ExpiresAt: now.Add(time.Hour)}
	assert.ErrorIs(t, st.CreateToken(ctx, &dup), store.ErrDuplicate)
}

func testConcurrentRotation(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := newUser(t, st)
	now := time.Now().UTC()
	r := newSession(t, st, u.ID, now.Add(time.Hour))

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := st.RotateToken(ctx, rotation(r, now)); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func testRevocation(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := newUser(t, st)
	now := time.Now().UTC()
	revoked := newSession(t, st, u.ID, now.Add(time.Hour))
	rotated := newSession(t, st, u.ID, now.Add(time.Hour))
	other := newSession(t, st, u.ID, now.Add(time.Hour))

	require.NoError(t, st.RevokeSession(ctx, revoked.ID))
	require.NoError(t, st.RevokeSession(ctx, revoked.ID))
	require.NoError(t, st.RevokeSession(ctx, uuid.NewString()))
	assert.ErrorIs(t, st.RotateToken(ctx, rotation(revoked, now)), store.ErrNotFound)

	// revoking by ID still works after the digests changed
	rot := rotation(rotated, now)
	require.NoError(t, st.RotateToken(ctx, rot))
	rotated.RefreshTokenHash = rot.NewRefreshHash
	require.NoError(t, st.RevokeSession(ctx, rotated.ID))
	assert.ErrorIs(t, st.RotateToken(ctx, rotation(rotated, now)), store.ErrNotFound)

	u2 := newUser(t, st)
	foreign := newSession(t, st, u2.ID, now.Add(time.Hour))
	require.NoError(t, st.RevokeAll(ctx, u.ID))
	assert.ErrorIs(t, st.RotateToken(ctx, rotation(other, now)), store.ErrNotFound)

	require.NoError(t, st.RotateToken(ctx, rotation(foreign, now)), "RevokeAll is scoped to one user")
}
