package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCodec(t *testing.T, c *clock) *Codec {
	t.Helper()
	codec, err := NewCodec(Options{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     7 * 24 * time.Hour,
		RefreshTTL:    30 * 24 * time.Hour,
		Now:           c.now,
	})
	require.NoError(t, err)
	return codec
}

func TestNewCodec_RejectsBadOptions(t *testing.T) {
	base := Options{
		AccessSecret:  []byte("a"),
		RefreshSecret: []byte("b"),
		AccessTTL:     time.Hour,
		RefreshTTL:    time.Hour,
	}

	o := base
	o.AccessSecret = nil
	_, err := NewCodec(o)
	assert.Error(t, err)

	o = base
	o.RefreshSecret = []byte("a")
	_, err = NewCodec(o)
	assert.ErrorContains(t, err, "must differ")

	o = base
	o.RefreshTTL = 0
	_, err = NewCodec(o)
	assert.Error(t, err)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, c)

	tok, err := codec.IssueAccessToken("u1", "s1")
	require.NoError(t, err)

	claims, err := codec.VerifyAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.ExpiresAt.Time.Equal(c.t.Add(7*24*time.Hour)))
}

func TestRefreshToken_ReportsExpiry(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, c)

	tok, exp, err := codec.IssueRefreshToken("u1", "s1")
	require.NoError(t, err)
	assert.True(t, exp.Equal(c.t.Add(30*24*time.Hour)))

	claims, err := codec.VerifyRefreshToken(tok)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Kind)
	assert.Equal(t, "s1", claims.SessionID)
}

func TestVerify_Expired(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, c)

	access, err := codec.IssueAccessToken("u1", "s1")
	require.NoError(t, err)
	refresh, _, err := codec.IssueRefreshToken("u1", "s1")
	require.NoError(t, err)

	c.t = c.t.Add(8 * 24 * time.Hour)
	_, err = codec.VerifyAccessToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = codec.VerifyRefreshToken(refresh)
	require.NoError(t, err)

	c.t = c.t.Add(23 * 24 * time.Hour)
	_, err = codec.VerifyRefreshToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_KindsDoNotCross(t *testing.T) {
	codec := newTestCodec(t, &clock{t: time.Now()})

	access, err := codec.IssueAccessToken("u1", "s1")
	require.NoError(t, err)
	refresh, _, err := codec.IssueRefreshToken("u1", "s1")
	require.NoError(t, err)

	_, err = codec.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = codec.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	codec := newTestCodec(t, &clock{t: time.Now()})

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u1",
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("someone-else"))
	require.NoError(t, err)

	_, err = codec.VerifyAccessToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	codec := newTestCodec(t, &clock{t: time.Now()})

	claims := Claims{
		UserID: "u1",
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)
	_, err = codec.VerifyAccessToken(hs512)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = codec.VerifyAccessToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RequiresExpiry(t *testing.T) {
	codec := newTestCodec(t, &clock{t: time.Now()})

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1", Kind: KindAccess}).
		SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = codec.VerifyAccessToken(tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerify_Garbage(t *testing.T) {
	codec := newTestCodec(t, &clock{t: time.Now()})

	for _, in := range []string{"", "abc", "a.b.c"} {
		_, err := codec.VerifyAccessToken(in)
		assert.ErrorIs(t, err, ErrInvalidToken, "input %q", in)
	}
}

func TestIssue_SameSecondTokensDiffer(t *testing.T) {
	codec := newTestCodec(t, &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)})

	a, _, err := codec.IssueRefreshToken("u1", "s1")
	require.NoError(t, err)
	b, _, err := codec.IssueRefreshToken("u1", "s1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestIssue_EmptyUser(t *testing.T) {
	codec := newTestCodec(t, &clock{t: time.Now()})
	_, err := codec.IssueAccessToken("", "s1")
	assert.Error(t, err)
}

func TestSessionID(t *testing.T) {
	codec := newTestCodec(t, &clock{t: time.Now()})

	access, err := codec.IssueAccessToken("u1", "s1")
	require.NoError(t, err)
	claims, err := codec.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.SessionID)

	// registration hands out an access token without a session
	access, err = codec.IssueAccessToken("u1", "")
	require.NoError(t, err)
	claims, err = codec.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Empty(t, claims.SessionID)

	_, _, err = codec.IssueRefreshToken("u1", "")
	assert.Error(t, err)
}

func TestVerifyRefresh_RequiresSessionID(t *testing.T) {
	codec := newTestCodec(t, &clock{t: time.Now()})

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u1",
		Kind:   KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("refresh-secret"))
	require.NoError(t, err)

	_, err = codec.VerifyRefreshToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
