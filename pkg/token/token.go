// Package token signs and verifies the two JWT kinds issued by the auth
// service. Access and refresh tokens use different secrets and lifetimes,
// so a token of one kind never verifies as the other.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the signed payload of both token kinds. SessionID names the
// TokenRecord the pair belongs to; it is empty for the access token handed
// out at registration.
type Claims struct {
	UserID    string `json:"userId"`
	Kind      Kind   `json:"kind"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

type Options struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewCodec validates opts and returns a ready codec. Both secrets are
// required and must differ.
func NewCodec(opts Options) (*Codec, error) {
	if len(opts.AccessSecret) == 0 || len(opts.RefreshSecret) == 0 {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if string(opts.AccessSecret) == string(opts.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, errors.New("token: lifetimes must be positive")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		accessSecret:  opts.AccessSecret,
		refreshSecret: opts.RefreshSecret,
		accessTTL:     opts.AccessTTL,
		refreshTTL:    opts.RefreshTTL,
		now:           now,
	}, nil
}

func (c *Codec) IssueAccessToken(userID, sessionID string) (string, error) {
	tok, _, err := c.issue(userID, sessionID, KindAccess, c.accessSecret, c.accessTTL)
	return tok, err
}

// IssueRefreshToken also returns the expiry so it can be persisted next to
// the session record. A refresh token always belongs to a session.
func (c *Codec) IssueRefreshToken(userID, sessionID string) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, errors.New("token: empty session id")
	}
	return c.issue(userID, sessionID, KindRefresh, c.refreshSecret, c.refreshTTL)
}

func (c *Codec) VerifyAccessToken(tokenString string) (Claims, error) {
	return c.verify(tokenString, KindAccess, c.accessSecret)
}

func (c *Codec) VerifyRefreshToken(tokenString string) (Claims, error) {
	return c.verify(tokenString, KindRefresh, c.refreshSecret)
}

func (c *Codec) issue(userID, sessionID string, kind Kind, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("token: empty user id")
	}
	now := c.now()
	exp := now.Add(ttl)

	claims := Claims{
		UserID:    userID,
		Kind:      kind,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	// exp is reported at the precision stored in the token.
	return signed, claims.ExpiresAt.Time, nil
}

func (c *Codec) verify(tokenString string, kind Kind, secret []byte) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Kind != kind || claims.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	if kind == KindRefresh && claims.SessionID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
