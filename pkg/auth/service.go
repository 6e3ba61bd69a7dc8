// Package auth implements registration, login and the session lifecycle.
//
// Access tokens are self-contained and are never checked against storage.
// Refresh tokens are additionally bound to a persisted TokenRecord, which is
// rotated on every exchange and revoked on logout.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"fintrack/models"
	"fintrack/pkg/password"
	"fintrack/pkg/store"
	"fintrack/pkg/token"
)

const (
	minPasswordLen = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72

	defaultAccountName = "Main account"
	defaultAccountType = "cash"
)

type Options struct {
	// Currency of the account provisioned at registration.
	Currency string
	Now      func() time.Time
	Logger   *slog.Logger
}

type Service struct {
	users    store.UserStore
	accounts store.AccountStore
	tokens   store.TokenStore
	codec    *token.Codec
	hasher   password.Hasher

	currency string
	now      func() time.Time
	log      *slog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

func NewService(users store.UserStore, accounts store.AccountStore, tokens store.TokenStore, codec *token.Codec, hasher password.Hasher, opts Options) *Service {
	s := &Service{
		users:    users,
		accounts: accounts,
		tokens:   tokens,
		codec:    codec,
		hasher:   hasher,
		currency: opts.Currency,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if s.currency == "" {
		s.currency = "IDR"
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FullName    string
	DateOfBirth *time.Time
	PhoneNumber string
	Address     string
}

type RegisterResult struct {
	User        models.User
	Account     models.Account
	AccessToken string
}

type LoginInput struct {
	UsernameOrEmail string
	Password        string
	UserAgent       string
	ClientIP        string
}

// Session is the result of a successful login.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         models.User
	Account      models.Account
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type ProfileInput struct {
	FullName    string
	DateOfBirth *time.Time
	PhoneNumber string
	Address     string
}

// Register creates the user, provisions the default account and returns an
// access token for immediate use. No session record is created.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	switch {
	case in.Username == "":
		return RegisterResult{}, fmt.Errorf("%w: username is required", ErrValidation)
	case in.Email == "":
		return RegisterResult{}, fmt.Errorf("%w: email is required", ErrValidation)
	case in.FullName == "":
		return RegisterResult{}, fmt.Errorf("%w: full name is required", ErrValidation)
	}
	if err := CheckPassword(in.Password); err != nil {
		return RegisterResult{}, err
	}

	// pre-check existing (optimistic), the unique index settles races
	exists, err := s.users.UsernameOrEmailExists(ctx, in.Username, in.Email)
	if err != nil {
		return RegisterResult{}, s.internal(ctx, "check identity", err)
	}
	if exists {
		return RegisterResult{}, ErrDuplicateIdentity
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{}, s.internal(ctx, "hash password", err)
	}

	user := models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		DateOfBirth:  in.DateOfBirth,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Address:      strings.TrimSpace(in.Address),
	}
	if err := s.users.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return RegisterResult{}, ErrDuplicateIdentity
		}
		return RegisterResult{}, s.internal(ctx, "create user", err)
	}

	account, err := s.provisionAccount(ctx, user.ID)
	if err != nil {
		return RegisterResult{}, err
	}

	access, err := s.codec.IssueAccessToken(user.ID, "")
	if err != nil {
		return RegisterResult{}, s.internal(ctx, "issue access token", err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", user.ID)
	return RegisterResult{User: user, Account: account, AccessToken: access}, nil
}

// Login checks credentials and opens a new session. Earlier sessions of the
// same user stay valid.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	ident := strings.TrimSpace(in.UsernameOrEmail)
	if ident == "" || in.Password == "" {
		return Session{}, fmt.Errorf("%w: username or email and password are required", ErrValidation)
	}

	user, err := s.lookup(ctx, ident)
	if errors.Is(err, store.ErrNotFound) {
		// burn the same bcrypt time as a real comparison
		s.hasher.Verify(in.Password, s.dummy())
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, s.internal(ctx, "find user", err)
	}
	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}

	account, err := s.DefaultAccount(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		account, err = s.provisionAccount(ctx, user.ID)
	}
	if err != nil {
		return Session{}, err
	}

	sessionID := models.NewID()
	access, refresh, expires, err := s.issuePair(user.ID, sessionID)
	if err != nil {
		return Session{}, s.internal(ctx, "issue tokens", err)
	}
	record := models.TokenRecord{
		ID:               sessionID,
		UserID:           user.ID,
		AccessTokenHash:  Digest(access),
		RefreshTokenHash: Digest(refresh),
		ExpiresAt:        expires,
		UserAgent:        truncate(in.UserAgent, 255),
		ClientIP:         truncate(in.ClientIP, 64),
	}
	if err := s.tokens.CreateToken(ctx, &record); err != nil {
		return Session{}, s.internal(ctx, "store session", err)
	}

	s.log.InfoContext(ctx, "user logged in", "user_id", user.ID, "session_id", record.ID)
	return Session{AccessToken: access, RefreshToken: refresh, User: user, Account: account}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// superseded by the rotation and can never be exchanged again.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}

	access, refresh, expires, err := s.issuePair(claims.UserID, claims.SessionID)
	if err != nil {
		return TokenPair{}, s.internal(ctx, "issue tokens", err)
	}

	err = s.tokens.RotateToken(ctx, store.Rotation{
		SessionID:      claims.SessionID,
		UserID:         claims.UserID,
		OldRefreshHash: Digest(refreshToken),
		NewAccessHash:  Digest(access),
		NewRefreshHash: Digest(refresh),
		NewExpiresAt:   expires,
		Now:            s.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		s.log.WarnContext(ctx, "refresh token rejected", "user_id", claims.UserID)
		return TokenPair{}, ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, s.internal(ctx, "rotate session", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes the session named by tok, which may be an access or a
// refresh token of any generation of that session. A token that names no
// live session is not an error.
func (s *Service) Logout(ctx context.Context, tok string) error {
	sessionID := s.sessionOf(tok)
	if sessionID == "" {
		return nil
	}
	if err := s.tokens.RevokeSession(ctx, sessionID); err != nil {
		return s.internal(ctx, "revoke session", err)
	}
	s.log.InfoContext(ctx, "session revoked", "session_id", sessionID)
	return nil
}

func (s *Service) sessionOf(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ""
	}
	if claims, err := s.codec.VerifyAccessToken(tok); err == nil {
		return claims.SessionID
	}
	if claims, err := s.codec.VerifyRefreshToken(tok); err == nil {
		return claims.SessionID
	}
	return ""
}

// LogoutAll revokes every session of userID.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		return s.internal(ctx, "revoke sessions", err)
	}
	return nil
}

// VerifyToken checks accessToken and returns the current user record.
func (s *Service) VerifyToken(ctx context.Context, accessToken string) (models.User, error) {
	claims, err := s.codec.VerifyAccessToken(accessToken)
	if err != nil {
		return models.User{}, ErrInvalidToken
	}
	user, err := s.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrInvalidToken
	}
	if err != nil {
		return models.User{}, s.internal(ctx, "load user", err)
	}
	return user, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return models.User{}, s.internal(ctx, "load user", err)
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (models.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return models.User{}, fmt.Errorf("%w: full name is required", ErrValidation)
	}
	user, err := s.users.UpdateProfile(ctx, models.User{
		ID:          userID,
		FullName:    in.FullName,
		DateOfBirth: in.DateOfBirth,
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Address:     strings.TrimSpace(in.Address),
	})
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return models.User{}, s.internal(ctx, "update profile", err)
	}
	return user, nil
}

// ChangePassword replaces the password and revokes every open session, so
// other devices have to log in again once their access token runs out.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := CheckPassword(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return s.internal(ctx, "hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return s.internal(ctx, "update password", err)
	}
	s.log.InfoContext(ctx, "password changed", "user_id", userID)
	return s.LogoutAll(ctx, userID)
}

func (s *Service) DefaultAccount(ctx context.Context, userID string) (models.Account, error) {
	account, err := s.accounts.DefaultAccount(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Account{}, fmt.Errorf("%w: account", ErrNotFound)
	}
	if err != nil {
		return models.Account{}, s.internal(ctx, "load account", err)
	}
	return account, nil
}

func (s *Service) provisionAccount(ctx context.Context, userID string) (models.Account, error) {
	account := models.Account{
		UserID:    userID,
		Name:      defaultAccountName,
		Type:      defaultAccountType,
		Balance:   0,
		Currency:  s.currency,
		IsDefault: true,
	}
	if err := s.accounts.CreateAccount(ctx, &account); err != nil {
		return models.Account{}, s.internal(ctx, "provision account", err)
	}
	return account, nil
}

func (s *Service) lookup(ctx context.Context, ident string) (models.User, error) {
	if strings.Contains(ident, "@") {
		return s.users.FindByEmail(ctx, normalizeEmail(ident))
	}
	return s.users.FindByUsername(ctx, ident)
}

func (s *Service) issuePair(userID, sessionID string) (access, refresh string, expires time.Time, err error) {
	access, err = s.codec.IssueAccessToken(userID, sessionID)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refresh, expires, err = s.codec.IssueRefreshToken(userID, sessionID)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, expires, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("fintrack-timing-equalizer")
		if err != nil {
			s.log.Error("failed to prepare dummy hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// internal logs cause and returns ErrInternal without it.
func (s *Service) internal(ctx context.Context, op string, cause error) error {
	s.log.ErrorContext(ctx, "auth operation failed", "op", op, "error", cause)
	return ErrInternal
}

// Digest is the form in which tokens are persisted.
func Digest(tok string) string {
	h := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(h[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckPassword enforces the password length policy shared by every entry
// point that sets a password.
func CheckPassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordLen {
		return fmt.Errorf("%w: password too short (min %d)", ErrValidation, minPasswordLen)
	}
	if len(pw) > maxPasswordLen {
		return fmt.Errorf("%w: password too long (max %d bytes)", ErrValidation, maxPasswordLen)
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
