package oauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/store"
)

const (
	SessionCookie   = "wpm_session"
	SessionLifetime = 14 * 24 * time.Hour
	sessionIssuer   = "wpmastodon"
)

var (
	ErrBadCredentials = errors.New("invalid username or password")
	ErrLoginsDisabled = errors.New("logins are disabled")
	ErrInvalidSession = errors.New("invalid session")
)

// SessionClaims is the payload of the login cookie.
type SessionClaims struct {
	UserId int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Sessions signs and verifies the login cookie of the authorize pages.
type Sessions struct {
	store  *store.Store
	secret []byte
}

func NewSessions(s *store.Store, secret string) *Sessions {
	return &Sessions{store: s, secret: []byte(secret)}
}

// Login checks a password and returns the user and a signed session.
func (m *Sessions) Login(ctx context.Context, login, password string) (*model.User, string, error) {
	disabled, err := m.store.BoolOption(ctx, store.OptionDisableLogins)
	if err != nil {
		return nil, "", err
	}
	if disabled {
		return nil, "", ErrLoginsDisabled
	}
	user, err := m.store.SelectUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrBadCredentials
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrBadCredentials
	}
	token, err := m.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Issue signs a session for user.
func (m *Sessions) Issue(user *model.User) (string, error) {
	now := m.store.Now()
	claims := SessionClaims{
		UserId: user.Id,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   strconv.FormatInt(user.Id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionLifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// User verifies a session and loads its user.
func (m *Sessions) User(ctx context.Context, token string) (*model.User, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(m.store.Now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidSession
	}
	user, err := m.store.SelectUser(ctx, claims.UserId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return user, nil
}
