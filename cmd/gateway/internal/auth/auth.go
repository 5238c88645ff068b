package auth

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// Credentials are accepted as-is; the demo login does not check passwords.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	Sub         string `json:"sub"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type Claims struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	jwt.RegisteredClaims
}

func (c *Claims) User() User {
	return User{Sub: c.Subject, Email: c.Email, DisplayName: c.DisplayName}
}

type Session struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

// Authority issues and verifies HS256 access tokens.
type Authority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthority(secret string, ttl time.Duration) *Authority {
	return &Authority{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	a.now = now
	return a
}

func (a *Authority) Issue(creds Credentials) (Session, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" {
		return Session{}, fmt.Errorf("email is required")
	}

	user := buildUser(email)
	now := a.now()
	claims := Claims{
		Email:       user.Email,
		DisplayName: user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{AccessToken: token, User: user}, nil
}

// Verify fails with ErrUnauthorized for malformed, forged or expired tokens.
func (a *Authority) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, describe(err))
	}
	return claims, nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "invalid token format"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "invalid token signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	}
	return err.Error()
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func buildUser(email string) User {
	display := email
	if at := strings.Index(email, "@"); at >= 0 {
		display = email[:at]
	}
	if display == "" {
		display = "user"
	}
	sum := sha1.Sum([]byte(email))
	return User{
		Sub:         hex.EncodeToString(sum[:])[:12],
		Email:       email,
		DisplayName: display,
	}
}
