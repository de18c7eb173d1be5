// Package auth provides the building blocks of local authentication:
// signed tokens (TokenService), password hashing (PasswordService) and the
// HTTP middleware that resolves a request to a user ID.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const issuer = "jacobs-ranch"

// Token purposes. A verification token can never be used as a session and
// vice versa.
const (
	PurposeSession      = "session"
	PurposeVerification = "verify"
)

// Default lifetimes.
const (
	DefaultSessionTTL      = 24 * time.Hour
	DefaultVerificationTTL = 48 * time.Hour
)

var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and validates HS256 JWTs.
type TokenService struct {
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// NewTokenService requires a secret of at least 16 characters. A zero
// sessionTTL means DefaultSessionTTL.
func NewTokenService(secret string, sessionTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), sessionTTL: sessionTTL, now: time.Now}, nil
}

// WithClock replaces the clock used for issue and expiry times.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Claims is what a validated token carries.
type Claims struct {
	UserID    string
	TokenID   string
	Purpose   string
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// Generate issues a session token for userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.sign(userID, PurposeSession, s.sessionTTL)
}

// GenerateVerification issues an email verification token for userID.
func (s *TokenService) GenerateVerification(userID string) (string, error) {
	return s.sign(userID, PurposeVerification, DefaultVerificationTTL)
}

// GenerateWithDuration issues a session token with a custom lifetime.
// A negative d yields an already expired token, which tests rely on.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	return s.sign(userID, PurposeSession, d)
}

func (s *TokenService) sign(userID, purpose string, ttl time.Duration) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		Purpose: purpose,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks a session token and returns its user ID.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	c, err := s.Parse(tokenStr, PurposeSession)
	if err != nil {
		return "", err
	}
	return c.UserID, nil
}

// Parse validates signature, issuer, expiry and purpose.
func (s *TokenService) Parse(tokenStr, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	if c.Purpose != purpose {
		return nil, fmt.Errorf("auth: token purpose %q, want %q", c.Purpose, purpose)
	}

	return &Claims{
		UserID:    c.Subject,
		TokenID:   c.ID,
		Purpose:   c.Purpose,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
