package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/auth"
	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/repository"
)

// Authenticator is the identity provider the account flows delegate to.
// LocalAuth is the built-in implementation; a hosted provider can be
// swapped in behind the same interface.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (*model.User, error)
	SignIn(ctx context.Context, email, password string) (*AuthResult, error)
	SignOut(ctx context.Context, token string) error
	// ValidateSession resolves a session token to a user ID.
	ValidateSession(ctx context.Context, token string) (string, error)
	User(ctx context.Context, userID string) (*model.User, error)
	UpdatePassword(ctx context.Context, userID, current, next string) error
	UpdateEmail(ctx context.Context, userID, email string) error
	ResendVerification(ctx context.Context, userID string) error
	Verify(ctx context.Context, token string) error
}

// AuthResult bundles the signed-in user with their session token.
type AuthResult struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Mailer delivers account emails.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}

// LogMailer writes verification links to the log instead of sending mail.
type LogMailer struct {
	Logger  *slog.Logger
	BaseURL string
}

func (m LogMailer) SendVerification(_ context.Context, email, token string) error {
	m.Logger.Info("verification email",
		slog.String("to", email),
		slog.String("link", strings.TrimRight(m.BaseURL, "/")+"/api/auth/verify?token="+token),
	)
	return nil
}

// LocalAuth authenticates against the users table with bcrypt passwords
// and JWT sessions. Signed-out tokens are remembered until they expire.
type LocalAuth struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mailer    Mailer
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // token ID → expiry
}

var _ Authenticator = (*LocalAuth)(nil)

func NewLocalAuth(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mailer Mailer,
	logger *slog.Logger,
) *LocalAuth {
	return &LocalAuth{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		logger:    logger,
		now:       time.Now,
		revoked:   make(map[string]time.Time),
	}
}

// SignUp creates an unverified account and sends a verification email.
// A mail failure is logged, not returned: the account exists either way.
func (a *LocalAuth) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	hash, err := a.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "Password is too long.")
	}

	user := &model.User{Email: email, PasswordHash: hash}
	if err := a.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "An account with that email already exists.", Field: "email"}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	a.logger.Info("user signed up", slog.String("userID", user.ID))
	if err := a.sendVerification(ctx, user); err != nil {
		a.logger.Warn("verification email not sent",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return user, nil
}

// SignIn checks credentials and issues a session token. Unknown email and
// wrong password get the same answer.
func (a *LocalAuth) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("Invalid email or password.")

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	if err := a.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	token, err := a.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	claims, err := a.tokens.Parse(token, auth.PurposeSession)
	if err != nil {
		return nil, fmt.Errorf("service/auth: reading issued token: %w", err)
	}

	a.logger.Info("user signed in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token, ExpiresAt: claims.ExpiresAt}, nil
}

// SignOut revokes the token. Signing out an invalid token is a no-op.
func (a *LocalAuth) SignOut(_ context.Context, token string) error {
	claims, err := a.tokens.Parse(token, auth.PurposeSession)
	if err != nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for id, exp := range a.revoked {
		if now.After(exp) {
			delete(a.revoked, id)
		}
	}
	a.revoked[claims.TokenID] = claims.ExpiresAt
	return nil
}

func (a *LocalAuth) ValidateSession(_ context.Context, token string) (string, error) {
	claims, err := a.tokens.Parse(token, auth.PurposeSession)
	if err != nil {
		return "", apperror.Unauthorized("Session expired. Please sign in again.")
	}

	a.mu.Lock()
	_, revoked := a.revoked[claims.TokenID]
	a.mu.Unlock()
	if revoked {
		return "", apperror.Unauthorized("Session expired. Please sign in again.")
	}
	return claims.UserID, nil
}

func (a *LocalAuth) User(ctx context.Context, userID string) (*model.User, error) {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// UpdatePassword requires the current password.
func (a *LocalAuth) UpdatePassword(ctx context.Context, userID, current, next string) error {
	user, err := a.User(ctx, userID)
	if err != nil {
		return err
	}
	if err := a.passwords.Verify(user.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return apperror.ValidationFailed("current_password", "Current password is incorrect.")
		}
		return fmt.Errorf("service/auth: verifying password: %w", err)
	}

	hash, err := a.passwords.Hash(next)
	if err != nil {
		return apperror.ValidationFailed("password", "Password is too long.")
	}
	if err := a.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("service/auth: updating password: %w", err)
	}
	a.logger.Info("password changed", slog.String("userID", userID))
	return nil
}

func (a *LocalAuth) UpdateEmail(ctx context.Context, userID, email string) error {
	if err := a.users.UpdateEmail(ctx, userID, email); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return &apperror.AppError{Err: apperror.ErrConflict, Message: "That email is already in use.", Field: "email"}
		}
		return fmt.Errorf("service/auth: updating email: %w", err)
	}
	return nil
}

func (a *LocalAuth) ResendVerification(ctx context.Context, userID string) error {
	user, err := a.User(ctx, userID)
	if err != nil {
		return err
	}
	if user.Verified {
		return apperror.ValidationFailed("email", "Your email is already verified.")
	}
	return a.sendVerification(ctx, user)
}

// Verify marks the account behind a verification token as verified.
func (a *LocalAuth) Verify(ctx context.Context, token string) error {
	claims, err := a.tokens.Parse(token, auth.PurposeVerification)
	if err != nil {
		return apperror.ValidationFailed("token", "Verification link is invalid or expired.")
	}
	if err := a.users.MarkVerified(ctx, claims.UserID); err != nil {
		return fmt.Errorf("service/auth: marking %s verified: %w", claims.UserID, err)
	}
	return nil
}

func (a *LocalAuth) sendVerification(ctx context.Context, user *model.User) error {
	token, err := a.tokens.GenerateVerification(user.ID)
	if err != nil {
		return fmt.Errorf("service/auth: generating verification token: %w", err)
	}
	if err := a.mailer.SendVerification(ctx, user.Email, token); err != nil {
		return fmt.Errorf("service/auth: sending verification: %w", err)
	}
	return nil
}
