package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/remote"
)

// DefaultInviteCode gates registration unless configured otherwise.
const DefaultInviteCode = "RANCH2017"

// SignUpInput is the registration form.
type SignUpInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	InviteCode      string `json:"inviteCode"`
}

// AccountService runs the account flows whose errors are shown to the user:
// sign-up, sign-in, sign-out, password change and email change.
type AccountService struct {
	auth       Authenticator
	store      remote.TableStore
	sessions   *Sessions
	inviteCode string
	logger     *slog.Logger
}

func NewAccountService(a Authenticator, store remote.TableStore, sessions *Sessions, inviteCode string, logger *slog.Logger) *AccountService {
	if inviteCode == "" {
		inviteCode = DefaultInviteCode
	}
	return &AccountService{
		auth:       a,
		store:      store,
		sessions:   sessions,
		inviteCode: inviteCode,
		logger:     logger,
	}
}

// SignUp checks the invite code and password confirmation, creates the
// account, then inserts the user's default profile row.
func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (*model.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" || in.ConfirmPassword == "" || in.InviteCode == "" {
		return nil, apperror.ValidationFailed("", "All fields are required.")
	}
	if in.InviteCode != s.inviteCode {
		return nil, apperror.ValidationFailed("inviteCode", "Invalid invite code.")
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperror.ValidationFailed("confirmPassword", "Passwords do not match.")
	}

	user, err := s.auth.SignUp(ctx, email, in.Password)
	if err != nil {
		return nil, err
	}

	_, err = s.store.Insert(ctx, remote.TableProfiles, remote.Row{
		"id":           user.ID,
		"email":        email,
		"uses_wifi":    false,
		"uses_trailer": false,
	})
	if err != nil {
		s.logger.Error("profile row not created",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/account: inserting profile: %w", err)
	}

	return user, nil
}

// SignIn authenticates and opens the user's session, loading everything
// the home screen shows.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	res, err := s.auth.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.Get(ctx, res.User.ID); err != nil {
		return nil, err
	}
	return res, nil
}

// SignOut revokes the token and drops the user's session state.
func (s *AccountService) SignOut(ctx context.Context, userID, token string) error {
	if err := s.auth.SignOut(ctx, token); err != nil {
		return fmt.Errorf("service/account: signing out: %w", err)
	}
	s.sessions.Close(userID)
	return nil
}

// ChangePassword requires a non-empty new password typed twice.
func (s *AccountService) ChangePassword(ctx context.Context, userID, current, next, confirm string) error {
	if next == "" {
		return apperror.ValidationFailed("password", "New password is required.")
	}
	if next != confirm {
		return apperror.ValidationFailed("confirmPassword", "Passwords do not match.")
	}
	return s.auth.UpdatePassword(ctx, userID, current, next)
}

// UpdateEmail changes the email in three steps, stopping at the first
// failure: reject an address another profile already uses, update the
// identity provider, then update the profile row and the live session.
func (s *AccountService) UpdateEmail(ctx context.Context, userID, email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return apperror.ValidationFailed("email", "Enter a valid email address.")
	}

	// A failed duplicate lookup does not block the change; the identity
	// provider still enforces uniqueness.
	n, err := s.store.Count(ctx, remote.TableProfiles, remote.Where(remote.Eq{Column: "email", Value: email}))
	switch {
	case err != nil:
		s.logger.Warn("email duplicate check failed", slog.String("error", err.Error()))
	case n > 0:
		return &apperror.AppError{Err: apperror.ErrConflict, Message: "This email is already in use.", Field: "email"}
	}

	if err := s.auth.UpdateEmail(ctx, userID, email); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return fmt.Errorf("service/account: updating email: %w", err)
	}

	err = s.store.Update(ctx, remote.TableProfiles, remote.Eq{Column: "id", Value: userID}, remote.Row{"email": email})
	if err != nil {
		s.logger.Error("profile email not updated",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/account: updating profile email: %w", err)
	}

	if sess, err := s.sessions.Get(ctx, userID); err == nil {
		sess.Profile.SetEmail(email)
	}
	return nil
}

// ResendVerification sends a fresh verification email.
func (s *AccountService) ResendVerification(ctx context.Context, userID string) error {
	return s.auth.ResendVerification(ctx, userID)
}

// Verify confirms an email address from a verification link.
func (s *AccountService) Verify(ctx context.Context, token string) error {
	return s.auth.Verify(ctx, token)
}

// Me returns the signed-in account.
func (s *AccountService) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.auth.User(ctx, userID)
}
