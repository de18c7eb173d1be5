package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/auth"
	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/service"
)

// Accounts is the account surface AuthHandler drives.
// *service.AccountService implements it.
type Accounts interface {
	SignUp(ctx context.Context, in service.SignUpInput) (*model.User, error)
	SignIn(ctx context.Context, email, password string) (*service.AuthResult, error)
	SignOut(ctx context.Context, userID, token string) error
	ChangePassword(ctx context.Context, userID, current, next, confirm string) error
	UpdateEmail(ctx context.Context, userID, email string) error
	ResendVerification(ctx context.Context, userID string) error
	Verify(ctx context.Context, token string) error
	Me(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler serves registration, sign-in and the account settings.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignUp / HandleLogin / HandleLogout → session lifecycle
//   - HandleMe                                 → the signed-in account
//   - HandleChangePassword / HandleUpdateEmail → account settings
//   - HandleResendVerification / HandleVerify  → email verification
//
// Sign-in answers with the token in the body (mobile clients send it as a
// Bearer header) and also sets it as an HttpOnly cookie for browsers.
type AuthHandler struct {
	accounts     Accounts
	cookieSecure bool
	logger       *slog.Logger
}

func NewAuthHandler(accounts Accounts, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type emailRequest struct {
	Email string `json:"email"`
}

// HandleSignUp registers an account.
//
// HTTP: POST /api/auth/signup
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var in service.SignUpInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.accounts.SignUp(r.Context(), in)
	if err != nil {
		h.logFailure("sign up failed", err)
		writeError(w, err)
		return
	}

	h.logger.Info("account created", slog.String("userID", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin signs in and opens the user's session.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, apperror.ValidationFailed("", "Email and password are required."))
		return
	}

	res, err := h.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logFailure("sign in failed", err)
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout revokes the session token and clears the cookie.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.accounts.SignOut(r.Context(), userID, auth.TokenFromContext(r.Context())); err != nil {
		h.logFailure("sign out failed", err)
		writeError(w, err)
		return
	}

	// MaxAge -1 tells the browser to delete the cookie now.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the signed-in account.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.Me(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleChangePassword
//
// HTTP: PUT /api/auth/password
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.accounts.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		h.logFailure("password change failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateEmail
//
// HTTP: PUT /api/auth/email
func (h *AuthHandler) HandleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.accounts.UpdateEmail(r.Context(), userID, req.Email); err != nil {
		h.logFailure("email change failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResendVerification mails a fresh verification link.
//
// HTTP: POST /api/auth/verification
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.accounts.ResendVerification(r.Context(), userID); err != nil {
		h.logFailure("verification resend failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleVerify is the target of the link in verification emails.
//
// HTTP: GET /api/auth/verify?token=...
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, apperror.ValidationFailed("token", "Verification token is required."))
		return
	}
	if err := h.accounts.Verify(r.Context(), token); err != nil {
		h.logFailure("email verification failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// logFailure logs user-caused failures at Info and everything else at Error.
func (h *AuthHandler) logFailure(msg string, err error) {
	if status, _ := classify(err); status < http.StatusInternalServerError {
		h.logger.Info(msg, slog.String("error", err.Error()))
		return
	}
	h.logger.Error(msg, slog.String("error", err.Error()))
}
