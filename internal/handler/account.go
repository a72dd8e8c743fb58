package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/study-tracker/internal/auth"
	"github.com/sakif/study-tracker/internal/model"
	"github.com/sakif/study-tracker/internal/service"
)

// VerifiedRedirect is where a successful email verification lands.
const VerifiedRedirect = "/login?verified=1"

// AccountService is the part of service.AccountService the HTTP layer calls.
type AccountService interface {
	Register(ctx context.Context, username, email, password string) (*model.AccountSummary, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, credential string)
}

// AccountHandler serves registration, verification, and the session endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister           → create an unverified account, mail the link
//   - HandleVerifyEmail        → consume the link's token, redirect to login
//   - HandleResendVerification → mail a fresh link to an unverified account
//   - HandleLogin              → check credentials, set the session cookie
//   - HandleLogout             → clear the session cookie
//   - HandleCurrentUser        → return the account LoadUser attached
type AccountHandler struct {
	accounts AccountService
	// secure marks the session cookie Secure; set when served over https.
	secure bool
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, secureCookies bool, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		secure:   secureCookies,
		logger:   logger,
	}
}

// HandleRegister creates an account.
//
// HTTP: POST /register
// FORM: username, email, password
//
// The account starts unverified; the verification email is queued in the
// background, so a mail outage never fails the registration.
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeError(w, err)
		return
	}

	_, err := h.accounts.Register(r.Context(),
		r.PostFormValue("username"),
		r.PostFormValue("email"),
		r.PostFormValue("password"),
	)
	if err != nil {
		h.logFailure(r, "registration failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, success)
}

// HandleVerifyEmail consumes a verification token.
//
// HTTP: GET /verify-email?token=xxx
//
// This is the link a user clicks in their inbox, so success is a redirect to
// the login page rather than JSON.
func (h *AccountHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.logFailure(r, "verification failed", err)
		writeError(w, err)
		return
	}

	http.Redirect(w, r, VerifiedRedirect, http.StatusSeeOther)
}

// HandleResendVerification mails a fresh link.
//
// HTTP: POST /resend-verification
// FORM: email
//
// The answer is the same whether or not the address belongs to an
// unverified account, so the endpoint cannot be used to probe for accounts.
func (h *AccountHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeError(w, err)
		return
	}

	if err := h.accounts.ResendVerification(r.Context(), r.PostFormValue("email")); err != nil {
		h.logFailure(r, "resend verification failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, success)
}

// HandleLogin starts a session.
//
// HTTP: POST /login
// FORM: username, password
//
// Every rejection is the same 401 invalid_credentials, whatever the cause.
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		h.logFailure(r, "login failed", err)
		writeError(w, err)
		return
	}

	auth.SetSessionCookie(w, result.Credential, result.ExpiresIn, h.secure)
	writeJSON(w, http.StatusOK, success)
}

// HandleLogout ends the session in this browser.
//
// HTTP: POST /logout, GET /logout
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.accounts.Logout(r.Context(), auth.SessionCredential(r))
	auth.ClearSessionCookie(w, h.secure)
	writeJSON(w, http.StatusOK, success)
}

// HandleCurrentUser returns the logged-in account.
//
// HTTP: GET /api/current-user
//
// Mounted behind auth.RequireUser, so a user is always present here.
func (h *AccountHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// logFailure logs client errors at Info and everything else at Error.
func (h *AccountHandler) logFailure(r *http.Request, msg string, err error) {
	level := slog.LevelInfo
	if status, _ := errorStatus(err); status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg, slog.String("error", err.Error()))
}
