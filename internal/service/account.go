package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/auth"
	"github.com/sakif/study-tracker/internal/mail"
	"github.com/sakif/study-tracker/internal/metrics"
	"github.com/sakif/study-tracker/internal/model"
	"github.com/sakif/study-tracker/internal/repository"
)

// Registration limits.
const (
	MaxUsernameLength = 64
	MaxEmailLength    = 254
)

// MailQueue accepts outgoing mail without blocking. *mail.Dispatcher
// implements it.
type MailQueue interface {
	Enqueue(msg mail.Message) bool
}

// AccountService is the account lifecycle: registration, email
// verification, login and session resolution.
//
// STATE MACHINE:
//
//	(none) --Register--> unverified --VerifyEmail--> verified
//
// Login only succeeds from verified. Every transition is one atomic store
// write, so concurrent requests cannot produce two accounts with the same
// username or verify one token twice.
type AccountService struct {
	accounts  repository.AccountRepository
	passwords *auth.PasswordService
	tokens    *auth.VerificationTokenIssuer
	sessions  *auth.SessionService
	mail      MailQueue
	metrics   metrics.Recorder
	baseURL   string
	now       Clock
	logger    *slog.Logger

	dummyOnce   sync.Once
	dummyDigest string
}

// NewAccountService wires an AccountService. baseURL is the public origin
// used to build verification links.
func NewAccountService(
	accounts repository.AccountRepository,
	passwords *auth.PasswordService,
	tokens *auth.VerificationTokenIssuer,
	sessions *auth.SessionService,
	mailQueue MailQueue,
	recorder metrics.Recorder,
	baseURL string,
	logger *slog.Logger,
) *AccountService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AccountService{
		accounts:  accounts,
		passwords: passwords,
		tokens:    tokens,
		sessions:  sessions,
		mail:      mailQueue,
		metrics:   recorder,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the service clock and the token issuer's clock.
func (s *AccountService) WithClock(now Clock) *AccountService {
	s.now = now
	s.tokens = s.tokens.WithClock(now)
	return s
}

// LoginResult is what a successful Login hands back to the HTTP layer:
// the public account view and the signed session credential.
type LoginResult struct {
	Account    *model.AccountSummary
	Credential string
	ExpiresIn  time.Duration
}

// Register creates an unverified account and queues its verification email.
//
// Uniqueness is left to the store's constraints; there is no "does it exist"
// query first, which would race. A collision comes back as an
// apperror.AlreadyExists and nothing is written. Mail delivery happens in the
// background and never undoes the registration.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (*model.AccountSummary, error) {
	ctx, span := tracer.Start(ctx, "AccountService.Register")
	defer span.End()

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	span.SetAttributes(attribute.String("account.username", username))

	if err := validateRegistration(username, email, password); err != nil {
		s.metrics.RecordRegistration("invalid")
		return nil, err
	}

	digest, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/account: hashing password: %w", err))
	}

	token, expiresAt, err := s.tokens.Issue()
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/account: issuing verification token: %w", err))
	}

	account := &model.Account{
		Username:          username,
		Email:             email,
		CredentialDigest:  digest,
		CreatedAt:         s.now().UTC(),
		VerificationToken: &token,
		TokenExpiresAt:    &expiresAt,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.metrics.RecordRegistration("conflict")
			return nil, fmt.Errorf("service/account: registering %q: %w", username, err)
		}
		s.metrics.RecordRegistration("error")
		return nil, fail(span, fmt.Errorf("service/account: registering %q: %w", username, err))
	}

	s.metrics.RecordRegistration("success")
	s.logger.InfoContext(ctx, "account registered", slog.String("username", username))

	s.queueVerification(ctx, account.Email, token)
	return account.Summary(), nil
}

// VerifyEmail consumes a verification token.
//
// An unknown or already-used token is InvalidToken. An expired token is
// TokenExpired and stays on the account so ResendVerification can replace it.
// The flip itself is a conditional update; if a concurrent request consumed
// the token first, this one reports InvalidToken.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "AccountService.VerifyEmail")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.RecordVerification("invalid")
		return apperror.InvalidToken()
	}

	account, err := s.accounts.GetByVerificationToken(ctx, token)
	if errors.Is(err, apperror.ErrNotFound) {
		s.metrics.RecordVerification("invalid")
		return apperror.InvalidToken()
	}
	if err != nil {
		return fail(span, fmt.Errorf("service/account: looking up verification token: %w", err))
	}
	span.SetAttributes(attribute.String("account.username", account.Username))

	if account.TokenExpiresAt == nil || s.now().After(*account.TokenExpiresAt) {
		s.metrics.RecordVerification("expired")
		s.logger.InfoContext(ctx, "verification link expired", slog.String("username", account.Username))
		return apperror.TokenExpired()
	}

	ok, err := s.accounts.MarkVerified(ctx, token)
	if err != nil {
		return fail(span, fmt.Errorf("service/account: verifying %q: %w", account.Username, err))
	}
	if !ok {
		s.metrics.RecordVerification("invalid")
		return apperror.InvalidToken()
	}

	s.metrics.RecordVerification("success")
	s.logger.InfoContext(ctx, "account verified", slog.String("username", account.Username))
	return nil
}

// Login checks a username and password and issues a session credential.
//
// An unknown username, a wrong password and an unverified account all return
// the same InvalidCredentials. For an unknown username a throwaway digest is
// still compared so the response time does not reveal which case it was.
func (s *AccountService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AccountService.Login")
	defer span.End()

	username = strings.TrimSpace(username)
	span.SetAttributes(attribute.String("account.username", username))

	if username == "" || password == "" {
		s.metrics.RecordLogin("invalid_credentials")
		return nil, apperror.InvalidCredentials()
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, apperror.ErrNotFound) {
		_, _ = s.passwords.Verify(password, s.dummy())
		s.metrics.RecordLogin("invalid_credentials")
		return nil, apperror.InvalidCredentials()
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/account: loading %q: %w", username, err))
	}

	// Verify errors only on a stored digest that is not bcrypt at all. That
	// is a corrupt row, not a bad login, so it surfaces as an internal error.
	match, err := s.passwords.Verify(password, account.CredentialDigest)
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/account: checking password for %q: %w", username, err))
	}
	if !match || !account.IsVerified {
		s.metrics.RecordLogin("invalid_credentials")
		s.logger.InfoContext(ctx, "login rejected",
			slog.String("username", username),
			slog.Bool("verified", account.IsVerified),
		)
		return nil, apperror.InvalidCredentials()
	}

	credential, err := s.sessions.Issue(account.Username)
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/account: issuing session for %q: %w", username, err))
	}

	s.metrics.RecordLogin("success")
	s.logger.InfoContext(ctx, "login succeeded", slog.String("username", username))

	return &LoginResult{
		Account:    account.Summary(),
		Credential: credential,
		ExpiresIn:  s.sessions.TTL(),
	}, nil
}

// ResolveCurrentUser maps a session credential to its account.
//
// A missing, forged, expired or orphaned credential is simply anonymous:
// (nil, nil). Only a store failure is an error.
func (s *AccountService) ResolveCurrentUser(ctx context.Context, credential string) (*model.AccountSummary, error) {
	if credential == "" {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "AccountService.ResolveCurrentUser")
	defer span.End()

	username, err := s.sessions.Parse(credential)
	if err != nil {
		s.logger.DebugContext(ctx, "ignoring unusable session", slog.String("error", err.Error()))
		return nil, nil
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/account: resolving session for %q: %w", username, err))
	}
	return account.Summary(), nil
}

// Logout records the logout. The credential itself is stateless; the HTTP
// layer drops the cookie and a copied credential stays valid until expiry.
func (s *AccountService) Logout(ctx context.Context, credential string) {
	if credential == "" {
		return
	}
	if username, err := s.sessions.Parse(credential); err == nil {
		s.logger.InfoContext(ctx, "logged out", slog.String("username", username))
	}
}

// ResendVerification replaces the token of an unverified account and queues
// a fresh email. Unknown and already-verified addresses succeed silently so
// the endpoint cannot be used to discover which emails are registered.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "AccountService.ResendVerification")
	defer span.End()

	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		s.logger.DebugContext(ctx, "resend requested for unknown email")
		return nil
	}
	if err != nil {
		return fail(span, fmt.Errorf("service/account: loading account by email: %w", err))
	}
	if account.IsVerified {
		return nil
	}

	token, expiresAt, err := s.tokens.Issue()
	if err != nil {
		return fail(span, fmt.Errorf("service/account: issuing verification token: %w", err))
	}

	replaced, err := s.accounts.ReplaceVerificationToken(ctx, account.Username, token, expiresAt)
	if err != nil {
		return fail(span, fmt.Errorf("service/account: replacing token for %q: %w", account.Username, err))
	}
	if !replaced {
		// Verified between the read and the update.
		return nil
	}

	s.logger.InfoContext(ctx, "verification token reissued", slog.String("username", account.Username))
	s.queueVerification(ctx, account.Email, token)
	return nil
}

// VerificationLink is the URL emailed to the user.
func (s *AccountService) VerificationLink(token string) string {
	return s.baseURL + "/verify-email?token=" + url.QueryEscape(token)
}

func (s *AccountService) queueVerification(ctx context.Context, email, token string) {
	if s.mail == nil {
		return
	}
	if !s.mail.Enqueue(mail.VerificationMessage(email, s.VerificationLink(token))) {
		s.logger.WarnContext(ctx, "verification email not queued")
	}
}

// dummy returns a valid digest that matches no real password.
func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		digest, err := s.passwords.Hash("study-tracker-timing-equaliser")
		if err != nil {
			s.logger.Error("computing dummy digest", slog.String("error", err.Error()))
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}

func validateRegistration(username, email, password string) error {
	if username == "" {
		return apperror.ValidationFailed("username", "username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or fewer", MaxUsernameLength))
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if !strings.Contains(email, "@") {
		return apperror.ValidationFailed("email", "email must contain @")
	}
	if len(email) > MaxEmailLength {
		return apperror.ValidationFailed("email",
			fmt.Sprintf("email must be %d characters or fewer", MaxEmailLength))
	}
	return nil
}
