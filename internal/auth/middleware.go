package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/study-tracker/internal/model"
)

// SessionCookieName is the cookie that carries the session credential.
const SessionCookieName = "session"

// contextKey is unexported so only this package can read or write the
// current user in a request context.
type contextKey string

const userKey contextKey = "user"

// UserResolver turns a raw session credential into the account it names.
// It returns (nil, nil) for an anonymous request.
type UserResolver interface {
	ResolveCurrentUser(ctx context.Context, credential string) (*model.AccountSummary, error)
}

// SetSessionCookie stores credential in an HttpOnly cookie.
// HttpOnly keeps it away from page scripts; SameSite=Lax keeps it off
// cross-site POSTs.
func SetSessionCookie(w http.ResponseWriter, credential string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    credential,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
// Nothing is revoked server-side; a copied credential stays valid until it expires.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionCredential returns the raw credential from r, or "" when absent.
func SessionCredential(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// LoadUser resolves the session cookie on every request and stores the
// account in the request context. Anonymous requests pass through untouched,
// so public routes can sit behind it too.
//
// A resolver failure (the store is down, say) is logged and the request
// continues as anonymous; protected routes then answer 401.
func LoadUser(resolver UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := SessionCredential(r)
			if credential == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.ResolveCurrentUser(r.Context(), credential)
			if err != nil {
				logger.ErrorContext(r.Context(), "resolving session",
					slog.String("error", err.Error()),
				)
			}
			if user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects requests that LoadUser did not attach an account to.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.AccountSummary) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the account attached by LoadUser.
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // anonymous
//	}
func UserFromContext(ctx context.Context) (*model.AccountSummary, bool) {
	user, ok := ctx.Value(userKey).(*model.AccountSummary)
	return user, ok && user != nil
}
