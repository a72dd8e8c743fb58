package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type recorder struct {
	mu       sync.Mutex
	requests []int
	limited  []string
}

func (r *recorder) RecordHTTPRequest(_ string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, status)
}

func (r *recorder) RecordRateLimited(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limited = append(r.limited, route)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Logger ---

func TestLogger_RecordsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	rec := &recorder{}

	h := chimw.RequestID(Logger(logger, rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/verify-email?token=secret", nil))

	out := buf.String()
	for _, want := range []string{`"status":418`, `"bytes":15`, `"path":"/verify-email"`, `"request_id":"`, `"level":"WARN"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, "secret") {
		t.Errorf("query string leaked into the log: %s", out)
	}
	if len(rec.requests) != 1 || rec.requests[0] != http.StatusTeapot {
		t.Errorf("recorded = %v, want [418]", rec.requests)
	}
}

func TestLogger_DefaultsTo200(t *testing.T) {
	rec := &recorder{}
	h := Logger(discard(), rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(rec.requests) != 1 || rec.requests[0] != http.StatusOK {
		t.Errorf("recorded = %v, want [200]", rec.requests)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

// --- RateLimiter ---

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":51234"
	return req
}

func TestRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	rec := &recorder{}
	rl := NewRateLimiter(RateLimiterConfig{PerMinute: 1, Burst: 3, CleanupInterval: time.Minute}, rec, discard())
	defer rl.Stop()
	h := rl.Middleware("login")(okHandler())

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestFrom("10.0.0.1"))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("10.0.0.1"))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	if !strings.Contains(rr.Body.String(), `"error":"rate_limited"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
	if len(rec.limited) != 1 || rec.limited[0] != "login" {
		t.Errorf("limited = %v, want [login]", rec.limited)
	}
}

func TestRateLimiter_SeparatesClientsAndRoutes(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{PerMinute: 1, Burst: 1, CleanupInterval: time.Minute}, &recorder{}, discard())
	defer rl.Stop()
	login := rl.Middleware("login")(okHandler())
	register := rl.Middleware("register")(okHandler())

	serve := func(h http.Handler, ip string) int {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestFrom(ip))
		return rr.Code
	}

	if code := serve(login, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first login = %d", code)
	}
	if code := serve(login, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("second login = %d, want 429", code)
	}
	if code := serve(login, "10.0.0.2"); code != http.StatusOK {
		t.Errorf("other client = %d, want 200", code)
	}
	if code := serve(register, "10.0.0.1"); code != http.StatusOK {
		t.Errorf("other route = %d, want 200", code)
	}
	if n := rl.ClientCount(); n != 3 {
		t.Errorf("ClientCount() = %d, want 3", n)
	}
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{PerMinute: 60, Burst: 1, CleanupInterval: time.Minute}, &recorder{}, discard())
	defer rl.Stop()

	rl.Middleware("login")(okHandler()).ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1"))

	rl.cleanup(time.Now())
	if n := rl.ClientCount(); n != 1 {
		t.Fatalf("fresh client dropped, count = %d", n)
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if n := rl.ClientCount(); n != 0 {
		t.Errorf("idle client kept, count = %d", n)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), &recorder{}, discard())
	rl.Stop()
	rl.Stop()
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4000"
	if got := clientIP(req); got != "192.0.2.7" {
		t.Errorf("clientIP = %q", got)
	}
	req.RemoteAddr = "192.0.2.8"
	if got := clientIP(req); got != "192.0.2.8" {
		t.Errorf("clientIP without port = %q", got)
	}
}
