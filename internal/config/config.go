// Package config loads runtime settings with koanf.
//
// Sources, lowest precedence first:
//
//  1. flag defaults (RegisterFlags)
//  2. an optional YAML file
//  3. STUDYTRACK_* environment variables (STUDYTRACK_SESSION_SECRET → session.secret)
//  4. flags set explicitly on the command line
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/study-tracker/internal/auth"
	"github.com/sakif/study-tracker/internal/logging"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "STUDYTRACK_"

// MinSecretLength is the shortest accepted session signing secret.
const MinSecretLength = 16

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	DB        DBConfig        `koanf:"db"`
	Session   SessionConfig   `koanf:"session"`
	Verify    VerifyConfig    `koanf:"verify"`
	App       AppConfig       `koanf:"app"`
	Mail      MailConfig      `koanf:"mail"`
	Log       LogConfig       `koanf:"log"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Bcrypt    BcryptConfig    `koanf:"bcrypt"`
}

type HTTPConfig struct {
	Port int `koanf:"port"`
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxy bool `koanf:"trustproxy"`
}

type DBConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `koanf:"driver"`
	// Path is the SQLite file (or ":memory:").
	Path string `koanf:"path"`
	// URL is the Postgres connection string.
	URL string `koanf:"url"`
}

type SessionConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

type VerifyConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type AppConfig struct {
	// BaseURL prefixes the verification link in outgoing mail.
	BaseURL string `koanf:"baseurl"`
}

type MailConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Workers int           `koanf:"workers"`
	Queue   int           `koanf:"queue"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type RateLimitConfig struct {
	PerMinute int `koanf:"perminute"`
	Burst     int `koanf:"burst"`
}

type BcryptConfig struct {
	Cost int `koanf:"cost"`
}

// RegisterFlags defines one flag per key, named with dashes
// (--session-secret for session.secret). The flag defaults are the
// configuration defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")

	fs.Int("http-port", 8080, "HTTP listen port")
	fs.Bool("http-trustproxy", false, "trust X-Forwarded-For and X-Real-IP for the client address")

	fs.String("db-driver", "sqlite", `storage backend: "sqlite" or "postgres"`)
	fs.String("db-path", "data/study-tracker.db", "SQLite database file")
	fs.String("db-url", "", "Postgres connection URL")

	fs.String("session-secret", "", "HMAC secret for session credentials (required)")
	fs.Duration("session-ttl", 30*24*time.Hour, "session lifetime")
	fs.Duration("verify-ttl", 24*time.Hour, "verification link lifetime")

	fs.String("app-baseurl", "http://localhost:8080", "public base URL used in verification links")

	fs.String("mail-url", "http://email-service:5000/send-email", "email service endpoint")
	fs.Duration("mail-timeout", 10*time.Second, "timeout for one email delivery")
	fs.Int("mail-workers", 2, "concurrent email senders")
	fs.Int("mail-queue", 64, "pending emails before new ones are dropped")

	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("log-format", "json", `"json" or "text"`)

	fs.Int("ratelimit-perminute", 20, "auth requests per minute per client")
	fs.Int("ratelimit-burst", 10, "auth request burst per client")

	fs.Int("bcrypt-cost", auth.DefaultCost, "bcrypt work factor")
}

// Load merges every source into a Config and validates it. fs must have
// been set up with RegisterFlags and parsed. Flag names map to keys by
// replacing dashes with dots.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg, err := Read(fs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read merges every source into a Config without validating it. Commands
// that only touch the database use it with ValidateDB.
func Read(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	// Set flags always win; unset flags only fill keys no other source set.
	flagKey := func(f *pflag.Flag) (string, any) {
		return strings.ReplaceAll(f.Name, "-", "."), posflag.FlagVal(fs, f)
	}
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey), nil); err != nil {
		return nil, fmt.Errorf("config: loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	return &cfg, nil
}

// envKey maps STUDYTRACK_SESSION_SECRET to session.secret.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}

	if err := c.ValidateDB(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Session.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("session.secret must be at least %d characters", MinSecretLength))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Verify.TTL <= 0 {
		errs = append(errs, errors.New("verify.ttl must be positive"))
	}

	if u, err := url.Parse(c.App.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("app.baseurl %q must be an absolute http(s) URL", c.App.BaseURL))
	}

	if c.Mail.URL == "" {
		errs = append(errs, errors.New("mail.url is required"))
	}
	if c.Mail.Timeout <= 0 {
		errs = append(errs, errors.New("mail.timeout must be positive"))
	}
	if c.Mail.Workers < 1 {
		errs = append(errs, errors.New("mail.workers must be at least 1"))
	}
	if c.Mail.Queue < 1 {
		errs = append(errs, errors.New("mail.queue must be at least 1"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if c.RateLimit.PerMinute < 1 {
		errs = append(errs, errors.New("ratelimit.perminute must be at least 1"))
	}
	if c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("ratelimit.burst must be at least 1"))
	}

	if c.Bcrypt.Cost < bcrypt.MinCost || c.Bcrypt.Cost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt.cost %d outside [%d, %d]", c.Bcrypt.Cost, bcrypt.MinCost, bcrypt.MaxCost))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateDB checks only the db.* keys.
func (c *Config) ValidateDB() error {
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return errors.New("db.path is required for the sqlite driver")
		}
	case "postgres":
		if c.DB.URL == "" {
			return errors.New("db.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("db.driver %q must be sqlite or postgres", c.DB.Driver)
	}
	return nil
}

// SecureCookies reports whether the session cookie should carry the Secure
// attribute, which is the case when the app is served over https.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.App.BaseURL, "https://")
}

// EnsureDataDir creates the directory holding the SQLite file.
func (c *Config) EnsureDataDir() error {
	if c.DB.Driver != "sqlite" || c.DB.Path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(c.DB.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", dir, err)
	}
	return nil
}
