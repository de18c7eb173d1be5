// Package config loads the ranch server configuration.
//
// Values come from three places, later ones winning: built-in defaults,
// a TOML file, and environment variables (a .env file in the working
// directory is loaded into the environment first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is used when RANCH_CONFIG is unset.
const DefaultPath = "ranch.toml"

// Config holds all server configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Remote     RemoteConfig     `toml:"remote"`
	Auth       AuthConfig       `toml:"auth"`
	Blob       BlobConfig       `toml:"blob"`
	Classifier ClassifierConfig `toml:"classifier"`
	Log        LogConfig        `toml:"log"`
}

type ServerConfig struct {
	Port int `toml:"port"`
	// BaseURL is the public address, used in verification links.
	BaseURL      string   `toml:"base_url"`
	CORSOrigins  []string `toml:"cors_origins"`
	CookieSecure bool     `toml:"cookie_secure"`
}

// DatabaseConfig selects the SQL database holding accounts, and the ranch
// tables unless Remote is set.
type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite or pgx
	DSN    string `toml:"dsn"`
}

// RemoteConfig points the ranch tables at a hosted PostgREST backend.
// Empty URL keeps them in the local database.
type RemoteConfig struct {
	URL    string `toml:"url,omitempty"`
	APIKey string `toml:"api_key,omitempty"`
}

type AuthConfig struct {
	JWTSecret  string   `toml:"jwt_secret,omitempty"`
	SessionTTL Duration `toml:"session_ttl"`
	InviteCode string   `toml:"invite_code"`
}

type BlobConfig struct {
	Driver          string `toml:"driver"` // fs, memory or s3
	Bucket          string `toml:"bucket"`
	Root            string `toml:"root,omitempty"`
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
	PathStyle       bool   `toml:"path_style,omitempty"`
}

// ClassifierConfig locates the horse identification service. Empty URL
// disables /api/identify.
type ClassifierConfig struct {
	URL     string   `toml:"url,omitempty"`
	Timeout Duration `toml:"timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// Duration is a time.Duration written as "24h" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns the default configuration. It has no JWT secret,
// so it does not validate on its own.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			BaseURL:     "http://localhost:8080",
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/ranch.db",
		},
		Auth: AuthConfig{
			SessionTTL: Duration{24 * time.Hour},
			InviteCode: "RANCH2017",
		},
		Blob: BlobConfig{
			Driver: "fs",
			Bucket: "contracts",
			Root:   "data/blobs",
		},
		Classifier: ClassifierConfig{
			Timeout: Duration{30 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Path returns the config file path from RANCH_CONFIG or the default.
func Path() string {
	if p := os.Getenv("RANCH_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load builds the configuration from defaults, the TOML file at path (a
// missing file is fine), .env and the environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	// .env is optional.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	str("BASE_URL", &cfg.Server.BaseURL)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid COOKIE_SECURE %q: %w", v, err)
		}
		cfg.Server.CookieSecure = b
	}

	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_DSN", &cfg.Database.DSN)
	str("REMOTE_URL", &cfg.Remote.URL)
	str("REMOTE_KEY", &cfg.Remote.APIKey)

	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("INVITE_CODE", &cfg.Auth.InviteCode)
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if err := cfg.Auth.SessionTTL.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid SESSION_TTL %q: %w", v, err)
		}
	}

	str("BLOB_DRIVER", &cfg.Blob.Driver)
	str("BLOB_BUCKET", &cfg.Blob.Bucket)
	str("BLOB_ROOT", &cfg.Blob.Root)
	str("S3_REGION", &cfg.Blob.Region)
	str("S3_ENDPOINT", &cfg.Blob.Endpoint)
	str("S3_ACCESS_KEY_ID", &cfg.Blob.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &cfg.Blob.SecretAccessKey)
	if v := os.Getenv("S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid S3_PATH_STYLE %q: %w", v, err)
		}
		cfg.Blob.PathStyle = b
	}

	str("CLASSIFIER_URL", &cfg.Classifier.URL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every problem with cfg at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite or pgx", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Remote.URL != "" && c.Remote.APIKey == "" {
		errs = append(errs, errors.New("remote.api_key is required with remote.url"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret (JWT_SECRET) must be at least 16 characters"))
	}
	if c.Auth.SessionTTL.Duration <= 0 {
		errs = append(errs, errors.New("auth.session_ttl must be positive"))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.Bucket == "" {
			errs = append(errs, errors.New("blob.bucket is required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver %q must be fs, memory or s3", c.Blob.Driver))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}
