package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/jacobs-ranch/internal/auth"
	"github.com/sakif/jacobs-ranch/internal/blob"
	"github.com/sakif/jacobs-ranch/internal/config"
	"github.com/sakif/jacobs-ranch/internal/identify"
	"github.com/sakif/jacobs-ranch/internal/metrics"
	"github.com/sakif/jacobs-ranch/internal/notify"
	"github.com/sakif/jacobs-ranch/internal/remote"
	"github.com/sakif/jacobs-ranch/internal/remote/rest"
	"github.com/sakif/jacobs-ranch/internal/repository/sqlstore"
	"github.com/sakif/jacobs-ranch/internal/service"
)

// OpenDatabase opens the SQL database of cfg, creating the directory of
// a SQLite file first.
func OpenDatabase(cfg config.DatabaseConfig) (*sqlstore.DB, error) {
	if cfg.Driver == sqlstore.DriverSQLite && cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	return sqlstore.Open(cfg.Driver, cfg.DSN)
}

// OpenTables picks the table store: the hosted REST backend when one is
// configured, db otherwise. Every call is reported to m.
func OpenTables(cfg config.RemoteConfig, db *sqlstore.DB, m *metrics.Metrics) (remote.TableStore, error) {
	var tables remote.TableStore = db
	if cfg.URL != "" {
		client, err := rest.New(rest.Config{BaseURL: cfg.URL, APIKey: cfg.APIKey})
		if err != nil {
			return nil, fmt.Errorf("creating remote client: %w", err)
		}
		tables = client
	}
	return remote.Instrument(tables, m), nil
}

// OpenBlobs opens the contract store.
func OpenBlobs(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	return blob.Open(ctx, blob.Config{
		Driver:          cfg.Driver,
		Bucket:          cfg.Bucket,
		Root:            cfg.Root,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		PathStyle:       cfg.PathStyle,
	})
}

// Build assembles every dependency described by cfg and returns a ready
// Server. On failure, whatever was opened is closed again.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := metrics.New()

	db, err := OpenDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tables, err := OpenTables(cfg.Remote, db, m)
	if err != nil {
		db.Close()
		return nil, err
	}

	blobs, err := OpenBlobs(ctx, cfg.Blob)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL.Duration)
	if err != nil {
		db.Close()
		return nil, err
	}

	bus := notify.NewBus(nil)
	mailer := service.LogMailer{Logger: logger, BaseURL: cfg.Server.BaseURL}
	localAuth := service.NewLocalAuth(db, tokens, auth.NewPasswordService(), mailer, logger)
	sessions := service.NewSessions(tables, bus, service.SystemClock, logger, m)

	var classifier identify.Classifier
	if cfg.Classifier.URL != "" {
		classifier = identify.NewClient(cfg.Classifier.URL, &http.Client{Timeout: cfg.Classifier.Timeout.Duration})
	} else {
		logger.Warn("classifier URL not set, /api/identify is disabled")
	}

	logger.Info("dependencies ready",
		slog.String("database", db.Driver()),
		slog.Bool("remoteTables", cfg.Remote.URL != ""),
		slog.String("blobs", string(blobs.Driver())),
	)

	deps := Deps{
		Accounts:   service.NewAccountService(localAuth, tables, sessions, cfg.Auth.InviteCode, logger),
		Validator:  localAuth,
		Sessions:   sessions,
		Contracts:  service.NewContractService(blobs, logger),
		Classifier: classifier,
		Bus:        bus,
		Metrics:    m,
		Health:     db.Ping,
		Closers:    []func() error{db.Close},
	}
	return New(Config{
		Port:         cfg.Server.Port,
		CORSOrigins:  cfg.Server.CORSOrigins,
		CookieSecure: cfg.Server.CookieSecure,
	}, deps, logger), nil
}
