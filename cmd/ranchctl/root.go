package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/jacobs-ranch/internal/config"
	"github.com/sakif/jacobs-ranch/internal/metrics"
	"github.com/sakif/jacobs-ranch/internal/remote"
	"github.com/sakif/jacobs-ranch/internal/repository/sqlstore"
	"github.com/sakif/jacobs-ranch/internal/server"
	"github.com/sakif/jacobs-ranch/pkg/logging"
)

var (
	flagConfig  string
	flagDB      string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "ranchctl",
	Short:         "Jacobs Ranch administration",
	Long:          "Preview fees, inspect stalls, change ranch settings and upload boarding contracts.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "  error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", config.Path(), "Config file")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Database DSN (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log table store calls")
}

// env is what a command works against.
type env struct {
	cfg    config.Config
	db     *sqlstore.DB
	tables remote.TableStore
	logger *slog.Logger
}

func (e *env) Close() { e.db.Close() }

// openEnv loads configuration and opens the database and table store.
func openEnv() (*env, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.Database.DSN = flagDB
	}

	logger := logging.Discard()
	if flagVerbose {
		logger = logging.New(os.Stderr, slog.LevelDebug, cfg.Log.Format)
	}

	db, err := server.OpenDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	tables, err := server.OpenTables(cfg.Remote, db, metrics.New())
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{cfg: cfg, db: db, tables: tables, logger: logger}, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
