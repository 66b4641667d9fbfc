// Command wpmastodon serves the Mastodon client API over a blog database and
// carries the maintenance commands for it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chao7150/wpmastodon/internal/config"
	"github.com/chao7150/wpmastodon/internal/database"
	"github.com/chao7150/wpmastodon/internal/logging"
	"github.com/chao7150/wpmastodon/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "wpmastodon",
	Short:         "Mastodon API for a blog",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "wpmastodon.toml", "path to the config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what every command opens: config, logger, database and store.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *database.DB
	store  *store.Store
}

// openEnv loads the config and opens the database. migrate applies pending
// migrations instead of refusing to run on an outdated schema.
func openEnv(migrate bool) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if migrate || cfg.Database.Type == "memory" {
		err = db.Migrate()
	} else {
		err = db.CheckMigrations()
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  store.New(db.DB, store.RealClock{}),
	}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}

// withEnv runs fn with an opened env.
func withEnv(fn func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd.Context(), e, args)
	}
}
