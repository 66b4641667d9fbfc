package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chao7150/wpmastodon/internal/cache"
	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/media"
	"github.com/chao7150/wpmastodon/internal/oauth"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/remote"
	"github.com/chao7150/wpmastodon/internal/server"
	"github.com/chao7150/wpmastodon/internal/timeline"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := openEnv(serveMigrate)
		if err != nil {
			return err
		}
		defer e.Close()
		return serve(ctx, e)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, e *env) error {
	cfg, logger := e.cfg, e.logger
	if cfg.OAuth.SessionSecret == "" {
		return errors.New("oauth.session_secret (or WPM_SESSION_SECRET) must be set")
	}

	maxIDs, err := e.db.MaxNativeIDs(ctx)
	if err != nil {
		return err
	}
	if err := idmap.CheckBands(maxIDs); err != nil {
		return err
	}

	c, err := cache.NewFromConfig(cfg.Cache, e.store)
	if err != nil {
		return err
	}
	if closer, ok := c.(io.Closer); ok {
		defer closer.Close()
	}

	resolver := remote.NewFromConfig(cfg.Remote, c, logger)
	if cfg.NATS.URL != "" {
		conn, err := remote.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		defer conn.Drain()
		if _, err := resolver.SubscribeRefresh(conn, cfg.NATS.Subject); err != nil {
			return err
		}
		resolver.SetRefresher(remote.NewNATSRefresher(conn, cfg.NATS.Subject, logger))
	}

	proj := projection.New(e.store, idmap.New(e.store), projection.Options{
		BaseURL:  cfg.Server.BaseURL,
		Domain:   cfg.Site.Domain,
		Language: cfg.Site.Language,
		Logger:   logger.With().Str("component", "projection").Logger(),
		Remote:   resolver,
	})

	provider := oauth.New(e.store, cfg.OAuth, logger.With().Str("component", "oauth").Logger())
	if interval := cfg.OAuth.SweepInterval.Duration; interval > 0 {
		go provider.RunSweeper(ctx, interval)
	}

	blobs, err := media.NewBlobStoreFromConfig(ctx, cfg.Media)
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Config:    cfg,
		Store:     e.store,
		Projector: proj,
		Timeline:  timeline.New(e.store, proj, logger.With().Str("component", "timeline").Logger()),
		OAuth:     provider,
		Sessions:  oauth.NewSessions(e.store, cfg.OAuth.SessionSecret),
		Media:     media.NewLibrary(blobs, e.store, cfg.Media.BaseURL),
		Remote:    resolver,
		Logger:    logger,
	})
	logger.Info().Str("addr", cfg.Server.Addr).Str("base_url", cfg.Server.BaseURL).Msg("starting server")
	return srv.Start(ctx, cfg.Server.Addr)
}
