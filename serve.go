package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/drivegram/internal/auth"
	"github.com/tonimelisma/drivegram/internal/bot"
	"github.com/tonimelisma/drivegram/internal/config"
	"github.com/tonimelisma/drivegram/internal/session"
	"github.com/tonimelisma/drivegram/internal/telegram"
	"github.com/tonimelisma/drivegram/internal/transfer"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		Long: `Long-poll Telegram for messages and relay the files behind each Drive
link back to the sender. Size limits in the config file are reloaded when the
file changes. The first SIGINT/SIGTERM drains active handlers; a second one
exits immediately.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg

	if err := cfg.RequireBot(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger, closeLog, err := buildLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := drainOnSignal(cmd.Context(), logger)
	holder := config.NewHolder(cfg, resolvedPath)
	clients := newHTTPClients(cfg)

	svc, err := openServices(ctx, cfg, clients, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	engine, err := transfer.NewEngine(transfer.Options{
		ScratchDir:      cfg.Transfers.ScratchPath(),
		Limits:          transferLimits(holder),
		TransferTimeout: cfg.Network.TransferTimeoutDuration(),
	}, logger)
	if err != nil {
		return err
	}

	authorizer := auth.New(auth.Options{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURI:  cfg.Google.RedirectURI,
		AuthURL:      cfg.Google.AuthURL,
		TokenURL:     cfg.Google.TokenURL,
		Scopes:       cfg.Google.Scopes,
		AttemptTTL:   cfg.Auth.AttemptTTLDuration(),
		MaxPending:   cfg.Auth.MaxPending,
		HTTPClient:   clients.api,
	}, logger)

	tg := telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.BotToken, clients.telegram, logger)

	// Fail fast on a bad token instead of inside the poll loop.
	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("serve: checking bot token: %w", err)
	}

	orch := session.New(session.Deps{
		Notifier:       bot.NewNotifier(tg),
		Credentials:    svc.creds,
		Authorizer:     authorizer,
		Transfers:      engine,
		Remotes:        remoteFactory(holder, svc.creds, clients, logger),
		Destinations:   bot.Destinations(tg),
		Jobs:           svc.jobs(),
		Limits:         transferLimits(holder),
		InterFileDelay: interFileDelay(holder),
		RedirectURI:    cfg.Google.RedirectURI,
		AdminChatID:    cfg.Telegram.AdminUserID,
	}, logger)

	runner := bot.NewRunner(tg, orch, authorizer,
		cfg.Telegram.PollTimeoutDuration(), cfg.Telegram.MaxConcurrentUpdates, logger)

	logger.Info("bot started",
		slog.String("username", me.Username),
		slog.String("version", version),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("scratch_dir", cfg.Transfers.ScratchPath()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return authorizer.Run(gctx) })
	g.Go(func() error { return config.Watch(gctx, holder, config.ReadEnvOverrides(), logger) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("bot stopped")

	return nil
}
