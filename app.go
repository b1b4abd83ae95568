package cheat_report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/r4g3baby/cheat-report/config"
	"github.com/r4g3baby/cheat-report/database"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// App wires every component from the configuration and owns their lifetimes.
type App struct {
	cfg *config.Config
	log *zap.SugaredLogger

	store    *database.Store
	bot      *Bot
	progress *ProgressHub
	pipeline *Pipeline
	sync     *NameSync
	http     *http.Server
}

func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	store, err := database.Open(cfg.Database, cfg.Debug)
	if err != nil {
		return nil, err
	}

	app := &App{cfg: cfg, log: log, store: store}

	blobs, err := NewBlobStore(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if blobs == nil {
		log.Warn("no blob store configured, evidence uploads are disabled")
	}

	var notifier Notifier
	if cfg.Bot.Token != "" {
		if app.bot, err = NewBot(cfg, store, log); err != nil {
			_ = store.Close()
			return nil, err
		}
		notifier = app.bot
	} else if cfg.Notify.Webhook != "" {
		notifier = NewWebhookNotifier(cfg.Notify.Webhook, "Cheat Report")
	} else {
		log.Warn("no discord bot or webhook configured, notifications are disabled")
	}

	profiles := NewSteamProfiles(cfg.SteamKey)
	tokens := NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)
	accounts := NewAccountService(store, tokens, profiles, log)

	if err := accounts.Bootstrap(ctx, cfg.Account); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create bootstrap account: %w", err)
	}

	app.progress = NewProgressHub(log)
	app.pipeline = NewPipeline(store, log, PipelineOptions{
		Blobs:    blobs,
		Notifier: notifier,
		Progress: app.progress,
		Names:    profiles,
	})

	moderator := NewModerator(store, notifier, log)
	if app.bot != nil {
		app.bot.UseModerator(moderator)
	}

	bridge := NewBridge(store, tokens, NewBindTokenStore(cfg.Bind.TTL), cfg.Bind, log)
	providers := []IdentityProvider{
		NewSteamProvider(cfg.OAuth.Steam, cfg.BaseURL, profiles),
		NewDiscordProvider(cfg.OAuth.Discord, cfg.BaseURL, cfg.Bind.SecureCookie),
	}

	if cfg.Sync.Enabled {
		var discord DiscordNames
		if app.bot != nil {
			discord = app.bot
		}
		app.sync = NewNameSync(store, profiles, discord, log)
	}

	app.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewServer(cfg, log, accounts, app.pipeline, moderator, bridge, app.progress, providers...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

func (app *App) Start() error {
	if app.bot != nil {
		if err := app.bot.Start(); err != nil {
			return err
		}
	}

	if app.sync != nil {
		if err := app.sync.Start(app.cfg.Sync.Cron); err != nil {
			return err
		}
	}

	go func() {
		app.log.Infow("http server listening",
			"address", app.cfg.Listen,
		)
		if err := app.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Errorw("http server stopped",
				"error", err,
			)
		}
	}()

	return nil
}

// Shutdown stops accepting requests, waits for queued reports, then closes
// the remaining connections.
func (app *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.http.Shutdown(ctx); err != nil {
		app.log.Errorw("failed to shut down http server",
			"error", err,
		)
	}

	if app.sync != nil {
		app.sync.Stop()
	}

	if err := app.pipeline.Drain(ctx); err != nil {
		app.log.Errorw("gave up waiting for queued reports",
			"error", err,
		)
	}
	app.progress.Close()

	if app.bot != nil {
		if err := app.bot.Close(); err != nil {
			app.log.Errorw("failed to safely close discord connection",
				"error", err,
			)
		}
	}

	if err := app.store.Close(); err != nil {
		app.log.Errorw("failed to close database",
			"error", err,
		)
	}
}
