package cheat_report

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/r4g3baby/cheat-report/database"
	"go.uber.org/zap"
)

const syncTimeout = 10 * time.Minute

type (
	DiscordNames interface {
		DisplayName(ctx context.Context, userID string) (string, error)
	}

	// NameSync periodically refreshes the cached Steam and Discord display
	// names of bound accounts.
	NameSync struct {
		store     *database.Store
		steam     NameResolver
		discord   DiscordNames
		scheduler *gocron.Scheduler
		log       *zap.SugaredLogger
	}
)

func NewNameSync(store *database.Store, steam NameResolver, discord DiscordNames, log *zap.SugaredLogger) *NameSync {
	return &NameSync{
		store:     store,
		steam:     steam,
		discord:   discord,
		scheduler: gocron.NewScheduler(time.UTC),
		log:       log,
	}
}

func (ns *NameSync) Start(expression string) error {
	if _, err := ns.scheduler.Cron(expression).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		ns.Run(ctx)
	}); err != nil {
		return fmt.Errorf("failed to create name sync job: %w", err)
	}

	ns.scheduler.StartAsync()
	return nil
}

func (ns *NameSync) Stop() {
	ns.scheduler.Stop()
}

// Run refreshes every bound identity once. Failures are logged per account.
func (ns *NameSync) Run(ctx context.Context) {
	if ns.steam != nil {
		ns.refresh(ctx, database.PlatformSteam, func(steamID string) (string, error) {
			if cached, ok := ns.steam.(interface{ Forget(steamID string) }); ok {
				cached.Forget(steamID)
			}
			return ns.steam.Name(ctx, steamID)
		})
	}
	if ns.discord != nil {
		ns.refresh(ctx, database.PlatformDiscord, func(userID string) (string, error) {
			return ns.discord.DisplayName(ctx, userID)
		})
	}
}

func (ns *NameSync) refresh(ctx context.Context, platform database.Platform, lookup func(id string) (string, error)) {
	accounts, err := ns.store.AccountsBoundTo(ctx, platform)
	if err != nil {
		ns.log.Errorw("failed to list bound accounts",
			"platform", platform,
			"error", err,
		)
		return
	}

	var updated int
	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}

		externalID, current := account.Identity(platform)
		name, err := lookup(externalID)
		if err != nil {
			ns.log.Warnw("failed to look up display name",
				"platform", platform,
				"account", account.ID,
				"error", err,
			)
			continue
		}
		if name == "" || name == current {
			continue
		}

		if err := ns.store.UpdateDisplayName(ctx, account.ID, platform, name); err != nil {
			ns.log.Errorw("failed to update display name",
				"platform", platform,
				"account", account.ID,
				"error", err,
			)
			continue
		}
		updated++
	}

	ns.log.Infow("display names refreshed",
		"platform", platform,
		"accounts", len(accounts),
		"updated", updated,
	)
}
