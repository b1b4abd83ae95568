package cheat_report

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/r4g3baby/cheat-report/config"
	"github.com/r4g3baby/cheat-report/database"
	"go.uber.org/zap"
)

type (
	handler struct {
		f    interface{}
		once bool
	}

	command struct {
		command *discordgo.ApplicationCommand
		handler func(s *discordgo.Session, i *discordgo.InteractionCreate)
	}

	// ReportModerator is the part of Moderator the bot buttons use.
	ReportModerator interface {
		Approve(ctx context.Context, reportID uint64) (*database.Report, error)
		Reject(ctx context.Context, reportID uint64) (*database.Report, error)
	}

	// Bot owns the gateway session. It serves the /report command, posts
	// report notifications and resolves Discord display names.
	Bot struct {
		session   *discordgo.Session
		cfg       *config.Config
		store     *database.Store
		moderator ReportModerator
		log       *zap.SugaredLogger

		handlers        []handler
		commands        map[string]command
		regexComponents map[*regexp.Regexp]func(s *discordgo.Session, i *discordgo.InteractionCreate, match []string)
	}
)

func NewBot(cfg *config.Config, store *database.Store, log *zap.SugaredLogger) (*Bot, error) {
	discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
		switch msgL {
		case discordgo.LogError:
			log.Errorf(format, a...)
		case discordgo.LogWarning:
			log.Warnf(format, a...)
		case discordgo.LogInformational:
			log.Infof(format, a...)
		case discordgo.LogDebug:
			log.Debugf(format, a...)
		}
	}

	session, err := discordgo.New("Bot " + cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds)
	if cfg.Debug {
		session.LogLevel = discordgo.LogDebug
	}

	bot := &Bot{
		session:         session,
		cfg:             cfg,
		store:           store,
		log:             log,
		commands:        map[string]command{},
		regexComponents: map[*regexp.Regexp]func(s *discordgo.Session, i *discordgo.InteractionCreate, match []string){},
	}
	bot.registerStatus()
	bot.registerCommands()
	bot.registerReports()

	return bot, nil
}

// UseModerator enables the approve and reject buttons on new reports.
func (bot *Bot) UseModerator(moderator ReportModerator) {
	bot.moderator = moderator
}

func (bot *Bot) Start() error {
	for _, h := range bot.handlers {
		if h.once {
			bot.session.AddHandlerOnce(h.f)
		} else {
			bot.session.AddHandler(h.f)
		}
	}

	if err := bot.session.Open(); err != nil {
		return fmt.Errorf("error opening discord connection: %w", err)
	}
	return nil
}

func (bot *Bot) Close() error {
	return bot.session.Close()
}

// Notify posts the report to every configured channel.
func (bot *Bot) Notify(ctx context.Context, notification Notification) error {
	message := &discordgo.MessageSend{
		Content: getReportMentions(bot.cfg.Notify.Mentions),
		Embeds:  []*discordgo.MessageEmbed{reportEmbed(notification)},
	}
	if notification.Status == StatusPending && bot.moderator != nil {
		message.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: getReportButtons(notification.Report)},
		}
	}

	var errs []error
	for _, channel := range bot.cfg.Notify.Channels {
		if _, err := bot.session.ChannelMessageSendComplex(channel, message, discordgo.WithContext(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

// DisplayName returns the user's global name, falling back to the username.
func (bot *Bot) DisplayName(ctx context.Context, userID string) (string, error) {
	user, err := bot.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	if user.GlobalName != "" {
		return user.GlobalName, nil
	}
	return user.Username, nil
}

func (bot *Bot) registerStatus() {
	bot.handlers = append(bot.handlers, handler{f: func(s *discordgo.Session, _ *discordgo.Ready) {
		if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
			Status: "online",
			Activities: []*discordgo.Activity{{
				Name: "for new reports",
				Type: discordgo.ActivityTypeWatching,
			}},
		}); err != nil {
			bot.log.Errorw("failed to update bot status",
				"error", err,
			)
		}
	}})
}
