package cheat_report

import (
	"github.com/bwmarrin/discordgo"
)

func (bot *Bot) registerCommands() {
	bot.handlers = append(bot.handlers, handler{f: func(s *discordgo.Session, _ *discordgo.Ready) {
		appID, guildID := bot.cfg.Bot.AppID, bot.cfg.Bot.GuildID
		if appID == "" {
			appID = s.State.User.ID
		}

		if cmds, err := s.ApplicationCommands(appID, guildID); err == nil {
			for _, cmd := range cmds {
				if _, ok := bot.commands[cmd.Name]; !ok {
					if err := s.ApplicationCommandDelete(appID, guildID, cmd.ID); err != nil {
						bot.log.Errorw("failed to delete application command",
							"command", cmd.Name,
							"error", err,
						)
					}
				}
			}
		} else {
			bot.log.Errorw("failed to list application commands",
				"error", err,
			)
		}

		for name, cmd := range bot.commands {
			cmd.command.Name = name
			if _, err := s.ApplicationCommandCreate(appID, guildID, cmd.command); err != nil {
				bot.log.Errorw("failed to create application command",
					"command", cmd.command.Name,
					"error", err,
				)
			}
		}
	}, once: true})

	bot.handlers = append(bot.handlers, handler{f: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			if command, ok := bot.commands[i.ApplicationCommandData().Name]; ok {
				command.handler(s, i)
			}
		case discordgo.InteractionMessageComponent:
			customID := i.MessageComponentData().CustomID
			for regex, handler := range bot.regexComponents {
				if match := regex.FindStringSubmatch(customID); len(match) > 0 {
					handler(s, i, match)
					break
				}
			}
		}
	}})
}
