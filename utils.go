package cheat_report

import (
	"github.com/bwmarrin/discordgo"
	"github.com/r4g3baby/cheat-report/config"
)

// isServerAdmin reports whether the member is a configured admin or one of
// the users and roles mentioned on new reports.
func isServerAdmin(cfg *config.Config, member *discordgo.Member) bool {
	if member == nil || member.User == nil {
		return false
	}

	for _, mRole := range member.Roles {
		for _, aRole := range cfg.Admins.Roles {
			if mRole == aRole {
				return true
			}
		}
		for _, nRole := range cfg.Notify.Mentions.Roles {
			if mRole == nRole {
				return true
			}
		}
	}

	for _, aUser := range cfg.Admins.Users {
		if aUser == member.User.ID {
			return true
		}
	}
	for _, nUser := range cfg.Notify.Mentions.Users {
		if nUser == member.User.ID {
			return true
		}
	}
	return false
}

func simpleInteractionResponse(s *discordgo.Session, i *discordgo.Interaction, message string) error {
	return s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: message,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
