package cheat_report

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/r4g3baby/cheat-report/config"
	"github.com/r4g3baby/cheat-report/database"
)

const (
	reportQueryLimit   = 5
	interactionTimeout = 10 * time.Second
)

func (bot *Bot) registerReports() {
	bot.commands["report"] = command{
		command: &discordgo.ApplicationCommand{
			Type:        discordgo.ChatApplicationCommand,
			Description: "Look up submitted reports",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "SteamID, player name or reporter Discord ID",
					Required:    true,
				},
			},
		},
		handler: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if !isServerAdmin(bot.cfg, i.Member) {
				bot.respond(s, i, "You must be an admin in order to use this command.")
				return
			}

			query := i.ApplicationCommandData().Options[0].StringValue()

			ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
			defer cancel()

			reports, err := bot.store.Reports(ctx, database.ReportFilter{Query: query, Limit: reportQueryLimit})
			if err != nil {
				bot.log.Errorw("failed to query reports",
					"query", query,
					"error", err,
				)
				bot.respond(s, i, "Failed to query reports.")
				return
			}

			if len(reports) == 0 {
				bot.respond(s, i, "No reports found.")
				return
			}

			var embeds []*discordgo.MessageEmbed
			for _, report := range reports {
				embeds = append(embeds, reportEmbed(Notification{Status: reportStatus(report), Report: report}))
			}

			if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Embeds: embeds,
					Flags:  discordgo.MessageFlagsEphemeral,
				},
			}); err != nil {
				bot.log.Errorw("failed to respond to interaction",
					"error", err,
				)
			}
		},
	}

	bot.regexComponents[regexp.MustCompile(`^report_(approve|reject)_(\d+)$`)] = func(s *discordgo.Session, i *discordgo.InteractionCreate, match []string) {
		if bot.moderator == nil {
			bot.respond(s, i, "Moderation is not available.")
			return
		}
		if !isServerAdmin(bot.cfg, i.Member) {
			bot.respond(s, i, "You are not allowed to handle this report.")
			return
		}

		reportID, err := strconv.ParseUint(match[2], 10, 64)
		if err != nil {
			bot.respond(s, i, "Report does not exist.")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
		defer cancel()

		var (
			report *database.Report
			status Status
		)
		switch match[1] {
		case "approve":
			report, err = bot.moderator.Approve(ctx, reportID)
			status = StatusApproved
		default:
			report, err = bot.moderator.Reject(ctx, reportID)
			status = StatusRejected
		}

		if err != nil {
			switch {
			case errors.Is(err, database.ErrNotFound):
				bot.respond(s, i, "Report does not exist.")
			case errors.Is(err, database.ErrAlreadyApproved):
				bot.respond(s, i, "This report has already been approved.")
			default:
				bot.log.Errorw("failed to moderate report",
					"report", reportID,
					"action", match[1],
					"error", err,
				)
				bot.respond(s, i, "Oops, something went wrong.")
			}
			return
		}

		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Embeds:     []*discordgo.MessageEmbed{reportEmbed(Notification{Status: status, Report: *report})},
				Components: []discordgo.MessageComponent{},
			},
		}); err != nil {
			bot.log.Errorw("failed to respond to interaction",
				"error", err,
			)
		}
	}
}

func (bot *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	if err := simpleInteractionResponse(s, i.Interaction, message); err != nil {
		bot.log.Errorw("failed to respond to interaction",
			"error", err,
		)
	}
}

func reportStatus(report database.Report) Status {
	if report.Approved {
		return StatusApproved
	}
	return StatusPending
}

func getReportMentions(mentions config.Mentions) string {
	var mentionsList []string
	for _, role := range mentions.Roles {
		mentionsList = append(mentionsList, fmt.Sprintf("<@&%s>", role))
	}
	for _, admin := range mentions.Users {
		mentionsList = append(mentionsList, fmt.Sprintf("<@%s>", admin))
	}
	if len(mentionsList) > 0 {
		return fmt.Sprintf("**⇓ %s ⇓**", strings.Join(mentionsList, " "))
	}
	return ""
}

func getReportButtons(report database.Report) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.Button{
			CustomID: fmt.Sprintf("report_approve_%d", report.ID),
			Label:    "Approve",
			Style:    discordgo.SuccessButton,
		},
		discordgo.Button{
			CustomID: fmt.Sprintf("report_reject_%d", report.ID),
			Label:    "Reject",
			Style:    discordgo.DangerButton,
		},
	}
}
