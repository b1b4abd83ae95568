package cheat_report

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gtuk/discordwebhook"
	"github.com/r4g3baby/cheat-report/database"
	"go.uber.org/zap"
)

type (
	Status int

	Notification struct {
		Status Status
		Report database.Report
	}

	// Notifier delivers a report state transition to the chat channel.
	Notifier interface {
		Notify(ctx context.Context, notification Notification) error
	}

	WebhookNotifier struct {
		url      string
		username string
		send     func(url string, message discordwebhook.Message) error
	}

	// fanOut sends notifications on behalf of the pipeline and the
	// moderation actions. Failures are logged, never returned.
	fanOut struct {
		notifier Notifier
		log      *zap.SugaredLogger
	}
)

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
)

const maxFieldLength = 1024

var videoExtension = regexp.MustCompile(`(?i)\.(mp4|mov|webm|mkv|avi)(\?.*)?$`)

func (status Status) String() string {
	switch status {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (status Status) Title() string {
	switch status {
	case StatusPending:
		return "Report Pending ⚠️"
	case StatusApproved:
		return "Report Approved ✅"
	case StatusRejected:
		return "Report Rejected ❌"
	default:
		return "Report Status"
	}
}

func (status Status) Color() int {
	switch status {
	case StatusPending:
		return 0xfee75c
	case StatusApproved:
		return 0x57f287
	case StatusRejected:
		return 0xed4245
	default:
		return 0x95a5a6
	}
}

func (fan fanOut) send(ctx context.Context, status Status, report *database.Report) {
	if fan.notifier == nil || report == nil {
		return
	}

	if err := fan.notifier.Notify(ctx, Notification{Status: status, Report: *report}); err != nil {
		fan.log.Errorw("failed to send report notification",
			"report", report.ID,
			"status", status.String(),
			"error", err,
		)
	}
}

func reportEmbed(notification Notification) *discordgo.MessageEmbed {
	report := notification.Report

	embed := &discordgo.MessageEmbed{
		Color:  notification.Status.Color(),
		Title:  notification.Status.Title(),
		Fields: reportFields(report),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Report #%d", report.ID),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if report.EvidenceURL != "" && !videoExtension.MatchString(report.EvidenceURL) {
		embed.Image = &discordgo.MessageEmbedImage{URL: report.EvidenceURL}
	}

	return embed
}

func reportFields(report database.Report) []*discordgo.MessageEmbedField {
	target := report.SteamID
	if report.SteamName != "" {
		target = fmt.Sprintf("%s [%s]", report.SteamName, report.SteamID)
	}

	evidence := "None"
	if report.EvidenceURL != "" {
		evidence = report.EvidenceURL
		if videoExtension.MatchString(report.EvidenceURL) {
			evidence = fmt.Sprintf("[Watch video](%s)", report.EvidenceURL)
		}
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Report ID", Value: strconv.FormatUint(report.ID, 10), Inline: true},
		{Name: "Reported SteamID", Value: fmt.Sprintf("%s\n%s", target, legacySteamID(report.SteamID)), Inline: true},
		{Name: "Category", Value: orNone(string(report.Category)), Inline: true},
		{Name: "Description", Value: truncate(orNone(report.Description), maxFieldLength)},
		{Name: "Reporter", Value: reporterSummary(report.Reporter)},
		{Name: "Evidence", Value: evidence},
	}
	if report.MatchID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Match", Value: report.MatchID, Inline: true})
	}
	return fields
}

func reporterSummary(reporter *database.Account) string {
	if reporter == nil {
		return "Unknown (None)"
	}
	_, steamName := reporter.Identity(database.PlatformSteam)
	return fmt.Sprintf("%s (%s)", reporter.Username, orNone(steamName))
}

func NewWebhookNotifier(url, username string) *WebhookNotifier {
	return &WebhookNotifier{url: url, username: username, send: discordwebhook.SendMessage}
}

func (notifier *WebhookNotifier) Notify(_ context.Context, notification Notification) error {
	return notifier.send(notifier.url, discordwebhook.Message{
		Username: &notifier.username,
		Embeds:   &[]discordwebhook.Embed{webhookEmbed(reportEmbed(notification))},
	})
}

// webhookEmbed converts a bot embed into the webhook client's pointer-based
// form. Discord takes the colour as a decimal string there.
func webhookEmbed(embed *discordgo.MessageEmbed) discordwebhook.Embed {
	color := strconv.Itoa(embed.Color)
	fields := make([]discordwebhook.Field, 0, len(embed.Fields))
	for _, field := range embed.Fields {
		field := field
		fields = append(fields, discordwebhook.Field{Name: &field.Name, Value: &field.Value, Inline: &field.Inline})
	}

	converted := discordwebhook.Embed{
		Title:  &embed.Title,
		Color:  &color,
		Fields: &fields,
	}
	if embed.Footer != nil {
		converted.Footer = &discordwebhook.Footer{Text: &embed.Footer.Text}
	}
	if embed.Image != nil {
		converted.Image = &discordwebhook.Image{Url: &embed.Image.URL}
	}
	return converted
}

func orNone(value string) string {
	if strings.TrimSpace(value) == "" {
		return "None"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
