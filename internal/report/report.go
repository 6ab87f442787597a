// Package report builds the chat messages and spreadsheets that summarize
// worked time.
package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"epoch/internal/config"
	"epoch/internal/goal"
	"epoch/internal/model"

	"github.com/slack-go/slack"
)

const (
	SessionColor = "#082b63"
	footerText   = "Epoch API"
)

type Branding struct {
	BotName       string
	CompanyName   string
	CompanyURL    string
	IconURL       string
	ReportChannel string
}

func BrandingFrom(cfg config.SlackConfig) Branding {
	return Branding{
		BotName:       cfg.BotName,
		CompanyName:   cfg.CompanyName,
		CompanyURL:    cfg.CompanyURL,
		IconURL:       cfg.IconURL,
		ReportChannel: cfg.ReportChannel,
	}
}

// Footer stamps the common footer on a and dates it at.
func (b Branding) Footer(a *slack.Attachment, at time.Time) {
	a.Footer = footerText
	a.FooterIcon = b.IconURL
	if !at.IsZero() {
		a.Ts = json.Number(strconv.FormatInt(at.Unix(), 10))
	}
}

func Field(title, value string) slack.AttachmentField {
	return slack.AttachmentField{Title: title, Value: value, Short: true}
}

func Hours(h float64) string { return fmt.Sprintf("%.2f", h) }

// CommitLines renders one "`<url|repo>`: subject" line per commit.
func CommitLines(commits []model.CommitLog) string {
	var sb strings.Builder
	for _, c := range commits {
		subject, _, _ := strings.Cut(c.Message, "\n")
		fmt.Fprintf(&sb, "`<%s|%s>`: %s\n", c.URL, c.Repository.Name, strings.TrimSpace(subject))
	}
	return sb.String()
}

// Session is the end-of-session summary posted to the report channel.
func Session(b Branding, user model.User, commits []model.CommitLog, workedHours float64, g goal.Goal, now time.Time) *slack.WebhookMessage {
	a := slack.Attachment{
		Color:     SessionColor,
		Title:     user.Username,
		TitleLink: b.CompanyURL,
		Text:      CommitLines(commits),
		Fields: []slack.AttachmentField{
			Field("Session Hours (today)", Hours(workedHours)),
			Field("Goal Hours (today)", g.String()),
		},
	}
	b.Footer(&a, now)
	return &slack.WebhookMessage{
		Channel:     b.ReportChannel,
		Username:    b.BotName,
		IconEmoji:   ":bar_chart:",
		Attachments: []slack.Attachment{a},
	}
}
