// Package notify delivers chat messages through a Slack incoming webhook.
// Delivery is best effort: failures are logged and never returned.
package notify

import (
	"context"
	"time"

	"epoch/internal/config"
	"epoch/internal/logger"

	"github.com/slack-go/slack"
)

const (
	IconLoudspeaker = ":loudspeaker:"
	IconOnline      = ":green_heart:"
	IconOffline     = ":broken_heart:"
	IconPaused      = ":yellow_heart:"
	IconReport      = ":bar_chart:"
	IconRocket      = ":rocket:"
	IconBoom        = ":boom:"
)

type Sink interface {
	DirectMessage(ctx context.Context, userID, text string)
	ChannelMessage(ctx context.Context, channel, text, username, icon string)
	Post(ctx context.Context, msg *slack.WebhookMessage)
}

type Slack struct {
	webhookURL string
	botName    string
	timeout    time.Duration
}

func NewSlack(cfg config.SlackConfig) *Slack {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Slack{webhookURL: cfg.WebhookURL, botName: cfg.BotName, timeout: timeout}
}

// DirectMessage posts to the user's own channel, addressed by chat user id.
func (s *Slack) DirectMessage(ctx context.Context, userID, text string) {
	s.ChannelMessage(ctx, userID, text, s.botName, IconLoudspeaker)
}

func (s *Slack) ChannelMessage(ctx context.Context, channel, text, username, icon string) {
	s.Post(ctx, &slack.WebhookMessage{
		Channel:   channel,
		Text:      text,
		Username:  username,
		IconEmoji: icon,
	})
}

func (s *Slack) Post(ctx context.Context, msg *slack.WebhookMessage) {
	if s.webhookURL == "" {
		logger.DebugContext(ctx, "notify.skip", "channel", msg.Channel, "text", msg.Text)
		return
	}
	if msg.Username == "" {
		msg.Username = s.botName
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		logger.WarnContext(ctx, "notify.failed", "channel", msg.Channel, "err", err)
		return
	}
	logger.DebugContext(ctx, "notify.sent", "channel", msg.Channel)
}
