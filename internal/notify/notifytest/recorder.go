// Package notifytest records outgoing notifications for assertions.
package notifytest

import (
	"context"
	"sync"

	"github.com/slack-go/slack"
)

type Message struct {
	Channel     string
	Text        string
	Username    string
	Icon        string
	Attachments []slack.Attachment
}

type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) DirectMessage(ctx context.Context, userID, text string) {
	r.add(Message{Channel: userID, Text: text, Icon: ":loudspeaker:"})
}

func (r *Recorder) ChannelMessage(ctx context.Context, channel, text, username, icon string) {
	r.add(Message{Channel: channel, Text: text, Username: username, Icon: icon})
}

func (r *Recorder) Post(ctx context.Context, msg *slack.WebhookMessage) {
	r.add(Message{
		Channel:     msg.Channel,
		Text:        msg.Text,
		Username:    msg.Username,
		Icon:        msg.IconEmoji,
		Attachments: msg.Attachments,
	})
}

func (r *Recorder) add(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// To returns the messages sent to channel.
func (r *Recorder) To(channel string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
