package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"epoch/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectMessagePostsWebhook(t *testing.T) {
	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		got <- m
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlack(config.SlackConfig{WebhookURL: srv.URL, BotName: "Epoch Bot", Timeout: time.Second})
	s.DirectMessage(context.Background(), "U1", "You have been working for 2 hours this session.")

	m := <-got
	assert.Equal(t, "U1", m["channel"])
	assert.Equal(t, "Epoch Bot", m["username"])
	assert.Equal(t, IconLoudspeaker, m["icon_emoji"])
	assert.Equal(t, "You have been working for 2 hours this session.", m["text"])
}

func TestPostSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSlack(config.SlackConfig{WebhookURL: srv.URL, Timeout: time.Second})
	require.NotPanics(t, func() {
		s.ChannelMessage(context.Background(), "#work-progress", "alice is now online!", "Epoch Bot", IconOnline)
	})
}

func TestPostWithoutWebhookIsNoop(t *testing.T) {
	s := NewSlack(config.SlackConfig{})
	assert.Equal(t, 5*time.Second, s.timeout)
	require.NotPanics(t, func() {
		s.DirectMessage(context.Background(), "U1", "hello")
	})
}
