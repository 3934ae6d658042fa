package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
)

type recordingNotifier struct {
	name    string
	enabled bool
	err     error
	sent    []Notification
}

func (r *recordingNotifier) Name() string    { return r.name }
func (r *recordingNotifier) IsEnabled() bool { return r.enabled }
func (r *recordingNotifier) Send(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestMultiFansOutToEnabledChannels(t *testing.T) {
	on := &recordingNotifier{name: "on", enabled: true}
	off := &recordingNotifier{name: "off", enabled: false}
	m := NewMulti(zerolog.Nop(), on, off)

	m.Send(context.Background(), Notification{Type: NotificationInfo, Title: "hello"})

	require.Len(t, on.sent, 1)
	assert.Equal(t, "hello", on.sent[0].Title)
	assert.False(t, on.sent[0].Timestamp.IsZero())
	assert.Empty(t, off.sent)
}

func TestMultiSwallowsChannelErrors(t *testing.T) {
	broken := &recordingNotifier{name: "broken", enabled: true, err: errors.New("boom")}
	healthy := &recordingNotifier{name: "healthy", enabled: true}
	m := NewMulti(zerolog.Nop(), broken, healthy)

	// A failing channel must not stop delivery to the others.
	m.SendError(context.Background(), "cycle", errors.New("feed down"))

	require.Len(t, healthy.sent, 1)
	assert.Equal(t, NotificationError, healthy.sent[0].Type)
	assert.Contains(t, healthy.sent[0].Message, "feed down")
}

func TestTelegramDisabledWithoutCredentials(t *testing.T) {
	assert.False(t, NewTelegramNotifier(config.TelegramConfig{Enabled: true}).IsEnabled())
	assert.False(t, NewTelegramNotifier(config.TelegramConfig{
		Enabled: false, BotToken: "tok", ChatID: "42",
	}).IsEnabled())
	assert.True(t, NewTelegramNotifier(config.TelegramConfig{
		Enabled: true, BotToken: "tok", ChatID: "42",
	}).IsEnabled())
}

func TestTelegramSend(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(config.TelegramConfig{Enabled: true, BotToken: "tok", ChatID: "42"})
	n.baseURL = srv.URL

	err := n.Send(context.Background(), Notification{
		Title:   "Exit #3 <trade>",
		Message: "P&L > 0",
	})
	require.NoError(t, err)

	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	// Title is bolded and HTML-escaped.
	assert.Equal(t, "<b>Exit #3 &lt;trade&gt;</b>\n\nP&amp;L &gt; 0", got["text"])
}

func TestTelegramSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewTelegramNotifier(config.TelegramConfig{Enabled: true, BotToken: "tok", ChatID: "42"})
	n.baseURL = srv.URL

	err := n.Send(context.Background(), Notification{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "₹0.00"},
		{950, "₹950.00"},
		{1500, "₹1,500.00"},
		{125000, "₹1,25,000.00"},
		{12345678.9, "₹1,23,45,678.90"},
		{-5432.1, "-₹5,432.10"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatCurrency(tc.in), "amount %v", tc.in)
	}
}
