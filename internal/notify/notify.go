// Package notify delivers trade alerts to Telegram and the terminal.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// Notification is one alert message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Timestamp time.Time
}

// NotificationType classifies an alert.
type NotificationType string

const (
	NotificationEntry NotificationType = "entry"
	NotificationExit  NotificationType = "exit"
	NotificationError NotificationType = "error"
	NotificationInfo  NotificationType = "info"
)

// Notifier is one delivery channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Multi fans an alert out to every enabled channel. Channel failures
// are logged, never propagated: an alert must not stall the engine.
type Multi struct {
	channels []Notifier
	log      zerolog.Logger
}

// NewMulti creates a fan-out notifier.
func NewMulti(log zerolog.Logger, channels ...Notifier) *Multi {
	return &Multi{
		channels: channels,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// Send delivers to all enabled channels.
func (m *Multi) Send(ctx context.Context, n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	for _, ch := range m.channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			m.log.Warn().Str("channel", ch.Name()).Err(err).Msg("Notification failed")
		}
	}
}

// SendEntry announces a new position.
func (m *Multi) SendEntry(ctx context.Context, t *models.Trade) {
	m.Send(ctx, Notification{
		Type:  NotificationEntry,
		Title: fmt.Sprintf("Entry #%d %s", t.ID, t.Instrument),
		Message: fmt.Sprintf(
			"%s %d @ %s\nQty %d | VIX %.1f (%s) | stop %s\nsignal %s, confidence %.0f",
			t.Side, t.Strike, formatCurrency(t.EntryPrice),
			t.Qty, t.EntryVIX, t.Regime, formatCurrency(t.CurrentStop),
			t.SignalPath, t.Metrics.Confidence,
		),
	})
}

// SendExit announces a closed position.
func (m *Multi) SendExit(ctx context.Context, t *models.Trade) {
	if t.Closure == nil {
		return
	}
	m.Send(ctx, Notification{
		Type:  NotificationExit,
		Title: fmt.Sprintf("Exit #%d %s (%s)", t.ID, t.Instrument, t.Closure.Reason),
		Message: fmt.Sprintf(
			"out @ %s | P&L %s (%.1f%%)\nheld %s | MFE %.1f%% MAE %.1f%%",
			formatCurrency(t.Closure.Price), formatCurrency(t.PnL()), t.PnLPercent(),
			t.Duration(t.Closure.Time).Round(time.Second), t.MFEPercent(), t.MAEPercent(),
		),
	})
}

// SendError announces an operational failure that needs eyes.
func (m *Multi) SendError(ctx context.Context, context string, err error) {
	m.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Engine error",
		Message: fmt.Sprintf("%s: %v", context, err),
	})
}

// TelegramNotifier sends alerts via a Telegram bot.
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram channel from config.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the channel name.
func (t *TelegramNotifier) Name() string { return "telegram" }

// IsEnabled reports whether the channel is configured.
func (t *TelegramNotifier) IsEnabled() bool { return t.enabled }

// Send delivers one alert, HTML-formatted.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// TerminalNotifier prints alerts to the console.
type TerminalNotifier struct{}

// NewTerminalNotifier creates the console channel.
func NewTerminalNotifier() *TerminalNotifier { return &TerminalNotifier{} }

// Name returns the channel name.
func (t *TerminalNotifier) Name() string { return "terminal" }

// IsEnabled always reports true.
func (t *TerminalNotifier) IsEnabled() bool { return true }

// Send prints one alert, color-coded by type.
func (t *TerminalNotifier) Send(_ context.Context, n Notification) error {
	var c *color.Color
	switch n.Type {
	case NotificationEntry:
		c = color.New(color.FgGreen, color.Bold)
	case NotificationExit:
		c = color.New(color.FgCyan, color.Bold)
	case NotificationError:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.FgWhite)
	}
	c.Printf("[%s] %s\n", n.Timestamp.Format("15:04:05"), n.Title)
	if n.Message != "" {
		fmt.Println(n.Message)
	}
	return nil
}

// formatCurrency formats a rupee value with the Indian digit grouping.
func formatCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	result := "₹" + formatIndianNumber(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber groups digits 3-then-2 from the right.
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	head := s[:n-3]
	tail := s[n-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(groups, ",") + "," + tail
}
