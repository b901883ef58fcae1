package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"claude-quota-alerts/internal/tier"
	"claude-quota-alerts/internal/usage"
)

// Notification 封装一次阈值穿越的告警上下文。
type Notification struct {
	Dimension usage.Dimension
	From      tier.Tier
	To        tier.Tier
	Percent   decimal.Decimal
	ResetsAt  time.Time
	At        time.Time
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("dimension", string(note.Dimension)).
		Str("tier", note.To.String()).
		Msg("告警已发送 (Telegram)")
	return nil
}

// Title returns the human headline for a crossing, matching its urgency.
func (note Notification) Title() string {
	switch note.To {
	case tier.Critical:
		return "Usage Critical!"
	case tier.Danger:
		return "Usage High"
	default:
		return "Usage Warning"
	}
}

// Body returns the human-readable alert text for a crossing.
func (note Notification) Body() string {
	label := "5h limit"
	if note.Dimension == usage.DimensionWeekly {
		label = "weekly limit"
	}
	msg := fmt.Sprintf("You've used %s%% of your %s.", note.Percent.StringFixed(0), label)
	if note.To == tier.Critical {
		msg += " Consider pausing."
	}
	return msg
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[quotawatcher] ")
	builder.WriteString(note.Title())
	builder.WriteString("\n")
	builder.WriteString(note.Body())
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Tier: %s -> %s\n", note.From, note.To))
	if !note.ResetsAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Window resets: %s UTC\n", note.ResetsAt.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(fmt.Sprintf("Observed: %s UTC", note.At.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
