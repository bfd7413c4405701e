// Package notifier 将事故摘要推送到聊天机器人频道
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier 事故通知接口
type Notifier interface {
	Notify(ctx context.Context, inc *models.Incident) error
}

// Config 机器人配置
type Config struct {
	BaseURL  string
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// BotNotifier 通过 Bot API 的 sendMessage 发送 Markdown 消息
type BotNotifier struct {
	client   *resty.Client
	botToken string
	chatID   string
	logger   *zap.Logger
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// New 按配置创建通知器，未配置 BotToken 时返回 NopNotifier
func New(cfg Config, logger *zap.Logger) Notifier {
	if cfg.BotToken == "" {
		logger.Info("Notifier disabled: no bot token configured")
		return NopNotifier{}
	}
	return &BotNotifier{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout),
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		logger:   logger,
	}
}

// Notify 发送事故消息
func (n *BotNotifier) Notify(ctx context.Context, inc *models.Incident) error {
	var result sendMessageResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id":    n.chatID,
			"text":       FormatMessage(inc),
			"parse_mode": "Markdown",
		}).
		SetResult(&result).
		SetError(&result).
		Post("/bot" + n.botToken + "/sendMessage")
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	if !resp.IsSuccess() || !result.OK {
		return fmt.Errorf("failed to send notification: status %d: %s", resp.StatusCode(), result.Description)
	}

	n.logger.Info("Incident notification sent", zap.String("incident_id", inc.ID))
	return nil
}

// FormatMessage 生成 Markdown 消息正文
func FormatMessage(inc *models.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*🚨 Report of a Potential Incident as of %s*\n\n", inc.OccurredAt.Format("2 January 15:04:05"))
	fmt.Fprintf(&b, "*📍 Location:*\n[Link to Google Maps](%s)\n\n", inc.MapsLink)
	fmt.Fprintf(&b, "*📷 Photos:* `%d`\n", inc.PhotoCount)
	fmt.Fprintf(&b, "*🎙️ Audio:* `%s`\n\n", humanBytes(inc.AudioBytes))
	fmt.Fprintf(&b, "*ID:* `%s`", inc.ID)
	return b.String()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// NopNotifier 不发送通知
type NopNotifier struct{}

// Notify 空操作
func (NopNotifier) Notify(context.Context, *models.Incident) error { return nil }
