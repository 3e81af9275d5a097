package alerts

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Channel delivers a formatted alert to one external destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg AlertMessage) error
}

func renderText(msg AlertMessage) string {
	text := fmt.Sprintf("*%s*\n%s", msg.Title, msg.Body)
	for k, v := range msg.Fields {
		text += fmt.Sprintf("\n%s: %s", k, v)
	}
	return text
}

// SlackChannel posts to a Slack incoming webhook.
type SlackChannel struct {
	http       *resty.Client
	webhookURL string
}

func NewSlackChannel(http *resty.Client, webhookURL string) *SlackChannel {
	return &SlackChannel{http: http, webhookURL: webhookURL}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, msg AlertMessage) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": renderText(msg)}).
		Post(s.webhookURL)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("slack: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// DiscordChannel posts to a Discord incoming webhook.
type DiscordChannel struct {
	http       *resty.Client
	webhookURL string
}

func NewDiscordChannel(http *resty.Client, webhookURL string) *DiscordChannel {
	return &DiscordChannel{http: http, webhookURL: webhookURL}
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) Send(ctx context.Context, msg AlertMessage) error {
	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"content": renderText(msg)}).
		Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// TelegramChannel posts to a Telegram bot chat.
type TelegramChannel struct {
	http     *resty.Client
	botToken string
	chatID   string
}

func NewTelegramChannel(http *resty.Client, botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{http: http, botToken: botToken, chatID: chatID}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, msg AlertMessage) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": t.chatID, "text": renderText(msg)}).
		Post(url)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
