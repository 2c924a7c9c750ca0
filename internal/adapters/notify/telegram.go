// Package notify surfaces operator alerts. The keeper runs unattended, so
// invariant violations and stuck payouts must reach a human out-of-band.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Telegram sends alerts through the Telegram Bot API.
type Telegram struct {
	token  string
	chatID string
	http   *http.Client
}

// NewTelegram creates a Telegram alerter.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Alert sends one message. Alerts are operator-facing: failure to deliver is
// returned so the caller can at least log it, but it never blocks keeper work.
func (t *Telegram) Alert(ctx context.Context, subject, detail string) error {
	text := fmt.Sprintf("🚨 <b>%s</b>\n%s", subject, detail)

	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("notify.Alert: marshal payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify.Alert: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify.Alert: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify.Alert: telegram status %d: %s", resp.StatusCode, string(body))
	}

	slog.Debug("notify: alert sent", "subject", subject)
	return nil
}
