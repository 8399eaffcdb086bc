package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// discord embed sidebar colors per level
const (
	discordColorInfo     = 0x3498db
	discordColorWarning  = 0xf1c40f
	discordColorCritical = 0xe74c3c
)

// DiscordNotifier sends alerts to a Discord channel webhook.
type DiscordNotifier struct {
	url    string
	client *http.Client
}

// NewDiscordNotifier creates a Discord webhook notifier.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		url: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (d *DiscordNotifier) Send(ctx context.Context, alert Alert) error {
	color := discordColorInfo
	switch alert.Level {
	case AlertWarning:
		color = discordColorWarning
	case AlertCritical:
		color = discordColorCritical
	}

	body, err := json.Marshal(map[string]interface{}{
		"embeds": []map[string]interface{}{{
			"title":       alert.Title,
			"description": alert.Message,
			"color":       color,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return fmt.Errorf("discord: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[discord] sent alert: %s", alert.Title)
	return nil
}
