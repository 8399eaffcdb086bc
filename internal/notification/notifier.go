// Package notification delivers trade and lifecycle alerts to external
// channels (Telegram, Discord, generic webhooks). Channels are selected
// from the account settings; with nothing configured alerts only hit the
// process log.
package notification

import (
	"context"
	"log"

	"soltrader/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Fanout delivers an alert to every backend, logging failures instead of
// aborting: one dead channel must not silence the rest.
type Fanout struct {
	backends []Notifier
}

// NewFanout creates a fanout over the given backends.
func NewFanout(backends ...Notifier) *Fanout {
	return &Fanout{backends: backends}
}

func (f *Fanout) Send(ctx context.Context, alert Alert) error {
	for _, b := range f.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend error: %v", err)
		}
	}
	return nil
}

// Len returns the number of wired backends.
func (f *Fanout) Len() int { return len(f.backends) }

// FromSettings builds the notifier stack for the account settings. The log
// notifier is always included.
func FromSettings(s model.Settings) *Fanout {
	backends := []Notifier{NewLogNotifier()}
	if s.TelegramToken != "" && s.TelegramChatID != "" {
		backends = append(backends, NewTelegramNotifier(s.TelegramToken, s.TelegramChatID))
	}
	if s.DiscordWebhook != "" {
		backends = append(backends, NewDiscordNotifier(s.DiscordWebhook))
	}
	return NewFanout(backends...)
}
