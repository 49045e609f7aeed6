package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
)

// Notification is one event to deliver. Key groups related events, Text is
// the human-readable line and Payload is the structured form.
type Notification struct {
	Key     string
	Text    string
	Payload any
}

type Notifier interface {
	Name() string
	Notify(ctx context.Context, batch []Notification) error
}

// Multi fans a batch out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Notify(ctx context.Context, batch []Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes the notifiers that hold connections.
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if c, ok := n.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifiers that are configured. The result is empty
// when nothing is.
func FromConfig(cfg config.NotifyConfig, log zerolog.Logger) Multi {
	var m Multi
	if cfg.SlackWebhook != "" || (cfg.SlackToken != "" && cfg.SlackChannel != "") {
		m = append(m, NewSlack(SlackConfig{
			Token:   cfg.SlackToken,
			Channel: cfg.SlackChannel,
			Webhook: cfg.SlackWebhook,
		}))
		log.Info().Msg("slack notifications enabled")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		m = append(m, NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.Info().Str("topic", cfg.KafkaTopic).Msg("kafka notifications enabled")
	}
	return m
}
