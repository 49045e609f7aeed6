package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// maxSlackLines caps a single message; the rest is summarized.
const maxSlackLines = 20

type SlackConfig struct {
	Token   string
	Channel string
	Webhook string
	// APIURL overrides the Slack API endpoint.
	APIURL string
}

// Slack posts a batch as one message, through an incoming webhook when one
// is configured and the bot API otherwise.
type Slack struct {
	api     *slack.Client
	channel string
	webhook string
}

func NewSlack(cfg SlackConfig) *Slack {
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Slack{
		api:     slack.New(cfg.Token, opts...),
		channel: cfg.Channel,
		webhook: cfg.Webhook,
	}
}

func (s *Slack) Name() string {
	return "slack"
}

func (s *Slack) Notify(ctx context.Context, batch []Notification) error {
	if len(batch) == 0 {
		return nil
	}
	text := slackText(batch)

	if s.webhook != "" {
		return slack.PostWebhookContext(ctx, s.webhook, &slack.WebhookMessage{Text: text})
	}
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	return err
}

func slackText(batch []Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*AutoDQ: %d new failed check(s)*\n", len(batch))
	for i, n := range batch {
		if i == maxSlackLines {
			fmt.Fprintf(&b, "…and %d more", len(batch)-maxSlackLines)
			break
		}
		b.WriteString("• ")
		b.WriteString(n.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
