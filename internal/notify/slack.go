package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier posts messages to a Slack channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlack creates a Slack notifier for the given channel.
func NewSlack(botToken, channel string) (*SlackNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	return &SlackNotifier{
		api:     slack.New(botToken),
		channel: channel,
	}, nil
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Notify(ctx context.Context, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}
