package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackMirror posts notifications to a Slack channel.
type SlackMirror struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlackMirror creates a Slack mirror. botToken is the Bot User OAuth
// Token (xoxb-...).
func NewSlackMirror(botToken, channel string, logger *zap.Logger) *SlackMirror {
	return &SlackMirror{
		client:  slack.New(botToken),
		channel: channel,
		logger:  logger,
	}
}

func (m *SlackMirror) Platform() string { return "slack" }

// Post sends the notification title and message as one Slack message.
func (m *SlackMirror) Post(ctx context.Context, n *Notification) error {
	text := fmt.Sprintf("*%s*\n%s", n.Title, n.Message)
	if n.Link != "" {
		text += "\n" + n.Link
	}
	_, _, err := m.client.PostMessageContext(ctx, m.channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	m.logger.Debug("mirrored notification to slack", zap.String("channel", m.channel))
	return nil
}
