package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordMirror posts notifications to a Discord channel.
type DiscordMirror struct {
	session *discordgo.Session
	channel string
	logger  *zap.Logger
}

// NewDiscordMirror creates a Discord mirror from a bot token.
func NewDiscordMirror(botToken, channelID string, logger *zap.Logger) (*DiscordMirror, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordMirror{session: session, channel: channelID, logger: logger}, nil
}

func (m *DiscordMirror) Platform() string { return "discord" }

// Post sends the notification as one Discord message.
func (m *DiscordMirror) Post(ctx context.Context, n *Notification) error {
	content := fmt.Sprintf("**%s**\n%s", n.Title, n.Message)
	if n.Link != "" {
		content += "\n" + n.Link
	}
	_, err := m.session.ChannelMessageSend(m.channel, content, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord post: %w", err)
	}
	return nil
}
