package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/settings"
	"go.uber.org/zap"
)

var (
	// ErrChannelNotConfigured reports a guild without the channel a notification targets.
	ErrChannelNotConfigured = settings.ErrChannelNotConfigured
	errMissingMessenger     = errors.New("notify: messenger is required")
	errMissingChannels      = errors.New("notify: channel resolver is required")
)

// ChannelResolver looks up the channel bound to a purpose in a guild.
type ChannelResolver interface {
	Channel(ctx context.Context, guildID string, binding settings.Binding) (string, error)
}

// Config describes the dependencies of a Notifier.
type Config struct {
	Messenger platform.Messenger
	Channels  ChannelResolver
	// Pick returns a value in [0, n). Defaults to math/rand/v2.
	Pick   func(n int) int
	Logger *zap.Logger
}

// Notifier delivers best-effort notices to members and guild channels.
type Notifier struct {
	messenger platform.Messenger
	channels  ChannelResolver
	pick      func(n int) int
	logger    *zap.Logger
}

func New(cfg Config) (*Notifier, error) {
	if cfg.Messenger == nil {
		return nil, errMissingMessenger
	}
	if cfg.Channels == nil {
		return nil, errMissingChannels
	}
	pick := cfg.Pick
	if pick == nil {
		pick = rand.Intn
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		messenger: cfg.Messenger,
		channels:  cfg.Channels,
		pick:      pick,
		logger:    logger,
	}, nil
}

// NotifyRoleChange DMs the member and posts the change to the demotion channel.
// A failed DM is logged and does not fail the call.
func (n *Notifier) NotifyRoleChange(ctx context.Context, guildID string, member platform.Member, change members.RoleChange) error {
	if err := n.messenger.SendDirect(ctx, member.ID, renderRoleChangeDirect(change.OldRank, change.NewRank, change.Reason)); err != nil {
		n.logger.Warn("role change direct message failed",
			zap.String("guild_id", guildID),
			zap.String("discord_id", member.ID),
			zap.Error(err))
	}

	channelID, err := n.channels.Channel(ctx, guildID, settings.BindingDemotion)
	if err != nil {
		return err
	}
	content := renderRoleChange(member.Mention(), change.OldRank, change.NewRank, change.Reason)
	if _, err := n.messenger.SendMessage(ctx, channelID, content); err != nil {
		n.logger.Error("role change post failed",
			zap.String("guild_id", guildID),
			zap.String("channel_id", channelID),
			zap.Error(err))
		return fmt.Errorf("notify: post role change: %w", err)
	}
	return nil
}

// NotifyUnlinkedSummary DMs each unlinked member a reminder and posts one
// summary of their mentions to the reminder channel.
func (n *Notifier) NotifyUnlinkedSummary(ctx context.Context, guildID string, unlinked []platform.Member) error {
	if len(unlinked) == 0 {
		return nil
	}
	delivered := 0
	for _, member := range unlinked {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.messenger.SendDirect(ctx, member.ID, UnlinkedReminder); err != nil {
			n.logger.Warn("unlinked reminder failed",
				zap.String("guild_id", guildID),
				zap.String("discord_id", member.ID),
				zap.Error(err))
			continue
		}
		delivered++
	}

	channelID, err := n.channels.Channel(ctx, guildID, settings.BindingReminder)
	if err != nil {
		return err
	}
	if _, err := n.messenger.SendMessage(ctx, channelID, RenderUnlinkedSummary(unlinked)); err != nil {
		n.logger.Error("unlinked summary post failed",
			zap.String("guild_id", guildID),
			zap.String("channel_id", channelID),
			zap.Error(err))
		return fmt.Errorf("notify: post unlinked summary: %w", err)
	}
	n.logger.Info("unlinked reminders sent",
		zap.String("guild_id", guildID),
		zap.Int("unlinked", len(unlinked)),
		zap.Int("delivered", delivered))
	return nil
}

// Announce posts a promotion or demotion notice to the promotion channel using
// a template chosen uniformly at random.
func (n *Notifier) Announce(ctx context.Context, guildID string, kind AnnouncementKind, member platform.Member, from, to string) error {
	channelID, err := n.channels.Channel(ctx, guildID, settings.BindingPromotion)
	if err != nil {
		return err
	}
	templates := templatesFor(kind)
	content := templates[n.pick(len(templates))](member.Mention(), from, to)
	if _, err := n.messenger.SendMessage(ctx, channelID, content); err != nil {
		n.logger.Error("announcement post failed",
			zap.String("guild_id", guildID),
			zap.String("kind", kind.String()),
			zap.Error(err))
		return fmt.Errorf("notify: post %s announcement: %w", kind, err)
	}
	return nil
}

// RenderUnlinkedSummary lists member mentions, truncated to the chat field limit.
func RenderUnlinkedSummary(unlinked []platform.Member) string {
	lines := make([]string, 0, len(unlinked))
	for _, member := range unlinked {
		lines = append(lines, "• "+member.Mention())
	}
	list := Truncate(strings.Join(lines, "\n"), maxSummaryLength)
	return fmt.Sprintf("📊 **Unlinked Members Report** (%d)\nThe following members have not yet linked their RSI accounts:\n%s", len(unlinked), list)
}

// Truncate shortens value to at most limit characters, ending in "..." when cut.
func Truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
