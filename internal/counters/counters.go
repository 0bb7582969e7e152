package counters

import (
	"context"
	"fmt"
	"strings"

	"github.com/draxon/draxon-bots/internal/platform"
	"go.uber.org/zap"
)

// Counter is a display channel whose name carries a member count.
type Counter struct {
	// Prefix identifies the channel; the count is appended after ": ".
	Prefix string
	Count  func(members []platform.Member) int
}

// DefaultCounters are the staff and automated system counters.
var DefaultCounters = []Counter{
	{Prefix: "👥 All Staff", Count: countHumans},
	{Prefix: "🤖 Automated Systems", Count: countBots},
}

// Platform lists guild state and renames channels.
type Platform interface {
	platform.Guilds
	platform.Members
	platform.Channels
}

type Config struct {
	Platform Platform
	Counters []Counter
	Logger   *zap.Logger
}

// Updater keeps counter channel names in sync with guild membership.
type Updater struct {
	platform Platform
	counters []Counter
	logger   *zap.Logger
}

func New(cfg Config) (*Updater, error) {
	if cfg.Platform == nil {
		return nil, fmt.Errorf("counters: platform is required")
	}
	counters := cfg.Counters
	if len(counters) == 0 {
		counters = DefaultCounters
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{platform: cfg.Platform, counters: counters, logger: logger}, nil
}

// Name renders the channel name for count.
func (c Counter) Name(count int) string {
	return fmt.Sprintf("%s: %d", c.Prefix, count)
}

// Run updates every guild. A failing guild is logged and skipped.
func (u *Updater) Run(ctx context.Context) error {
	guilds, err := u.platform.Guilds(ctx)
	if err != nil {
		return fmt.Errorf("counters: list guilds: %w", err)
	}
	for _, guild := range guilds {
		if err := ctx.Err(); err != nil {
			return err
		}
		renamed, err := u.UpdateGuild(ctx, guild.ID)
		if err != nil {
			u.logger.Error("counter update failed", zap.String("guild_id", guild.ID), zap.Error(err))
			continue
		}
		if renamed > 0 {
			u.logger.Info("counters updated", zap.String("guild_id", guild.ID), zap.Int("renamed", renamed))
		}
	}
	return nil
}

// UpdateGuild renames counter channels whose count changed and reports how many were renamed.
func (u *Updater) UpdateGuild(ctx context.Context, guildID string) (int, error) {
	channels, err := u.platform.Channels(ctx, guildID)
	if err != nil {
		return 0, err
	}
	guildMembers, err := u.platform.Members(ctx, guildID)
	if err != nil {
		return 0, err
	}

	renamed := 0
	for _, counter := range u.counters {
		channel, ok := findCounterChannel(channels, counter.Prefix)
		if !ok {
			continue
		}
		name := counter.Name(counter.Count(guildMembers))
		if channel.Name == name {
			continue
		}
		if err := u.platform.RenameChannel(ctx, channel.ID, name); err != nil {
			u.logger.Warn("counter rename failed",
				zap.String("guild_id", guildID),
				zap.String("channel_id", channel.ID),
				zap.Error(err))
			continue
		}
		renamed++
	}
	return renamed, nil
}

func findCounterChannel(channels []platform.Channel, prefix string) (platform.Channel, bool) {
	for _, channel := range channels {
		if channel.Kind == platform.ChannelVoice && strings.HasPrefix(channel.Name, prefix) {
			return channel, true
		}
	}
	return platform.Channel{}, false
}

func countHumans(members []platform.Member) int {
	count := 0
	for _, member := range members {
		if !member.Bot {
			count++
		}
	}
	return count
}

func countBots(members []platform.Member) int {
	return len(members) - countHumans(members)
}
