package incidents

import (
	"context"
	"errors"
	"fmt"

	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/settings"
	"go.uber.org/zap"
)

// lastGUIDKey stores the newest announced incident under settings.GlobalScope.
const lastGUIDKey = "incidents.last_guid"

// maxPostLength is the chat platform's message limit.
const maxPostLength = 2000

// State persists the last announced GUID and resolves incident channels.
type State interface {
	Get(ctx context.Context, guildID, key string) (string, bool, error)
	Set(ctx context.Context, guildID, key, value string) error
	Channel(ctx context.Context, guildID string, binding settings.Binding) (string, error)
}

// Platform lists guilds and posts to channels.
type Platform interface {
	platform.Guilds
	platform.Messenger
}

type Config struct {
	Source   Source
	State    State
	Platform Platform
	Logger   *zap.Logger
}

// Monitor announces new status feed entries to every guild's incidents channel.
type Monitor struct {
	source   Source
	state    State
	platform Platform
	logger   *zap.Logger
}

func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Source == nil || cfg.State == nil || cfg.Platform == nil {
		return nil, fmt.Errorf("incidents: source, state and platform are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{source: cfg.Source, state: cfg.State, platform: cfg.Platform, logger: logger}, nil
}

// Check fetches the feed and reports the latest incident when it differs from
// the last one seen. The new GUID is stored before returning.
func (m *Monitor) Check(ctx context.Context) (Incident, bool, error) {
	feed, err := m.source.Fetch(ctx)
	if err != nil {
		return Incident{}, false, err
	}
	if feed == nil || len(feed.Items) == 0 {
		return Incident{}, false, nil
	}
	latest := newIncident(feed.Items[0])
	last, _, err := m.state.Get(ctx, settings.GlobalScope, lastGUIDKey)
	if err != nil {
		return Incident{}, false, err
	}
	if latest.GUID == "" || latest.GUID == last {
		return Incident{}, false, nil
	}
	if err := m.state.Set(ctx, settings.GlobalScope, lastGUIDKey, latest.GUID); err != nil {
		return Incident{}, false, err
	}
	m.logger.Info("new incident found", zap.String("guid", latest.GUID), zap.String("title", latest.Title))
	return latest, true, nil
}

// Run checks the feed and posts a new incident to each guild with a bound incidents channel.
func (m *Monitor) Run(ctx context.Context) error {
	incident, ok, err := m.Check(ctx)
	if err != nil || !ok {
		return err
	}
	guilds, err := m.platform.Guilds(ctx)
	if err != nil {
		return fmt.Errorf("incidents: list guilds: %w", err)
	}
	content := Render(incident)
	if runes := []rune(content); len(runes) > maxPostLength {
		content = string(runes[:maxPostLength-3]) + "..."
	}
	for _, guild := range guilds {
		channelID, err := m.state.Channel(ctx, guild.ID, settings.BindingIncidents)
		if errors.Is(err, settings.ErrChannelNotConfigured) {
			continue
		}
		if err != nil {
			m.logger.Warn("incidents channel lookup failed", zap.String("guild_id", guild.ID), zap.Error(err))
			continue
		}
		if _, err := m.platform.SendMessage(ctx, channelID, content); err != nil {
			m.logger.Error("incident post failed", zap.String("guild_id", guild.ID), zap.Error(err))
			continue
		}
		m.logger.Info("incident notification sent", zap.String("guild_id", guild.ID))
	}
	return nil
}
