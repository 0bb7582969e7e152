package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/draxon/draxon-bots/internal/faults"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrChannelNotConfigured indicates /setup has not bound a channel for the requested purpose.
	ErrChannelNotConfigured = fmt.Errorf("channel %w: run /setup first", faults.ErrNotFound)
	// ErrInvalidKey indicates an empty guild id or key.
	ErrInvalidKey = errors.New("settings: guild id and key are required")
)

// ServiceConfig describes the dependencies of the settings service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service reads and writes per-guild bot settings through a write-through cache.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the settings service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("settings: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// Get returns the value stored under key for guildID. The boolean is false when unset.
func (s *Service) Get(ctx context.Context, guildID, key string) (string, bool, error) {
	guildID, key = normalize(guildID), normalize(key)
	if guildID == "" || key == "" {
		return "", false, ErrInvalidKey
	}

	cacheKey := guildID + ":" + key
	if cached, ok := s.cache.Load(cacheKey); ok {
		if value, ok := cached.(string); ok {
			return value, value != "", nil
		}
	}

	var setting Setting
	err := s.db.WithContext(ctx).
		Where("guild_id = ? AND setting_key = ?", guildID, key).
		Take(&setting).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.cache.Store(cacheKey, "")
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: load setting %s: %v", faults.ErrPersistence, key, err)
	}
	s.cache.Store(cacheKey, setting.Value)
	return setting.Value, setting.Value != "", nil
}

// Set stores value under key for guildID, replacing any previous value.
func (s *Service) Set(ctx context.Context, guildID, key, value string) error {
	guildID, key = normalize(guildID), normalize(key)
	if guildID == "" || key == "" {
		return ErrInvalidKey
	}
	setting := Setting{
		GuildID:   guildID,
		Key:       key,
		Value:     normalize(value),
		UpdatedAt: s.now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}, {Name: "setting_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).
		Error
	if err != nil {
		return fmt.Errorf("%w: store setting %s: %v", faults.ErrPersistence, key, err)
	}
	s.cache.Store(guildID+":"+key, setting.Value)
	return nil
}

// Channel returns the channel bound to binding in guildID.
func (s *Service) Channel(ctx context.Context, guildID string, binding Binding) (string, error) {
	value, ok, err := s.Get(ctx, guildID, binding.key())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w (%s)", ErrChannelNotConfigured, binding)
	}
	return value, nil
}

// BindChannel persists channelID as the channel for binding in guildID.
func (s *Service) BindChannel(ctx context.Context, guildID string, binding Binding, channelID string) error {
	if _, ok := ParseBinding(string(binding)); !ok {
		return fmt.Errorf("settings: unknown channel binding %q", binding)
	}
	return s.Set(ctx, guildID, binding.key(), channelID)
}

// Bindings returns every channel binding configured for guildID.
func (s *Service) Bindings(ctx context.Context, guildID string) (map[Binding]string, error) {
	var rows []Setting
	err := s.db.WithContext(ctx).
		Where("guild_id = ? AND setting_key LIKE ?", normalize(guildID), "channel.%").
		Find(&rows).
		Error
	if err != nil {
		return nil, fmt.Errorf("%w: list bindings: %v", faults.ErrPersistence, err)
	}
	bindings := make(map[Binding]string, len(rows))
	for _, row := range rows {
		binding, ok := ParseBinding(strings.TrimPrefix(row.Key, "channel."))
		if !ok || row.Value == "" {
			continue
		}
		bindings[binding] = row.Value
	}
	return bindings, nil
}
