package pulse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/settings"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultCooldown   = 5 * time.Minute
	DefaultAdminRole  = "Chairman"
	threadAutoArchive = 24 * time.Hour
	maxThreadName     = 100
)

// DefaultAllowedRoles are the leadership, management and staff roles that may raise an alert.
var DefaultAllowedRoles = []string{"Chairman", "Director", "Manager", "Team Leader", "Employee", "Applicant"}

var (
	// ErrNotEligible reports a member without a staff role.
	ErrNotEligible = errors.New("pulse: member is not eligible to raise alerts")
	// ErrNotAdmin reports an invoker without the admin role.
	ErrNotAdmin = errors.New("pulse: admin role required")
	// ErrInvalidReport reports an empty or oversized form field.
	ErrInvalidReport = errors.New("pulse: invalid report")
	// ErrCannotPost reports a configured channel the bot cannot write to.
	ErrCannotPost = errors.New("pulse: cannot post to alert channel")
)

// CooldownError reports how long the member must wait.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("pulse: cooldown active for %s", e.Remaining.Round(time.Second))
}

// Channels resolves and binds the alert channel.
type Channels interface {
	Channel(ctx context.Context, guildID string, binding settings.Binding) (string, error)
	BindChannel(ctx context.Context, guildID string, binding settings.Binding, channelID string) error
}

// Platform posts alerts, opens their threads and lists members for status.
type Platform interface {
	platform.Members
	platform.Messenger
	StartThread(ctx context.Context, channelID, messageID, name string, autoArchive time.Duration) (platform.Channel, error)
}

type Config struct {
	Database     *gorm.DB
	Platform     Platform
	Channels     Channels
	Cooldown     time.Duration
	AllowedRoles []string
	AdminRole    string
	Clock        func() time.Time
	NewID        func() (string, error)
	Logger       *zap.Logger
}

// Service raises emergency alerts on behalf of staff members.
type Service struct {
	db           *gorm.DB
	platform     Platform
	channels     Channels
	cooldown     time.Duration
	allowedRoles []string
	adminRole    string
	clock        func() time.Time
	newID        func() (string, error)
	logger       *zap.Logger
	startedAt    time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Database == nil || cfg.Platform == nil || cfg.Channels == nil {
		return nil, fmt.Errorf("pulse: database, platform and channels are required")
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	allowed := cfg.AllowedRoles
	if len(allowed) == 0 {
		allowed = DefaultAllowedRoles
	}
	adminRole := strings.TrimSpace(cfg.AdminRole)
	if adminRole == "" {
		adminRole = DefaultAdminRole
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:           cfg.Database,
		platform:     cfg.Platform,
		channels:     cfg.Channels,
		cooldown:     cooldown,
		allowedRoles: append([]string(nil), allowed...),
		adminRole:    adminRole,
		clock:        clock,
		newID:        newID,
		logger:       logger,
		startedAt:    clock(),
		lastSent:     make(map[string]time.Time),
	}, nil
}

// Cooldown reports the configured gap between alerts from one member.
func (s *Service) Cooldown() time.Duration {
	return s.cooldown
}

// Check decides whether member may open the alert form.
func (s *Service) Check(ctx context.Context, guildID string, member platform.Member) error {
	if !member.HasAnyRole(s.allowedRoles) {
		s.logger.Warn("alert attempted without staff role", zap.String("user_id", member.ID))
		return ErrNotEligible
	}
	if _, err := s.channels.Channel(ctx, guildID, settings.BindingAlert); err != nil {
		return err
	}
	if remaining := s.remaining(member.ID); remaining > 0 {
		s.logger.Info("alert attempted during cooldown", zap.String("user_id", member.ID))
		return &CooldownError{Remaining: remaining}
	}
	return nil
}

// Submit posts the alert, opens its coordination thread and records it.
func (s *Service) Submit(ctx context.Context, guildID string, member platform.Member, report Report) (Alert, error) {
	report.Location = strings.TrimSpace(report.Location)
	report.Situation = strings.TrimSpace(report.Situation)
	if err := validateReport(report); err != nil {
		return Alert{}, err
	}
	if err := s.Check(ctx, guildID, member); err != nil {
		return Alert{}, err
	}
	channelID, err := s.channels.Channel(ctx, guildID, settings.BindingAlert)
	if err != nil {
		return Alert{}, err
	}
	now := s.clock().UTC()
	s.markSent(member.ID, now)

	logger := s.logger.With(zap.String("guild_id", guildID), zap.String("user_id", member.ID))
	message, err := s.platform.SendMessage(ctx, channelID, renderAlert(member, report))
	if err != nil {
		logger.Error("alert post failed", zap.Error(err))
		return Alert{}, fmt.Errorf("%w: %v", ErrCannotPost, err)
	}

	alert := Alert{
		GuildID:   guildID,
		UserID:    member.ID,
		Username:  member.Username,
		Location:  report.Location,
		Situation: report.Situation,
		ChannelID: channelID,
		MessageID: message.ID,
		CreatedAt: now,
	}
	thread, err := s.platform.StartThread(ctx, channelID, message.ID, threadName(member, now), threadAutoArchive)
	if err != nil {
		logger.Error("alert thread creation failed", zap.Error(err))
	} else {
		alert.ThreadID = thread.ID
		kickoff := fmt.Sprintf("Emergency thread created for %s's alert.\nPlease use this thread to coordinate response efforts.", member.Mention())
		if _, err := s.platform.SendMessage(ctx, thread.ID, kickoff); err != nil {
			logger.Warn("alert thread kickoff failed", zap.Error(err))
		}
	}

	id, err := s.newID()
	if err != nil {
		logger.Error("alert id generation failed", zap.Error(err))
		return alert, nil
	}
	alert.ID = id
	if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
		logger.Error("alert audit insert failed", zap.Error(err))
	}
	logger.Info("alert posted", zap.String("channel_id", channelID), zap.String("thread_id", alert.ThreadID))
	return alert, nil
}

// Setup binds the alert channel and posts a configuration notice to prove the bot can write there.
func (s *Service) Setup(ctx context.Context, guildID string, actor platform.Member, channelID string) error {
	if !actor.HasRole(s.adminRole) {
		return ErrNotAdmin
	}
	if err := s.channels.BindChannel(ctx, guildID, settings.BindingAlert, channelID); err != nil {
		return err
	}
	notice := "🔧 **PULSE System Configuration**\nThis channel has been configured for PULSE emergency alerts.\nEach alert will create a new thread for coordination."
	if _, err := s.platform.SendMessage(ctx, channelID, notice); err != nil {
		s.logger.Warn("alert channel not writable", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCannotPost, err)
	}
	s.logger.Info("alert channel configured", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.String("actor_id", actor.ID))
	return nil
}

// Status reports uptime, the staff breakdown and configuration for guildID.
func (s *Service) Status(ctx context.Context, guildID string, actor platform.Member) (Status, error) {
	if !actor.HasRole(s.adminRole) {
		return Status{}, ErrNotAdmin
	}
	guildMembers, err := s.platform.Members(ctx, guildID)
	if err != nil {
		return Status{}, err
	}
	status := Status{Uptime: s.clock().Sub(s.startedAt), Cooldown: s.cooldown}
	for _, role := range s.allowedRoles {
		count := 0
		for _, member := range guildMembers {
			if !member.Bot && member.HasRole(role) {
				count++
			}
		}
		status.RoleCounts = append(status.RoleCounts, RoleCount{Role: role, Count: count})
		status.Total += count
	}
	channelID, err := s.channels.Channel(ctx, guildID, settings.BindingAlert)
	if err != nil && !errors.Is(err, settings.ErrChannelNotConfigured) {
		return Status{}, err
	}
	status.ChannelID = channelID
	if err := s.db.WithContext(ctx).Model(&Alert{}).Where("guild_id = ?", guildID).Count(&status.AlertsLogged).Error; err != nil {
		s.logger.Warn("alert count failed", zap.String("guild_id", guildID), zap.Error(err))
	}
	return status, nil
}

// Alerts returns the most recent alerts for guildID, newest first.
func (s *Service) Alerts(ctx context.Context, guildID string, limit int) ([]Alert, error) {
	return ListAlerts(ctx, s.db, guildID, limit)
}

// ListAlerts reads the audit log without a live platform connection.
func ListAlerts(ctx context.Context, db *gorm.DB, guildID string, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []Alert
	err := db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("pulse: list alerts: %w", err)
	}
	return alerts, nil
}

func (s *Service) remaining(userID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSent[userID]
	if !ok {
		return 0
	}
	elapsed := s.clock().Sub(last)
	if elapsed >= s.cooldown {
		return 0
	}
	return s.cooldown - elapsed
}

func (s *Service) markSent(userID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSent[userID] = at
}

func validateReport(report Report) error {
	switch {
	case report.Location == "" || report.Situation == "":
		return fmt.Errorf("%w: location and situation are required", ErrInvalidReport)
	case utf8.RuneCountInString(report.Location) > MaxLocationLength:
		return fmt.Errorf("%w: location exceeds %d characters", ErrInvalidReport, MaxLocationLength)
	case utf8.RuneCountInString(report.Situation) > MaxSituationLength:
		return fmt.Errorf("%w: situation exceeds %d characters", ErrInvalidReport, MaxSituationLength)
	}
	return nil
}

func renderAlert(member platform.Member, report Report) string {
	return fmt.Sprintf("🚨 **PULSE EMERGENCY ALERT** 🚨\n\n**Alert from:** %s\n**Location:** %s\n**Situation:** %s\n\n*This is a priority alert from the PULSE system*",
		member.Mention(), report.Location, report.Situation)
}

func threadName(member platform.Member, at time.Time) string {
	username := member.Username
	if username == "" {
		username = member.Name()
	}
	name := fmt.Sprintf("Emergency: %s - %s", username, at.Format("2006-01-02 15:04"))
	if runes := []rune(name); len(runes) > maxThreadName {
		name = string(runes[:maxThreadName])
	}
	return name
}
