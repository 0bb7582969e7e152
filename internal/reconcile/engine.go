package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/draxon/draxon-bots/internal/events"
	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/rsi"
	"go.uber.org/zap"
)

var (
	// ErrPassInProgress is returned when a pass is requested while another one runs.
	ErrPassInProgress = errors.New("reconcile: pass already in progress")
	// ErrEmptyRoster is returned when the directory reports no members at all.
	ErrEmptyRoster = errors.New("reconcile: organization roster is empty")

	errMissingDependency = errors.New("reconcile: missing dependency")
)

// Directory fetches the organisation roster.
type Directory interface {
	FetchAllMembers(ctx context.Context, orgSID string) ([]rsi.OrgMember, error)
}

// ProfileStore reads linked profiles and records rank changes.
type ProfileStore interface {
	Get(ctx context.Context, discordID string) (members.Profile, error)
	RecordRankChange(ctx context.Context, change members.RankChange) (members.RoleChange, error)
}

// Notifier announces role changes and unlinked members.
type Notifier interface {
	NotifyRoleChange(ctx context.Context, guildID string, member platform.Member, change members.RoleChange) error
	NotifyUnlinkedSummary(ctx context.Context, guildID string, unlinked []platform.Member) error
}

// Platform is the chat surface the engine reads and mutates.
type Platform interface {
	platform.Guilds
	platform.Members
	platform.Roles
}

// Publisher receives engine events for operator streams.
type Publisher interface {
	Publish(message events.Message)
}

// Config describes the dependencies of an Engine.
type Config struct {
	Directory Directory
	Store     ProfileStore
	Platform  Platform
	Notifier  Notifier
	Policy    Policy
	OrgSID    string
	Publisher Publisher
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Report summarises one guild's pass.
type Report struct {
	GuildID    string               `json:"guild_id"`
	GuildName  string               `json:"guild_name"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Examined   int                  `json:"examined"`
	Changes    []members.RoleChange `json:"changes"`
	Unlinked   []string             `json:"unlinked"`
	Failures   int                  `json:"failures"`
	Aborted    bool                 `json:"aborted"`
	Error      string               `json:"error,omitempty"`
	// Cause is the error behind an aborted pass.
	Cause error `json:"-"`
}

// Engine reconciles guild rank roles against organisation membership.
type Engine struct {
	directory Directory
	store     ProfileStore
	platform  Platform
	notifier  Notifier
	policy    Policy
	orgSID    string
	publisher Publisher
	clock     func() time.Time
	logger    *zap.Logger

	running sync.Mutex
}

func NewEngine(cfg Config) (*Engine, error) {
	switch {
	case cfg.Directory == nil:
		return nil, fmt.Errorf("%w: directory", errMissingDependency)
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: profile store", errMissingDependency)
	case cfg.Platform == nil:
		return nil, fmt.Errorf("%w: platform", errMissingDependency)
	case cfg.Notifier == nil:
		return nil, fmt.Errorf("%w: notifier", errMissingDependency)
	case cfg.Policy.Ladder == nil:
		return nil, fmt.Errorf("%w: rank ladder", errMissingDependency)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.OrgSID) == "" {
		return nil, fmt.Errorf("%w: organization sid", errMissingDependency)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		directory: cfg.Directory,
		store:     cfg.Store,
		platform:  cfg.Platform,
		notifier:  cfg.Notifier,
		policy:    cfg.Policy,
		orgSID:    strings.TrimSpace(cfg.OrgSID),
		publisher: cfg.Publisher,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Run reconciles every guild sequentially and returns one report per guild.
// Overlapping calls fail fast with ErrPassInProgress.
func (e *Engine) Run(ctx context.Context) ([]Report, error) {
	if !e.running.TryLock() {
		return nil, ErrPassInProgress
	}
	defer e.running.Unlock()

	guilds, err := e.platform.Guilds(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list guilds: %w", err)
	}
	reports := make([]Report, 0, len(guilds))
	for _, guild := range guilds {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		reports = append(reports, e.runGuild(ctx, guild))
	}
	return reports, nil
}

// RunGuild reconciles a single guild. It shares the pass lock with Run.
func (e *Engine) RunGuild(ctx context.Context, guild platform.Guild) (Report, error) {
	if !e.running.TryLock() {
		return Report{}, ErrPassInProgress
	}
	defer e.running.Unlock()
	return e.runGuild(ctx, guild), nil
}

func (e *Engine) runGuild(ctx context.Context, guild platform.Guild) Report {
	report := Report{GuildID: guild.ID, GuildName: guild.Name, StartedAt: e.clock().UTC()}
	logger := e.logger.With(zap.String("guild_id", guild.ID), zap.String("guild_name", guild.Name))
	logger.Info("reconciliation pass started")

	abort := func(reason string, err error) Report {
		report.Aborted = true
		report.Error = err.Error()
		report.Cause = err
		report.FinishedAt = e.clock().UTC()
		logger.Warn("reconciliation pass aborted", zap.String("reason", reason), zap.Error(err))
		return report
	}

	roster, err := e.directory.FetchAllMembers(ctx, e.orgSID)
	if err != nil {
		return abort("roster_fetch_failed", err)
	}
	if len(roster) == 0 {
		return abort("roster_empty", ErrEmptyRoster)
	}
	handles := make(map[string]struct{}, len(roster))
	for _, entry := range roster {
		handles[members.HandleKey(entry.Handle)] = struct{}{}
	}

	guildMembers, err := e.platform.Members(ctx, guild.ID)
	if err != nil {
		return abort("member_list_failed", err)
	}

	var unlinked []platform.Member
	for _, member := range guildMembers {
		if member.Bot {
			continue
		}
		if err := ctx.Err(); err != nil {
			return abort("cancelled", err)
		}
		report.Examined++

		profile, err := e.store.Get(ctx, member.ID)
		if errors.Is(err, members.ErrProfileNotFound) {
			unlinked = append(unlinked, member)
			report.Unlinked = append(report.Unlinked, member.ID)
			continue
		}
		if err != nil {
			report.Failures++
			logger.Error("profile lookup failed", zap.String("discord_id", member.ID), zap.Error(err))
			continue
		}

		_, inOrg := handles[members.HandleKey(profile.Handle)]
		decision := e.policy.Decide(profile, member.Roles, inOrg)
		if !decision.Changes() {
			continue
		}

		change, err := e.apply(ctx, guild.ID, member, decision)
		if err != nil {
			report.Failures++
			logger.Error("rank change failed",
				zap.String("discord_id", member.ID),
				zap.String("state", decision.State.String()),
				zap.String("target", decision.Target),
				zap.Error(err))
			continue
		}
		report.Changes = append(report.Changes, change)
	}

	if len(unlinked) > 0 {
		if err := e.notifier.NotifyUnlinkedSummary(ctx, guild.ID, unlinked); err != nil {
			logger.Warn("unlinked summary failed", zap.Error(err))
		}
	}

	report.FinishedAt = e.clock().UTC()
	e.publish(events.Message{
		GuildID:   guild.ID,
		EventType: events.EventPassCompleted,
		Changes:   len(report.Changes),
		Timestamp: report.FinishedAt,
	})
	logger.Info("reconciliation pass completed",
		zap.Int("examined", report.Examined),
		zap.Int("changes", len(report.Changes)),
		zap.Int("unlinked", len(report.Unlinked)),
		zap.Int("failures", report.Failures))
	return report
}

// apply performs the swap, records history and notifies. Notification failures are logged only.
func (e *Engine) apply(ctx context.Context, guildID string, member platform.Member, decision Decision) (members.RoleChange, error) {
	if err := e.policy.Ladder.Swap(ctx, e.platform, guildID, member.ID, member.Roles, decision.Target); err != nil {
		return members.RoleChange{}, err
	}
	change, err := e.store.RecordRankChange(ctx, members.RankChange{
		DiscordID: member.ID,
		OldRank:   decision.Current,
		NewRank:   decision.Target,
		Reason:    decision.Reason,
	})
	if err != nil {
		return members.RoleChange{}, err
	}
	if err := e.notifier.NotifyRoleChange(ctx, guildID, member, change); err != nil {
		e.logger.Warn("role change notification failed",
			zap.String("guild_id", guildID),
			zap.String("discord_id", member.ID),
			zap.Error(err))
	}
	e.publish(events.Message{
		GuildID:   guildID,
		EventType: events.EventRoleChanged,
		DiscordID: member.ID,
		OldRank:   change.OldRank,
		NewRank:   change.NewRank,
		Reason:    change.Reason,
		Timestamp: change.CreatedAt,
	})
	return change, nil
}

func (e *Engine) publish(message events.Message) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(message)
}
