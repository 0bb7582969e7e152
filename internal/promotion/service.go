package promotion

import (
	"context"
	"errors"
	"fmt"

	"github.com/draxon/draxon-bots/internal/faults"
	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/notify"
	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/ranks"
	"github.com/draxon/draxon-bots/internal/settings"
	"go.uber.org/zap"
)

var (
	// ErrNotAuthorized reports an invoker without a manager role.
	ErrNotAuthorized = errors.New("promotion: manager role required")
	// ErrNoAdjacentRank reports a member at the end of the ladder or holding no rank.
	ErrNoAdjacentRank = errors.New("promotion: no adjacent rank")
)

// DefaultManagerRoles may promote and demote.
var DefaultManagerRoles = []string{"Chairman", "Director"}

// Platform reads members and swaps their rank roles.
type Platform interface {
	Member(ctx context.Context, guildID, userID string) (platform.Member, error)
	ranks.RoleMutator
}

// RankRecorder persists a manual rank change.
type RankRecorder interface {
	RecordRankChange(ctx context.Context, change members.RankChange) (members.RoleChange, error)
}

// Announcer posts the public promotion notice.
type Announcer interface {
	Announce(ctx context.Context, guildID string, kind notify.AnnouncementKind, member platform.Member, from, to string) error
}

// ChannelResolver looks up the guild's promotion channel.
type ChannelResolver interface {
	Channel(ctx context.Context, guildID string, binding settings.Binding) (string, error)
}

type Config struct {
	Platform     Platform
	Store        RankRecorder
	Announcer    Announcer
	Channels     ChannelResolver
	Ladder       *ranks.Ladder
	ManagerRoles []string
	Logger       *zap.Logger
}

// Service moves members one step along the ladder on a manager's request.
type Service struct {
	platform     Platform
	store        RankRecorder
	announcer    Announcer
	channels     ChannelResolver
	ladder       *ranks.Ladder
	managerRoles []string
	logger       *zap.Logger
}

// Request identifies who asked for the change and whom it applies to.
type Request struct {
	GuildID  string
	Actor    platform.Member
	TargetID string
}

// Outcome describes an applied change.
type Outcome struct {
	Kind   notify.AnnouncementKind
	Member platform.Member
	From   string
	To     string
	Change members.RoleChange
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Platform == nil || cfg.Store == nil || cfg.Announcer == nil || cfg.Channels == nil {
		return nil, fmt.Errorf("promotion: platform, store, announcer and channels are required")
	}
	ladder := cfg.Ladder
	if ladder == nil {
		ladder = ranks.MustDefault()
	}
	managerRoles := cfg.ManagerRoles
	if len(managerRoles) == 0 {
		managerRoles = DefaultManagerRoles
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		platform:     cfg.Platform,
		store:        cfg.Store,
		announcer:    cfg.Announcer,
		channels:     cfg.Channels,
		ladder:       ladder,
		managerRoles: append([]string(nil), managerRoles...),
		logger:       logger,
	}, nil
}

// Promote moves the target one rank up.
func (s *Service) Promote(ctx context.Context, request Request) (Outcome, error) {
	return s.move(ctx, request, notify.KindPromotion)
}

// Demote moves the target one rank down.
func (s *Service) Demote(ctx context.Context, request Request) (Outcome, error) {
	return s.move(ctx, request, notify.KindDemotion)
}

func (s *Service) move(ctx context.Context, request Request, kind notify.AnnouncementKind) (Outcome, error) {
	if !request.Actor.HasAnyRole(s.managerRoles) {
		return Outcome{}, ErrNotAuthorized
	}
	if _, err := s.channels.Channel(ctx, request.GuildID, settings.BindingPromotion); err != nil {
		return Outcome{}, err
	}
	target, err := s.platform.Member(ctx, request.GuildID, request.TargetID)
	if err != nil {
		return Outcome{}, err
	}

	from, _ := s.ladder.Current(target.Roles)
	var to string
	var ok bool
	if kind == notify.KindPromotion {
		to, ok = s.ladder.Next(target.Roles)
	} else {
		to, ok = s.ladder.Previous(target.Roles)
	}
	if !ok {
		return Outcome{Kind: kind, Member: target}, fmt.Errorf("%w for %s", ErrNoAdjacentRank, target.ID)
	}

	logger := s.logger.With(
		zap.String("guild_id", request.GuildID),
		zap.String("discord_id", target.ID),
		zap.String("actor_id", request.Actor.ID),
		zap.String("kind", kind.String()))

	if err := s.ladder.Swap(ctx, s.platform, request.GuildID, target.ID, target.Roles, to); err != nil {
		logger.Error("rank swap failed", zap.Error(err))
		return Outcome{}, err
	}
	change, err := s.store.RecordRankChange(ctx, members.RankChange{
		DiscordID: target.ID,
		OldRank:   from,
		NewRank:   to,
		Reason:    fmt.Sprintf("%s by %s", kind, request.Actor.Name()),
	})
	if err != nil {
		logger.Error("rank change not recorded", zap.Error(err))
		return Outcome{}, err
	}
	if err := s.announcer.Announce(ctx, request.GuildID, kind, target, from, to); err != nil {
		logger.Warn("announcement failed", zap.Error(err))
	}
	logger.Info("rank changed", zap.String("from", from), zap.String("to", to))
	return Outcome{Kind: kind, Member: target, From: from, To: to, Change: change}, nil
}

// Message renders the ephemeral reply for a promote or demote command.
func Message(outcome Outcome, err error) string {
	verb := "promoted"
	if outcome.Kind == notify.KindDemotion {
		verb = "demoted"
	}
	switch {
	case err == nil:
		return fmt.Sprintf("✅ Successfully %s %s to %s!", verb, outcome.Member.Mention(), outcome.To)
	case errors.Is(err, ErrNotAuthorized):
		return "❌ You don't have permission to use this command."
	case errors.Is(err, settings.ErrChannelNotConfigured):
		return "❌ Promotion channel not configured. Please use `/setup` first."
	case errors.Is(err, ErrNoAdjacentRank):
		limit := "highest"
		if outcome.Kind == notify.KindDemotion {
			limit = "lowest"
		}
		return fmt.Sprintf("❌ Cannot determine next rank for %s. They may be at the %s rank or have no valid rank.", outcome.Member.Mention(), limit)
	default:
		return faults.UserMessage(err)
	}
}
