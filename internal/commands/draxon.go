package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/draxon/draxon-bots/internal/faults"
	"github.com/draxon/draxon-bots/internal/linking"
	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/promotion"
	"github.com/draxon/draxon-bots/internal/ranks"
	"github.com/draxon/draxon-bots/internal/reconcile"
	"github.com/draxon/draxon-bots/internal/rsi"
	"github.com/draxon/draxon-bots/internal/settings"
	"go.uber.org/zap"
)

const (
	LinkFormID     = "draxon-link-modal"
	linkHandleID   = "handle"
	maxHandleInput = 50
)

// DefaultLeadershipRoles may read statistics and move ranks.
var DefaultLeadershipRoles = []string{"Chairman", "Director"}

type Linker interface {
	Link(ctx context.Context, request linking.Request) (linking.Result, error)
}

type Promoter interface {
	Promote(ctx context.Context, request promotion.Request) (promotion.Outcome, error)
	Demote(ctx context.Context, request promotion.Request) (promotion.Outcome, error)
}

type ChannelSettings interface {
	BindChannel(ctx context.Context, guildID string, binding settings.Binding, channelID string) error
	Bindings(ctx context.Context, guildID string) (map[settings.Binding]string, error)
}

type StatsSource interface {
	Stats(ctx context.Context) (members.Stats, error)
}

type Reconciler interface {
	RunGuild(ctx context.Context, guild platform.Guild) (reconcile.Report, error)
	Compare(ctx context.Context, guildID string) (reconcile.Comparison, error)
}

type Roster interface {
	FetchAllMembers(ctx context.Context, orgSID string) ([]rsi.OrgMember, error)
}

type IncidentChecker interface {
	Run(ctx context.Context) error
}

// DraxonConfig wires the membership bot's commands.
type DraxonConfig struct {
	Linker          Linker
	Promoter        Promoter
	Settings        ChannelSettings
	Stats           StatsSource
	Reconciler      Reconciler
	Roster          Roster
	Incidents       IncidentChecker
	Members         platform.Members
	Ladder          *ranks.Ladder
	OrgSID          string
	LeadershipRoles []string
	AdminRole       string
	Version         string
	Logger          *zap.Logger
}

type draxonCommands struct {
	cfg    DraxonConfig
	logger *zap.Logger
}

// RegisterDraxon adds the membership bot's commands to router.
func RegisterDraxon(router *Router, cfg DraxonConfig) error {
	if cfg.Linker == nil || cfg.Promoter == nil || cfg.Settings == nil || cfg.Stats == nil ||
		cfg.Reconciler == nil || cfg.Roster == nil || cfg.Incidents == nil || cfg.Members == nil {
		return fmt.Errorf("commands: incomplete membership bot configuration")
	}
	if cfg.Ladder == nil {
		cfg.Ladder = ranks.MustDefault()
	}
	if len(cfg.LeadershipRoles) == 0 {
		cfg.LeadershipRoles = DefaultLeadershipRoles
	}
	if cfg.AdminRole == "" {
		cfg.AdminRole = "Chairman"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &draxonCommands{cfg: cfg, logger: logger}
	admin := []string{cfg.AdminRole}
	memberOption := []Option{{Name: "member", Description: "The member to move", Type: OptionUser, Required: true}}

	router.Command(Definition{Name: "draxon-link", Description: "Link your RSI account"}, c.link)
	router.Form(LinkFormID, c.submitLink)
	router.Command(Definition{Name: "promote", Description: "Promote a member to the next rank", Options: memberOption, Deferred: true}, c.promote)
	router.Command(Definition{Name: "demote", Description: "Demote a member to the previous rank", Options: memberOption, Deferred: true}, c.demote)
	router.Command(Definition{
		Name:        "setup",
		Description: "Configure bot channels",
		Options: []Option{
			{Name: "type", Description: "Notification type", Type: OptionString, Required: true, Choices: []string{
				string(settings.BindingIncidents), string(settings.BindingPromotion),
				string(settings.BindingDemotion), string(settings.BindingReminder),
			}},
			{Name: "channel", Description: "Channel to post to", Type: OptionChannel, Required: true},
		},
	}, requireRole(admin, c.setup))
	router.Command(Definition{Name: "draxon-stats", Description: "Display DraXon member statistics", Deferred: true}, requireRole(cfg.LeadershipRoles, c.stats))
	router.Command(Definition{Name: "draxon-org", Description: "Display organization member list", Deferred: true}, requireRole(admin, c.org))
	router.Command(Definition{Name: "draxon-compare", Description: "Compare Discord and Org members", Deferred: true}, requireRole(admin, c.compare))
	router.Command(Definition{Name: "force-check", Description: "Run the incident check and membership reconciliation now", Deferred: true}, requireRole(admin, c.forceCheck))
	router.Command(Definition{Name: "help", Description: "Display available DraXon AI commands"}, c.help)
	return nil
}

func (c *draxonCommands) link(ctx context.Context, request Request) Response {
	return Response{Modal: &Modal{
		ID:    LinkFormID,
		Title: "Link RSI Account",
		Fields: []ModalField{{
			ID:          linkHandleID,
			Label:       "RSI Handle",
			Placeholder: "Enter your RSI handle",
			Required:    true,
			MaxLength:   maxHandleInput,
		}},
	}}
}

func (c *draxonCommands) submitLink(ctx context.Context, request Request) Response {
	rank, _ := c.cfg.Ladder.Current(request.Member.Roles)
	result, err := c.cfg.Linker.Link(ctx, linking.Request{
		DiscordID:   request.Member.ID,
		Handle:      request.Option(linkHandleID),
		CurrentRank: rank,
	})
	return Ephemeral(linking.Message(result, err))
}

func (c *draxonCommands) promote(ctx context.Context, request Request) Response {
	outcome, err := c.cfg.Promoter.Promote(ctx, c.promotionRequest(request))
	return Ephemeral(promotion.Message(outcome, err))
}

func (c *draxonCommands) demote(ctx context.Context, request Request) Response {
	outcome, err := c.cfg.Promoter.Demote(ctx, c.promotionRequest(request))
	return Ephemeral(promotion.Message(outcome, err))
}

func (c *draxonCommands) promotionRequest(request Request) promotion.Request {
	return promotion.Request{GuildID: request.GuildID, Actor: request.Member, TargetID: request.Option("member")}
}

func (c *draxonCommands) setup(ctx context.Context, request Request) Response {
	binding, ok := settings.ParseBinding(request.Option("type"))
	if !ok || binding == settings.BindingAlert {
		return Ephemeral("❌ Unknown channel type.")
	}
	channelID := request.Option("channel")
	if channelID == "" {
		return Ephemeral("❌ Please select a channel.")
	}
	if err := c.cfg.Settings.BindChannel(ctx, request.GuildID, binding, channelID); err != nil {
		c.logger.Error("channel binding failed", zap.String("guild_id", request.GuildID), zap.Error(err))
		return Ephemeral(faults.UserMessage(err))
	}
	bindings, err := c.cfg.Settings.Bindings(ctx, request.GuildID)
	if err != nil {
		return Ephemeral(faults.UserMessage(err))
	}
	c.logger.Info("channel configured",
		zap.String("guild_id", request.GuildID),
		zap.String("binding", string(binding)),
		zap.String("channel_id", channelID),
		zap.String("actor_id", request.Member.ID))
	return Ephemeral("✅ Channel configuration has been updated:\n" + renderBindings(bindings))
}

func (c *draxonCommands) stats(ctx context.Context, request Request) Response {
	guildMembers, err := c.cfg.Members.Members(ctx, request.GuildID)
	if err != nil {
		c.logger.Error("stats member listing failed", zap.String("guild_id", request.GuildID), zap.Error(err))
		return Ephemeral("❌ An error occurred while fetching statistics.")
	}
	stats, err := c.cfg.Stats.Stats(ctx)
	if err != nil {
		c.logger.Error("stats query failed", zap.Error(err))
		return Ephemeral("❌ An error occurred while fetching statistics.")
	}
	return Ephemeral(renderStats(c.cfg.Ladder, guildMembers, stats))
}

func (c *draxonCommands) org(ctx context.Context, request Request) Response {
	roster, err := c.cfg.Roster.FetchAllMembers(ctx, c.cfg.OrgSID)
	if err != nil {
		return Ephemeral("❌ Failed to fetch organization members.\n" + faults.UserMessage(err))
	}
	return Response{
		Content:   fmt.Sprintf("Organization Members List (%d, attached as file)", len(roster)),
		Ephemeral: true,
		File:      &File{Name: "draxon_members.txt", Content: renderRoster(roster)},
	}
}

func (c *draxonCommands) compare(ctx context.Context, request Request) Response {
	comparison, err := c.cfg.Reconciler.Compare(ctx, request.GuildID)
	if err != nil {
		return Ephemeral("❌ Failed to compare members.\n" + faults.UserMessage(err))
	}
	counts := comparison.Counts()
	summary := fmt.Sprintf("📊 **Member Comparison**\n✅ Linked and in org: %d\n⚠️ Linked but not in org: %d\n❌ Not linked: %d\n👤 Roster handles not linked in this server: %d",
		counts[reconcile.MatchLinkedInOrg], counts[reconcile.MatchLinkedNotInOrg], counts[reconcile.MatchUnlinked], len(comparison.RosterNotInGuild))
	return Response{
		Content:   summary,
		Ephemeral: true,
		File:      &File{Name: "member_comparison.txt", Content: renderComparison(comparison)},
	}
}

func (c *draxonCommands) forceCheck(ctx context.Context, request Request) Response {
	lines := []string{}
	if err := c.cfg.Incidents.Run(ctx); err != nil {
		c.logger.Warn("forced incident check failed", zap.Error(err))
		lines = append(lines, "⚠️ Incident check failed: "+faults.UserMessage(err))
	} else {
		lines = append(lines, "✅ Incident check completed.")
	}

	report, err := c.cfg.Reconciler.RunGuild(ctx, platform.Guild{ID: request.GuildID})
	switch {
	case errors.Is(err, reconcile.ErrPassInProgress):
		lines = append(lines, "⏳ A membership check is already running.")
	case err != nil:
		lines = append(lines, "⚠️ Membership check aborted: "+faults.UserMessage(err))
	case report.Aborted && errors.Is(report.Cause, rsi.ErrMaintenance):
		lines = append(lines, "🔧 Membership check skipped: the RSI API is in its daily maintenance window. Please try again later.")
	case report.Aborted:
		lines = append(lines, "⚠️ Membership check aborted: "+abortMessage(report))
	default:
		lines = append(lines, fmt.Sprintf("✅ Membership check completed: %d examined, %d rank changes, %d unlinked, %d failures.",
			report.Examined, len(report.Changes), len(report.Unlinked), report.Failures))
	}
	return Ephemeral(strings.Join(lines, "\n"))
}

func abortMessage(report reconcile.Report) string {
	if report.Cause != nil {
		return faults.UserMessage(report.Cause)
	}
	return report.Error
}

func (c *draxonCommands) help(ctx context.Context, request Request) Response {
	return Ephemeral(renderHelp(c.cfg.Version, request.Member, c.cfg.LeadershipRoles, c.cfg.AdminRole))
}
