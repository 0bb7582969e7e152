package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/draxon/draxon-bots/internal/faults"
	"github.com/draxon/draxon-bots/internal/platform"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	memberPageSize = 1000
	// Discord accepts thread auto-archive durations in minutes from this set.
	archive1h  = 60
	archive24h = 1440
	archive3d  = 4320
	archive7d  = 10080
)

// Config describes a Discord client.
type Config struct {
	Token string
	// Limiter paces role changes and channel edits. Defaults to 5 per second.
	Limiter *rate.Limiter
	Logger  *zap.Logger
}

// Client implements platform.Platform on a discordgo session.
type Client struct {
	session *discordgo.Session
	limiter *rate.Limiter
	logger  *zap.Logger

	mu    sync.RWMutex
	roles map[string]*roleIndex
}

type roleIndex struct {
	byName map[string]string
	byID   map[string]string
}

// New creates a client with guild and member intents. Call Open to connect.
func New(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return newClient(session, cfg.Limiter, cfg.Logger), nil
}

func newClient(session *discordgo.Session, limiter *rate.Limiter, logger *zap.Logger) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(5), 5)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		session: session,
		limiter: limiter,
		logger:  logger,
		roles:   make(map[string]*roleIndex),
	}
}

// Session exposes the underlying session for handler registration.
func (c *Client) Session() *discordgo.Session {
	return c.session
}

// Open connects the gateway.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	c.logger.Info("discord gateway connected")
	return nil
}

// Close disconnects the gateway.
func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) Guilds(ctx context.Context) ([]platform.Guild, error) {
	c.session.State.RLock()
	defer c.session.State.RUnlock()
	guilds := make([]platform.Guild, 0, len(c.session.State.Guilds))
	for _, guild := range c.session.State.Guilds {
		guilds = append(guilds, platform.Guild{ID: guild.ID, Name: guild.Name})
	}
	return guilds, nil
}

func (c *Client) Members(ctx context.Context, guildID string) ([]platform.Member, error) {
	index, err := c.refreshRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	var result []platform.Member
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := c.session.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError("list members", err)
		}
		for _, member := range page {
			result = append(result, convertMember(member, index))
		}
		if len(page) < memberPageSize {
			return result, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (c *Client) Member(ctx context.Context, guildID, userID string) (platform.Member, error) {
	member, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Member{}, mapError("get member", err)
	}
	index, err := c.roleIndex(ctx, guildID, member.Roles...)
	if err != nil {
		return platform.Member{}, err
	}
	return convertMember(member, index), nil
}

// ResolveMember converts a member delivered with an interaction.
func (c *Client) ResolveMember(ctx context.Context, guildID string, member *discordgo.Member) (platform.Member, error) {
	if member == nil || member.User == nil {
		return platform.Member{}, fmt.Errorf("discord: interaction without member: %w", faults.ErrNotFound)
	}
	index, err := c.roleIndex(ctx, guildID, member.Roles...)
	if err != nil {
		return platform.Member{}, err
	}
	return convertMember(member, index), nil
}

func (c *Client) AddRole(ctx context.Context, guildID, userID, roleName string) error {
	roleID, err := c.roleID(ctx, guildID, roleName)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return mapError("add role "+roleName, err)
	}
	return nil
}

func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleName string) error {
	roleID, err := c.roleID(ctx, guildID, roleName)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return mapError("remove role "+roleName, err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, channelID, content string) (platform.Message, error) {
	message, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Message{}, mapError("send message", err)
	}
	return platform.Message{ID: message.ID, ChannelID: message.ChannelID}, nil
}

func (c *Client) SendDirect(ctx context.Context, userID, content string) error {
	channel, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapError("open direct channel", err)
	}
	if _, err := c.session.ChannelMessageSend(channel.ID, content, discordgo.WithContext(ctx)); err != nil {
		return mapError("send direct message", err)
	}
	return nil
}

func (c *Client) Channels(ctx context.Context, guildID string) ([]platform.Channel, error) {
	channels, err := c.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("list channels", err)
	}
	result := make([]platform.Channel, 0, len(channels))
	for _, channel := range channels {
		result = append(result, convertChannel(channel))
	}
	return result, nil
}

func (c *Client) RenameChannel(ctx context.Context, channelID, name string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx)); err != nil {
		return mapError("rename channel", err)
	}
	return nil
}

func (c *Client) StartThread(ctx context.Context, channelID, messageID, name string, autoArchive time.Duration) (platform.Channel, error) {
	thread, err := c.session.MessageThreadStartComplex(channelID, messageID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: archiveMinutes(autoArchive),
		Type:                discordgo.ChannelTypeGuildPublicThread,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Channel{}, mapError("start thread", err)
	}
	return convertChannel(thread), nil
}

// roleID resolves a role name, refreshing the guild's roles once on a miss.
func (c *Client) roleID(ctx context.Context, guildID, roleName string) (string, error) {
	c.mu.RLock()
	index := c.roles[guildID]
	c.mu.RUnlock()
	if index != nil {
		if id, ok := index.byName[roleName]; ok {
			return id, nil
		}
	}
	index, err := c.refreshRoles(ctx, guildID)
	if err != nil {
		return "", err
	}
	id, ok := index.byName[roleName]
	if !ok {
		return "", fmt.Errorf("role %q %w", roleName, faults.ErrNotFound)
	}
	return id, nil
}

// roleIndex returns the cached index when it knows every id in ids.
func (c *Client) roleIndex(ctx context.Context, guildID string, ids ...string) (*roleIndex, error) {
	c.mu.RLock()
	index := c.roles[guildID]
	c.mu.RUnlock()
	if index != nil && index.knows(ids) {
		return index, nil
	}
	return c.refreshRoles(ctx, guildID)
}

func (c *Client) refreshRoles(ctx context.Context, guildID string) (*roleIndex, error) {
	roles, err := c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("list roles", err)
	}
	index := newRoleIndex(roles)
	c.mu.Lock()
	c.roles[guildID] = index
	c.mu.Unlock()
	return index, nil
}

func newRoleIndex(roles []*discordgo.Role) *roleIndex {
	index := &roleIndex{
		byName: make(map[string]string, len(roles)),
		byID:   make(map[string]string, len(roles)),
	}
	for _, role := range roles {
		index.byName[role.Name] = role.ID
		index.byID[role.ID] = role.Name
	}
	return index
}

func (r *roleIndex) knows(ids []string) bool {
	for _, id := range ids {
		if _, ok := r.byID[id]; !ok {
			return false
		}
	}
	return true
}

func convertMember(member *discordgo.Member, index *roleIndex) platform.Member {
	converted := platform.Member{DisplayName: member.Nick}
	if member.User != nil {
		converted.ID = member.User.ID
		converted.Username = member.User.Username
		converted.Bot = member.User.Bot
		if converted.DisplayName == "" {
			converted.DisplayName = member.User.GlobalName
		}
	}
	for _, id := range member.Roles {
		if name, ok := index.byID[id]; ok {
			converted.Roles = append(converted.Roles, name)
		}
	}
	return converted
}

func convertChannel(channel *discordgo.Channel) platform.Channel {
	kind := platform.ChannelOther
	switch channel.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildPublicThread:
		kind = platform.ChannelText
	case discordgo.ChannelTypeGuildVoice:
		kind = platform.ChannelVoice
	case discordgo.ChannelTypeGuildCategory:
		kind = platform.ChannelCategory
	}
	return platform.Channel{ID: channel.ID, GuildID: channel.GuildID, Name: channel.Name, Kind: kind}
}

// archiveMinutes rounds d up to the nearest duration Discord accepts.
func archiveMinutes(d time.Duration) int {
	minutes := int(d / time.Minute)
	for _, allowed := range []int{archive1h, archive24h, archive3d} {
		if minutes <= allowed {
			return allowed
		}
	}
	return archive7d
}

var _ platform.Platform = (*Client)(nil)
