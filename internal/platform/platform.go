package platform

import (
	"context"
	"time"
)

// Guild is a chat server the bot has joined.
type Guild struct {
	ID   string
	Name string
}

// Member is a guild member with role names resolved.
type Member struct {
	ID          string
	Username    string
	DisplayName string
	Bot         bool
	Roles       []string
}

// Mention renders the chat mention for the member.
func (m Member) Mention() string {
	return Mention(m.ID)
}

// Name prefers the guild display name over the account name.
func (m Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Username
}

// HasRole reports whether the member holds a role with the given name.
func (m Member) HasRole(name string) bool {
	for _, role := range m.Roles {
		if role == name {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the member holds at least one of names.
func (m Member) HasAnyRole(names []string) bool {
	for _, name := range names {
		if m.HasRole(name) {
			return true
		}
	}
	return false
}

// Mention renders the chat mention for a user id.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// ChannelKind is the coarse channel type the bots care about.
type ChannelKind int

const (
	ChannelOther ChannelKind = iota
	ChannelText
	ChannelVoice
	ChannelCategory
)

// Channel is a guild channel or thread.
type Channel struct {
	ID      string
	GuildID string
	Name    string
	Kind    ChannelKind
}

// Message identifies a posted message.
type Message struct {
	ID        string
	ChannelID string
}

// Guilds lists the guilds the bot belongs to.
type Guilds interface {
	Guilds(ctx context.Context) ([]Guild, error)
}

// Members reads guild membership.
type Members interface {
	Members(ctx context.Context, guildID string) ([]Member, error)
	Member(ctx context.Context, guildID, userID string) (Member, error)
}

// Roles mutates role assignments by role name.
type Roles interface {
	AddRole(ctx context.Context, guildID, userID, roleName string) error
	RemoveRole(ctx context.Context, guildID, userID, roleName string) error
}

// Messenger posts to channels and direct messages.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string) (Message, error)
	SendDirect(ctx context.Context, userID, content string) error
}

// Channels lists and edits guild channels.
type Channels interface {
	Channels(ctx context.Context, guildID string) ([]Channel, error)
	RenameChannel(ctx context.Context, channelID, name string) error
	StartThread(ctx context.Context, channelID, messageID, name string, autoArchive time.Duration) (Channel, error)
}

// Platform is the full chat surface used by the bots.
type Platform interface {
	Guilds
	Members
	Roles
	Messenger
	Channels
}
