// Package platformtest provides an in-memory chat platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/draxon/draxon-bots/internal/faults"
	"github.com/draxon/draxon-bots/internal/platform"
)

// RoleMutation is one recorded AddRole or RemoveRole call.
type RoleMutation struct {
	GuildID string
	UserID  string
	Role    string
	Added   bool
}

// SentMessage is one recorded channel post or direct message.
type SentMessage struct {
	ChannelID string
	UserID    string
	Content   string
}

// Thread is one recorded StartThread call.
type Thread struct {
	ChannelID   string
	MessageID   string
	Name        string
	AutoArchive time.Duration
}

// Fake implements platform.Platform in memory and records every mutation.
type Fake struct {
	mu sync.Mutex

	guilds   []platform.Guild
	members  map[string][]platform.Member
	channels map[string][]platform.Channel

	Mutations []RoleMutation
	Messages  []SentMessage
	Directs   []SentMessage
	Renames   map[string]string
	Threads   []Thread

	// FailDirect makes SendDirect fail for the listed user ids.
	FailDirect map[string]error
	// FailSend makes SendMessage fail for the listed channel ids.
	FailSend map[string]error
	// FailRole makes role mutations fail for the listed user ids.
	FailRole map[string]error
	// FailMembers makes Members fail for the listed guild ids.
	FailMembers map[string]error

	nextID int
}

// New returns an empty fake platform.
func New() *Fake {
	return &Fake{
		members:     make(map[string][]platform.Member),
		channels:    make(map[string][]platform.Channel),
		Renames:     make(map[string]string),
		FailDirect:  make(map[string]error),
		FailSend:    make(map[string]error),
		FailRole:    make(map[string]error),
		FailMembers: make(map[string]error),
	}
}

// AddGuild registers a guild with its members.
func (f *Fake) AddGuild(guild platform.Guild, members ...platform.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds = append(f.guilds, guild)
	for _, member := range members {
		member.Roles = append([]string(nil), member.Roles...)
		f.members[guild.ID] = append(f.members[guild.ID], member)
	}
}

// AddChannel registers a channel in guildID.
func (f *Fake) AddChannel(guildID string, channel platform.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	channel.GuildID = guildID
	f.channels[guildID] = append(f.channels[guildID], channel)
}

// RolesOf returns the role names currently held by userID in guildID, sorted.
func (f *Fake) RolesOf(guildID, userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members[guildID] {
		if member.ID == userID {
			roles := append([]string(nil), member.Roles...)
			sort.Strings(roles)
			return roles
		}
	}
	return nil
}

// MutationCount returns how many role mutations were recorded.
func (f *Fake) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Mutations)
}

func (f *Fake) Guilds(ctx context.Context) ([]platform.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Guild(nil), f.guilds...), nil
}

func (f *Fake) Members(ctx context.Context, guildID string) ([]platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailMembers[guildID]; err != nil {
		return nil, err
	}
	members := make([]platform.Member, 0, len(f.members[guildID]))
	for _, member := range f.members[guildID] {
		member.Roles = append([]string(nil), member.Roles...)
		members = append(members, member)
	}
	return members, nil
}

func (f *Fake) Member(ctx context.Context, guildID, userID string) (platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members[guildID] {
		if member.ID == userID {
			member.Roles = append([]string(nil), member.Roles...)
			return member, nil
		}
	}
	return platform.Member{}, fmt.Errorf("member %s %w", userID, faults.ErrNotFound)
}

func (f *Fake) AddRole(ctx context.Context, guildID, userID, roleName string) error {
	return f.mutateRole(guildID, userID, roleName, true)
}

func (f *Fake) RemoveRole(ctx context.Context, guildID, userID, roleName string) error {
	return f.mutateRole(guildID, userID, roleName, false)
}

func (f *Fake) mutateRole(guildID, userID, roleName string, add bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailRole[userID]; err != nil {
		return err
	}
	members := f.members[guildID]
	for i := range members {
		if members[i].ID != userID {
			continue
		}
		roles := make([]string, 0, len(members[i].Roles)+1)
		for _, role := range members[i].Roles {
			if role != roleName {
				roles = append(roles, role)
			}
		}
		if add {
			roles = append(roles, roleName)
		}
		members[i].Roles = roles
		f.Mutations = append(f.Mutations, RoleMutation{GuildID: guildID, UserID: userID, Role: roleName, Added: add})
		return nil
	}
	return fmt.Errorf("member %s %w", userID, faults.ErrNotFound)
}

func (f *Fake) SendMessage(ctx context.Context, channelID, content string) (platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailSend[channelID]; err != nil {
		return platform.Message{}, err
	}
	f.nextID++
	f.Messages = append(f.Messages, SentMessage{ChannelID: channelID, Content: content})
	return platform.Message{ID: fmt.Sprintf("msg-%d", f.nextID), ChannelID: channelID}, nil
}

func (f *Fake) SendDirect(ctx context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailDirect[userID]; err != nil {
		return err
	}
	f.Directs = append(f.Directs, SentMessage{UserID: userID, Content: content})
	return nil
}

func (f *Fake) Channels(ctx context.Context, guildID string) ([]platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Channel(nil), f.channels[guildID]...), nil
}

func (f *Fake) RenameChannel(ctx context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for guildID, channels := range f.channels {
		for i := range channels {
			if channels[i].ID == channelID {
				f.channels[guildID][i].Name = name
				f.Renames[channelID] = name
				return nil
			}
		}
	}
	return fmt.Errorf("channel %s %w", channelID, faults.ErrNotFound)
}

func (f *Fake) StartThread(ctx context.Context, channelID, messageID, name string, autoArchive time.Duration) (platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.Threads = append(f.Threads, Thread{ChannelID: channelID, MessageID: messageID, Name: name, AutoArchive: autoArchive})
	return platform.Channel{ID: fmt.Sprintf("thread-%d", f.nextID), Name: name, Kind: platform.ChannelText}, nil
}

var _ platform.Platform = (*Fake)(nil)
