package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/draxon/draxon-bots/internal/members"
)

// MatchStatus is the outcome of comparing one guild member with the roster.
type MatchStatus string

const (
	MatchLinkedInOrg    MatchStatus = "match"
	MatchLinkedNotInOrg MatchStatus = "mismatch"
	MatchUnlinked       MatchStatus = "missing"
)

// Comparison lines up guild members with the organisation roster.
type Comparison struct {
	GuildID          string            `json:"guild_id"`
	Entries          []ComparisonEntry `json:"entries"`
	RosterSize       int               `json:"roster_size"`
	RosterNotInGuild []string          `json:"roster_not_in_guild"`
}

// ComparisonEntry is one guild member's link state.
type ComparisonEntry struct {
	DiscordID string      `json:"discord_id"`
	Name      string      `json:"name"`
	Handle    string      `json:"handle,omitempty"`
	Rank      string      `json:"rank,omitempty"`
	Status    MatchStatus `json:"status"`
}

// Counts tallies entries by status.
func (c Comparison) Counts() map[MatchStatus]int {
	counts := make(map[MatchStatus]int, 3)
	for _, entry := range c.Entries {
		counts[entry.Status]++
	}
	return counts
}

// Compare reports which guild members are linked and present on the roster,
// and which roster handles are not linked to anyone in the guild. It never mutates.
func (e *Engine) Compare(ctx context.Context, guildID string) (Comparison, error) {
	roster, err := e.directory.FetchAllMembers(ctx, e.orgSID)
	if err != nil {
		return Comparison{}, err
	}
	guildMembers, err := e.platform.Members(ctx, guildID)
	if err != nil {
		return Comparison{}, fmt.Errorf("reconcile: list members: %w", err)
	}

	rosterHandles := make(map[string]string, len(roster))
	for _, entry := range roster {
		rosterHandles[members.HandleKey(entry.Handle)] = entry.Handle
	}

	comparison := Comparison{GuildID: guildID, RosterSize: len(roster)}
	linked := make(map[string]struct{}, len(guildMembers))
	for _, member := range guildMembers {
		if member.Bot {
			continue
		}
		entry := ComparisonEntry{DiscordID: member.ID, Name: member.Name()}
		entry.Rank, _ = e.policy.Ladder.Current(member.Roles)

		profile, err := e.store.Get(ctx, member.ID)
		switch {
		case errors.Is(err, members.ErrProfileNotFound):
			entry.Status = MatchUnlinked
		case err != nil:
			return Comparison{}, err
		default:
			key := members.HandleKey(profile.Handle)
			entry.Handle = profile.Handle
			linked[key] = struct{}{}
			if _, ok := rosterHandles[key]; ok {
				entry.Status = MatchLinkedInOrg
			} else {
				entry.Status = MatchLinkedNotInOrg
			}
		}
		comparison.Entries = append(comparison.Entries, entry)
	}

	for key, handle := range rosterHandles {
		if _, ok := linked[key]; !ok {
			comparison.RosterNotInGuild = append(comparison.RosterNotInGuild, handle)
		}
	}
	sort.Strings(comparison.RosterNotInGuild)
	sort.Slice(comparison.Entries, func(i, j int) bool {
		return comparison.Entries[i].Name < comparison.Entries[j].Name
	})
	return comparison, nil
}
