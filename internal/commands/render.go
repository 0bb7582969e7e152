package commands

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/ranks"
	"github.com/draxon/draxon-bots/internal/reconcile"
	"github.com/draxon/draxon-bots/internal/rsi"
	"github.com/draxon/draxon-bots/internal/settings"
)

var bindingOrder = []settings.Binding{
	settings.BindingIncidents,
	settings.BindingPromotion,
	settings.BindingDemotion,
	settings.BindingReminder,
}

func renderBindings(bindings map[settings.Binding]string) string {
	lines := make([]string, 0, len(bindingOrder))
	for _, binding := range bindingOrder {
		value := "Not Configured"
		if channelID, ok := bindings[binding]; ok {
			value = "<#" + channelID + ">"
		}
		lines = append(lines, fmt.Sprintf("└ %s: %s", strings.ToUpper(string(binding)[:1])+string(binding)[1:], value))
	}
	return strings.Join(lines, "\n")
}

func renderStats(ladder *ranks.Ladder, guildMembers []platform.Member, stats members.Stats) string {
	counts := make(map[string]int, ladder.Len())
	humans, bots := 0, 0
	for _, member := range guildMembers {
		if member.Bot {
			bots++
			continue
		}
		humans++
		if rank, ok := ladder.Current(member.Roles); ok {
			counts[rank]++
		}
	}

	var b strings.Builder
	b.WriteString("📊 **DraXon Member Statistics**\n\n👥 **Member Breakdown:**\n")
	names := ladder.Names()
	for i := len(names) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "└ %s: %d\n", names[i], counts[names[i]])
	}
	fmt.Fprintf(&b, "\nTotal Human Members: %d\nTotal Automated Systems: %d\n\n", humans, bots)
	b.WriteString("🔗 **Linked Accounts:**\n")
	fmt.Fprintf(&b, "└ Linked: %d\n└ Verified: %d\n", stats.TotalMembers, stats.VerifiedMembers)
	for _, status := range []members.OrgStatus{members.StatusMain, members.StatusAffiliate, members.StatusNotFound} {
		fmt.Fprintf(&b, "└ %s: %d\n", status, stats.ByStatus[status])
	}
	fmt.Fprintf(&b, "└ Rank changes recorded: %d", stats.RoleChanges)
	return b.String()
}

func renderRoster(roster []rsi.OrgMember) string {
	sorted := append([]rsi.OrgMember(nil), roster...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Stars != sorted[j].Stars {
			return sorted[i].Stars > sorted[j].Stars
		}
		return strings.ToLower(sorted[i].Handle) < strings.ToLower(sorted[j].Handle)
	})
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Handle\tDisplay\tRank\tStars\tRoles")
	for _, member := range sorted {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", member.Handle, member.Display, member.Rank, member.Stars, strings.Join(member.Roles, ", "))
	}
	_ = w.Flush()
	return buf.String()
}

func renderComparison(comparison reconcile.Comparison) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Status\tDiscord\tRank\tRSI Handle")
	for _, entry := range comparison.Entries {
		handle := entry.Handle
		if handle == "" {
			handle = "-"
		}
		rank := entry.Rank
		if rank == "" {
			rank = members.NoRank
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Status, entry.Name, rank, handle)
	}
	_ = w.Flush()
	if len(comparison.RosterNotInGuild) > 0 {
		buf.WriteString("\nRoster handles not linked in this server:\n")
		for _, handle := range comparison.RosterNotInGuild {
			buf.WriteString("- " + handle + "\n")
		}
	}
	return buf.String()
}

func renderHelp(version string, member platform.Member, leadership []string, adminRole string) string {
	var b strings.Builder
	title := "DraXon AI Commands"
	if version != "" {
		title += " v" + version
	}
	b.WriteString("**" + title + "**\n\n📌 **Basic Commands**\n")
	b.WriteString("`/draxon-link`: Link your RSI account with Discord\n")
	b.WriteString("`/help`: Display this help message\n")
	if member.HasAnyRole(leadership) {
		b.WriteString("\n👥 **Leadership Commands**\n")
		b.WriteString("`/draxon-stats`: Display detailed member statistics\n")
		b.WriteString("`/promote`: Promote a member to the next rank\n")
		b.WriteString("`/demote`: Demote a member to the previous rank\n")
	}
	if member.HasRole(adminRole) {
		b.WriteString("\n⚡ **Chairman Commands**\n")
		b.WriteString("`/draxon-org`: View organization member list\n")
		b.WriteString("`/draxon-compare`: Compare Discord and RSI members\n")
		b.WriteString("`/setup`: Configure bot channels and notifications\n")
		b.WriteString("`/force-check`: Run incident and membership checks now\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
