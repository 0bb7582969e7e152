package notify

import "fmt"

// AnnouncementKind selects the promotion or demotion template set.
type AnnouncementKind int

const (
	KindPromotion AnnouncementKind = iota
	KindDemotion
)

func (k AnnouncementKind) String() string {
	if k == KindDemotion {
		return "demotion"
	}
	return "promotion"
}

// UnlinkedReminder is sent to every member without a linked RSI account.
const UnlinkedReminder = `👋 Hello! This is a friendly reminder to link your RSI account with our Discord server.

You can do this by using the ` + "`/draxon-link`" + ` command in any channel.

Linking your account keeps our organization structure accurate and gives you access to every channel and feature you are entitled to.`

// maxSummaryLength bounds the unlinked member list in the summary post.
const maxSummaryLength = 1024

type announcementTemplate func(mention, from, to string) string

var promotionTemplates = []announcementTemplate{
	func(mention, from, to string) string {
		return fmt.Sprintf("🎉 **DraXon Promotion Announcement** 🎉\n\n@everyone\n\n"+
			"It is with great pleasure that we announce the promotion of %s to the position of **%s**!\n\n"+
			"📋 **Promotion Details**\n• Previous Role: %s\n• New Role: %s\n\n"+
			"Please join us in congratulating %s on this well-deserved promotion! 🚀",
			mention, to, from, to, mention)
	},
	func(mention, from, to string) string {
		return fmt.Sprintf("🌟 **Promotion Announcement** 🌟\n\n@everyone\n\n"+
			"We are delighted to announce that %s has been promoted to **%s**!\n\n"+
			"🎯 **Achievement Details**\n• Advanced from: %s\n• New Position: %s\n\n"+
			"Congratulations on this outstanding achievement! 🏆",
			mention, to, from, to)
	},
	func(mention, from, to string) string {
		return fmt.Sprintf("📢 **DraXon Personnel Update** 📢\n\n@everyone\n\n"+
			"We are proud to announce the promotion of %s to **%s**!\n\n"+
			"📈 **Career Progression**\n• Former Position: %s\n• New Role: %s\n\n"+
			"Thank you for your continued dedication to DraXon's mission. ⭐",
			mention, to, from, to)
	},
}

var demotionTemplates = []announcementTemplate{
	func(mention, from, to string) string {
		return fmt.Sprintf("📢 **DraXon Personnel Notice** 📢\n\n@everyone\n\n"+
			"This notice serves to inform all members that %s has been reassigned to the position of **%s**.\n\n"+
			"📋 **Position Update**\n• Previous Role: %s\n• New Role: %s\n\n"+
			"This change is effective immediately. 📝",
			mention, to, from, to)
	},
	func(mention, from, to string) string {
		return fmt.Sprintf("⚠️ **DraXon Rank Adjustment** ⚠️\n\n@everyone\n\n"+
			"Please be advised that %s's position has been adjusted to **%s**.\n\n"+
			"📊 **Status Update**\n• Previous Position: %s\n• Updated Position: %s\n\n"+
			"This change takes effect immediately. 📌",
			mention, to, from, to)
	},
	func(mention, from, to string) string {
		return fmt.Sprintf("📋 **DraXon Administrative Update** 📋\n\n@everyone\n\n"+
			"This notice confirms the reassignment of %s to the role of **%s**.\n\n"+
			"🔄 **Position Change**\n• Former Role: %s\n• Current Role: %s\n\n"+
			"This administrative action is now in effect. ⚡",
			mention, to, from, to)
	},
}

func templatesFor(kind AnnouncementKind) []announcementTemplate {
	if kind == KindDemotion {
		return demotionTemplates
	}
	return promotionTemplates
}

func renderRoleChange(mention, oldRank, newRank, reason string) string {
	return fmt.Sprintf("🔄 **Rank Update**\n%s has been updated to **%s**\n• Previous Rank: %s\n• New Rank: %s\n• Reason: %s",
		mention, newRank, oldRank, newRank, reason)
}

func renderRoleChangeDirect(oldRank, newRank, reason string) string {
	return fmt.Sprintf("Your rank has been updated from %s to %s due to: %s", oldRank, newRank, reason)
}
