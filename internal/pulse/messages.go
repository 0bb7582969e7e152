package pulse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/draxon/draxon-bots/internal/faults"
	"github.com/draxon/draxon-bots/internal/settings"
)

// CheckMessage renders the ephemeral reply when the alert form cannot be opened.
func CheckMessage(err error) string {
	var cooldown *CooldownError
	switch {
	case errors.As(err, &cooldown):
		return fmt.Sprintf("⚠️ Please wait %d seconds before sending another alert.", int(cooldown.Remaining.Seconds()))
	case errors.Is(err, ErrNotEligible):
		return "⚠️ You must be a DraXon employee to use the emergency alert system."
	case errors.Is(err, settings.ErrChannelNotConfigured):
		return "⚠️ Alert channel has not been configured. Please contact a Chairman."
	case errors.Is(err, ErrInvalidReport):
		return "⚠️ " + strings.TrimPrefix(err.Error(), "pulse: ")
	case errors.Is(err, ErrCannotPost):
		return "Failed to post emergency alert. Please try again or contact an administrator."
	default:
		return faults.UserMessage(err)
	}
}

// SubmitMessage renders the ephemeral reply after a form submission.
func SubmitMessage(err error) string {
	if err == nil {
		return "🚨 Emergency alert posted successfully.\nA thread has been created to track this emergency.\nPlease monitor the alert channel for responses."
	}
	return CheckMessage(err)
}

// SetupMessage renders the ephemeral reply to an alert channel setup.
func SetupMessage(channelID string, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("✅ PULSE alert channel configured successfully!\nChannel: <#%s>\nAll emergency alerts will be posted here.", channelID)
	case errors.Is(err, ErrNotAdmin):
		return "❌ You don't have permission to use this command."
	case errors.Is(err, ErrCannotPost):
		return fmt.Sprintf("⚠️ Warning: I cannot post in <#%s>.\nPlease grant Send Messages, Create Public Threads and Send Messages in Threads.", channelID)
	default:
		return "⚠️ Failed to configure alert channel. Please try again."
	}
}

// RenderStatus formats a status report.
func RenderStatus(status Status) string {
	var b strings.Builder
	b.WriteString("📊 **PULSE System Status**\n")
	b.WriteString("System Online: ✅\n")
	fmt.Fprintf(&b, "Uptime: %d days, %d hours\n\n", int(status.Uptime/(24*time.Hour)), int(status.Uptime%(24*time.Hour)/time.Hour))
	b.WriteString("👥 **Staff Breakdown:**\n")
	for _, rc := range status.RoleCounts {
		fmt.Fprintf(&b, "└ %s: %d\n", rc.Role, rc.Count)
	}
	fmt.Fprintf(&b, "Total Members: %d\n\n", status.Total)
	b.WriteString("⚙️ **System Configuration:**\n")
	channel := "Not Configured"
	if status.ChannelID != "" {
		channel = "<#" + status.ChannelID + ">"
	}
	fmt.Fprintf(&b, "└ Alert Channel: %s\n", channel)
	fmt.Fprintf(&b, "└ Alert Cooldown: %d minutes\n", int(status.Cooldown.Minutes()))
	fmt.Fprintf(&b, "└ Alerts Logged: %d", status.AlertsLogged)
	return b.String()
}
