package settings

import (
	"strings"
	"time"
)

// Binding names a channel role configured through /setup.
type Binding string

const (
	BindingIncidents Binding = "incidents"
	BindingPromotion Binding = "promotion"
	BindingDemotion  Binding = "demotion"
	BindingReminder  Binding = "reminder"
	BindingAlert     Binding = "alert"
)

// GlobalScope is the guild id used for settings that are not tied to a guild.
const GlobalScope = "global"

// Setting is one persisted key/value pair scoped to a guild.
type Setting struct {
	GuildID   string    `gorm:"column:guild_id;primaryKey;size:32;not null"`
	Key       string    `gorm:"column:setting_key;primaryKey;size:64;not null"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing bot settings.
func (Setting) TableName() string {
	return "bot_settings"
}

// ParseBinding validates a user-supplied binding name.
func ParseBinding(raw string) (Binding, bool) {
	switch Binding(strings.ToLower(strings.TrimSpace(raw))) {
	case BindingIncidents:
		return BindingIncidents, true
	case BindingPromotion:
		return BindingPromotion, true
	case BindingDemotion:
		return BindingDemotion, true
	case BindingReminder:
		return BindingReminder, true
	case BindingAlert:
		return BindingAlert, true
	default:
		return "", false
	}
}

func (b Binding) key() string {
	return "channel." + string(b)
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
