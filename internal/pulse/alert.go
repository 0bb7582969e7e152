package pulse

import "time"

// Alert is the audit record of one emergency alert.
type Alert struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	GuildID   string    `gorm:"size:32;not null;index:idx_sos_alerts_guild_created,priority:1" json:"guild_id"`
	UserID    string    `gorm:"size:32;not null;index" json:"user_id"`
	Username  string    `gorm:"size:100" json:"username"`
	Location  string    `gorm:"size:100;not null" json:"location"`
	Situation string    `gorm:"size:200;not null" json:"situation"`
	ChannelID string    `gorm:"size:32;not null" json:"channel_id"`
	MessageID string    `gorm:"size:32" json:"message_id"`
	ThreadID  string    `gorm:"size:32" json:"thread_id"`
	CreatedAt time.Time `gorm:"not null;index:idx_sos_alerts_guild_created,priority:2" json:"created_at"`
}

func (Alert) TableName() string {
	return "sos_alerts"
}

// Report is what the member typed into the alert form.
type Report struct {
	Location  string
	Situation string
}

const (
	MaxLocationLength  = 100
	MaxSituationLength = 200
)

// Status summarises the alert system for a guild.
type Status struct {
	Uptime       time.Duration
	RoleCounts   []RoleCount
	Total        int
	ChannelID    string
	Cooldown     time.Duration
	AlertsLogged int64
}

// RoleCount is the number of human members holding a role.
type RoleCount struct {
	Role  string
	Count int
}
