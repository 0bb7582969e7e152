package members

import (
	"strings"
	"time"
)

// OrgStatus describes how a linked citizen relates to the guild's organisation.
type OrgStatus string

const (
	StatusMain      OrgStatus = "Main"
	StatusAffiliate OrgStatus = "Affiliate"
	StatusNotFound  OrgStatus = "NotFound"
)

// Verification actions recorded in the verification history.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionLookup = "lookup"
)

// NoRank is written to role history when a member held no ladder role.
const NoRank = "None"

// Profile is the cached RSI profile of a linked chat member.
type Profile struct {
	DiscordID   string    `gorm:"column:discord_id;primaryKey;size:32;not null" json:"discord_id"`
	Handle      string    `gorm:"column:handle;size:64;not null" json:"handle"`
	HandleKey   string    `gorm:"column:handle_key;size:64;uniqueIndex" json:"-"`
	CitizenID   string    `gorm:"column:citizen_id;size:32" json:"citizen_id"`
	DisplayName string    `gorm:"column:display_name;size:128" json:"display_name"`
	Enlisted    string    `gorm:"column:enlisted;size:64" json:"enlisted"`
	OrgSID      string    `gorm:"column:org_sid;size:32" json:"org_sid"`
	OrgName     string    `gorm:"column:org_name;size:128" json:"org_name"`
	OrgStatus   OrgStatus `gorm:"column:org_status;size:16;index" json:"org_status"`
	OrgRank     string    `gorm:"column:org_rank;size:64" json:"org_rank"`
	OrgStars    int       `gorm:"column:org_stars;not null;default:0" json:"org_stars"`
	Verified    bool      `gorm:"column:verified;not null;default:false" json:"verified"`
	LastUpdated time.Time `gorm:"column:last_updated;not null" json:"last_updated"`
	RawSnapshot string    `gorm:"column:raw_snapshot;type:text" json:"-"`
}

// TableName exposes the table backing linked profiles.
func (Profile) TableName() string {
	return "rsi_members"
}

// RoleChange is one insert-only rank transition record.
type RoleChange struct {
	ChangeID  string    `gorm:"column:change_id;primaryKey;size:36;not null" json:"change_id"`
	DiscordID string    `gorm:"column:discord_id;size:32;not null;index" json:"discord_id"`
	OldRank   string    `gorm:"column:old_rank;size:64;not null" json:"old_rank"`
	NewRank   string    `gorm:"column:new_rank;size:64;not null" json:"new_rank"`
	Reason    string    `gorm:"column:reason;size:256" json:"reason"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (RoleChange) TableName() string {
	return "role_history"
}

// Verification is one insert-only link or lookup attempt.
type Verification struct {
	EventID   string    `gorm:"column:event_id;primaryKey;size:36;not null" json:"event_id"`
	DiscordID string    `gorm:"column:discord_id;size:32;not null;index" json:"discord_id"`
	Action    string    `gorm:"column:action;size:16;not null" json:"action"`
	Success   bool      `gorm:"column:success;not null" json:"success"`
	Details   string    `gorm:"column:details;type:text" json:"details"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (Verification) TableName() string {
	return "verification_history"
}

// Models lists the schema owned by this package.
func Models() []any {
	return []any{&Profile{}, &RoleChange{}, &Verification{}}
}

// RankChange describes a rank transition to record together with the profile update.
// The stored org status is never changed by a rank transition.
type RankChange struct {
	DiscordID string
	OldRank   string
	NewRank   string
	Reason    string
}

// Filter narrows Search results. Zero values match everything.
type Filter struct {
	Query     string
	OrgStatus OrgStatus
	OrgRank   string
	Verified  *bool
	Limit     int
	Offset    int
}

// Stats summarises the store for reports.
type Stats struct {
	TotalMembers    int64               `json:"total_members"`
	VerifiedMembers int64               `json:"verified_members"`
	ByStatus        map[OrgStatus]int64 `json:"by_status"`
	ByRank          map[string]int64    `json:"by_rank"`
	RoleChanges     int64               `json:"role_changes"`
	Verifications   int64               `json:"verifications"`
	LastUpdated     time.Time           `json:"last_updated"`
}

// CleanupResult reports how many history rows were pruned.
type CleanupResult struct {
	RoleChanges   int64 `json:"role_changes"`
	Verifications int64 `json:"verifications"`
}

// HandleKey normalises a handle for case-insensitive comparison.
func HandleKey(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}
