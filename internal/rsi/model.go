package rsi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexBool decodes true/false as well as the 0/1 integers the API emits.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(raw) {
	case "true", "1":
		*b = true
	case "", "null", "false", "0":
		*b = false
	default:
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*b = value != 0
	}
	return nil
}

// flexInt decodes numbers that may arrive quoted.
type flexInt int

func (i *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*i = 0
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*i = flexInt(value)
	return nil
}

type apiEnvelope struct {
	Success flexBool        `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e apiEnvelope) isNullData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]"))
}

func (e apiEnvelope) isMaintenance() bool {
	trimmed := bytes.TrimSpace(e.Data)
	nullData := len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
	return !bool(e.Success) && e.Message == maintenanceMessage && nullData
}

// OrgMember is one roster row of an organisation.
type OrgMember struct {
	Handle  string   `json:"handle"`
	Display string   `json:"display"`
	Stars   int      `json:"-"`
	Rank    string   `json:"rank"`
	Roles   []string `json:"roles"`
}

func (m *OrgMember) UnmarshalJSON(data []byte) error {
	type alias OrgMember
	var payload struct {
		alias
		Stars flexInt `json:"stars"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*m = OrgMember(payload.alias)
	m.Stars = int(payload.Stars)
	return nil
}

// CitizenProfile is the profile block of a user lookup.
type CitizenProfile struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Display  string `json:"display"`
	Enlisted string `json:"enlisted"`
}

// CitizenID strips the leading '#' the API puts on citizen record numbers.
func (p CitizenProfile) CitizenID() string {
	return strings.TrimPrefix(strings.TrimSpace(p.ID), "#")
}

// Organization is a main organisation or affiliation entry.
type Organization struct {
	SID   string `json:"sid"`
	Name  string `json:"name"`
	Rank  string `json:"rank"`
	Stars int    `json:"-"`
}

func (o *Organization) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	// Citizens without an organisation get an empty array instead of an object.
	if len(trimmed) == 0 || trimmed[0] != '{' {
		*o = Organization{}
		return nil
	}
	type alias Organization
	var payload struct {
		alias
		Stars flexInt `json:"stars"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return err
	}
	*o = Organization(payload.alias)
	o.Stars = int(payload.Stars)
	return nil
}

// UserInfo is the decoded payload of a user lookup plus the raw JSON it came from.
type UserInfo struct {
	Profile      CitizenProfile  `json:"profile"`
	Organization Organization    `json:"organization"`
	Affiliations []Organization  `json:"affiliation"`
	Raw          json.RawMessage `json:"-"`
}

// Membership reports how the citizen belongs to orgSID: as main org, as an
// affiliate, or not at all.
func (u UserInfo) Membership(orgSID string) (Organization, MembershipKind) {
	if orgSID == "" {
		return Organization{}, MembershipNone
	}
	if strings.EqualFold(u.Organization.SID, orgSID) {
		return u.Organization, MembershipMain
	}
	for _, affiliation := range u.Affiliations {
		if strings.EqualFold(affiliation.SID, orgSID) {
			return affiliation, MembershipAffiliate
		}
	}
	return Organization{}, MembershipNone
}

// MembershipKind distinguishes main organisation members from affiliates.
type MembershipKind int

const (
	MembershipNone MembershipKind = iota
	MembershipMain
	MembershipAffiliate
)
