package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/draxon/draxon-bots/internal/faults"
	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/rsi"
	"go.uber.org/zap"
)

const (
	maintenanceStartUTC   = "22:00"
	maintenanceDurationHr = 3
	maxHandleLength       = 50
)

var (
	// ErrNotInOrganization reports a valid handle that belongs to neither the main org nor an affiliation.
	ErrNotInOrganization = errors.New("linking: handle is not a member of the organization")
	// ErrInvalidHandle reports an empty or oversized handle.
	ErrInvalidHandle = errors.New("linking: invalid handle")
)

// Directory resolves citizen handles.
type Directory interface {
	LookupUser(ctx context.Context, handle string) (rsi.UserInfo, error)
}

// ProfileStore persists linked profiles and failed attempts.
type ProfileStore interface {
	Put(ctx context.Context, discordID string, profile members.Profile) error
	RecordLookupFailure(ctx context.Context, discordID string, details map[string]any) error
}

// Config describes the dependencies of the linking service.
type Config struct {
	Directory Directory
	Store     ProfileStore
	OrgSID    string
	Logger    *zap.Logger
}

// Service links chat members to RSI citizen records.
type Service struct {
	directory Directory
	store     ProfileStore
	orgSID    string
	logger    *zap.Logger
}

// Request is a link attempt. CurrentRank is the member's ladder rank at link time, if any.
type Request struct {
	DiscordID   string
	Handle      string
	CurrentRank string
}

// Result is the stored profile and how it relates to the organisation.
type Result struct {
	Profile      members.Profile
	Organization rsi.Organization
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Directory == nil || cfg.Store == nil {
		return nil, fmt.Errorf("linking: directory and store are required")
	}
	orgSID := strings.TrimSpace(cfg.OrgSID)
	if orgSID == "" {
		return nil, fmt.Errorf("linking: organization sid is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{directory: cfg.Directory, store: cfg.Store, orgSID: orgSID, logger: logger}, nil
}

// Link resolves the handle, checks organisation membership and stores the profile.
func (s *Service) Link(ctx context.Context, request Request) (Result, error) {
	handle := strings.TrimSpace(request.Handle)
	if handle == "" || len(handle) > maxHandleLength {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidHandle, request.Handle)
	}
	logger := s.logger.With(zap.String("discord_id", request.DiscordID), zap.String("handle", handle))

	info, err := s.directory.LookupUser(ctx, handle)
	if err != nil {
		logger.Warn("handle lookup failed", zap.Error(err))
		s.recordFailure(ctx, request.DiscordID, handle, faults.Classify(err))
		return Result{}, err
	}

	org, kind := info.Membership(s.orgSID)
	if kind == rsi.MembershipNone {
		logger.Info("handle not in organization")
		s.recordFailure(ctx, request.DiscordID, handle, "not_in_organization")
		return Result{}, ErrNotInOrganization
	}

	status := members.StatusMain
	if kind == rsi.MembershipAffiliate {
		status = members.StatusAffiliate
	}
	profile := members.Profile{
		Handle:      info.Profile.Handle,
		CitizenID:   info.Profile.CitizenID(),
		DisplayName: info.Profile.Display,
		Enlisted:    info.Profile.Enlisted,
		OrgSID:      org.SID,
		OrgName:     org.Name,
		OrgStatus:   status,
		OrgRank:     strings.TrimSpace(request.CurrentRank),
		OrgStars:    org.Stars,
		Verified:    true,
		RawSnapshot: string(info.Raw),
	}
	if err := s.store.Put(ctx, request.DiscordID, profile); err != nil {
		logger.Error("profile store failed", zap.Error(err))
		return Result{}, err
	}
	logger.Info("account linked", zap.String("org_status", string(status)))
	return Result{Profile: profile, Organization: org}, nil
}

func (s *Service) recordFailure(ctx context.Context, discordID, handle string, reason any) {
	if err := s.store.RecordLookupFailure(ctx, discordID, map[string]any{"handle": handle, "reason": reason}); err != nil {
		s.logger.Warn("lookup failure not recorded", zap.String("discord_id", discordID), zap.Error(err))
	}
}

// Message renders the ephemeral reply for a link attempt.
func Message(result Result, err error) string {
	switch {
	case err == nil:
		return renderSuccess(result.Profile)
	case errors.Is(err, rsi.ErrMaintenance):
		return fmt.Sprintf("⚠️ **RSI API is Currently Unavailable**\n\n"+
			"The RSI API goes down for maintenance every day from %s UTC for approximately %d hours.\n\n"+
			"Please try again once the service has been restored.", maintenanceStartUTC, maintenanceDurationHr)
	case errors.Is(err, rsi.ErrHandleNotFound), errors.Is(err, ErrInvalidHandle):
		return "❌ Invalid RSI Handle. Please check your handle and try again."
	case errors.Is(err, ErrNotInOrganization):
		return "⚠️ Your RSI Handle was found, but you don't appear to be a member of our organization. " +
			"Please join the organization first and try again."
	case errors.Is(err, members.ErrHandleTaken):
		return "❌ That RSI Handle is already linked to another Discord account."
	default:
		return faults.UserMessage(err)
	}
}

func renderSuccess(profile members.Profile) string {
	enlisted := profile.Enlisted
	if len(enlisted) > 10 {
		enlisted = enlisted[:10]
	}
	lines := []string{
		"✅ RSI Account Successfully Linked!",
		"",
		"**Account Information:**",
		"🔹 Handle: " + profile.Handle,
		"🔹 Display Name: " + profile.DisplayName,
		"🔹 Citizen ID: " + profile.CitizenID,
		"🔹 Enlisted: " + enlisted,
		"",
		"**Organization Status:**",
		"🔹 Organization: " + profile.OrgName,
		"🔹 Status: " + string(profile.OrgStatus),
		"🔹 Stars: " + strings.Repeat("⭐", profile.OrgStars),
	}
	return strings.Join(lines, "\n")
}
