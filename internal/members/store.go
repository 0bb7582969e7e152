package members

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/draxon/draxon-bots/internal/faults"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrProfileNotFound indicates no linked profile exists for the member.
	ErrProfileNotFound = fmt.Errorf("linked profile %w", faults.ErrNotFound)
	// ErrHandleTaken indicates the handle is already linked to another member.
	ErrHandleTaken = errors.New("members: handle already linked to another member")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingDiscordID  = errors.New("discord identifier is required")
	errMissingHandle     = errors.New("handle is required")
	noOpLogger           = zap.NewNop()
)

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 500
)

// ServiceError carries a stable code of the form members.<operation>.<reason>.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew            = "members.store.new"
	opGet                 = "members.get"
	opPut                 = "members.put"
	opFindByHandle        = "members.find_by_handle"
	opAll                 = "members.all"
	opSearch              = "members.search"
	opAppendRoleChange    = "members.append_role_change"
	opRecordRankChange    = "members.record_rank_change"
	opRoleHistory         = "members.role_history"
	opVerificationHistory = "members.verification_history"
	opRecordLookupFailure = "members.record_lookup_failure"
	opCleanup             = "members.cleanup"
	opStats               = "members.stats"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// persistenceError marks cause as a local storage failure.
func persistenceError(operation, reason string, cause error) error {
	return newServiceError(operation, reason, fmt.Errorf("%w: %v", faults.ErrPersistence, cause))
}

// StoreConfig describes the dependencies of the member store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Store persists linked profiles and their insert-only history.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewStore validates cfg and constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Get returns the profile linked to discordID.
func (s *Store) Get(ctx context.Context, discordID string) (Profile, error) {
	discordID = strings.TrimSpace(discordID)
	if discordID == "" {
		return Profile{}, newServiceError(opGet, "missing_discord_id", errMissingDiscordID)
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("discord_id = ?", discordID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("discord_id", discordID))
		return Profile{}, persistenceError(opGet, "query_failed", err)
	}
	return profile, nil
}

// Put creates or replaces the profile for discordID and appends a verification
// event in the same transaction. The handle must not be linked to anyone else.
func (s *Store) Put(ctx context.Context, discordID string, profile Profile) error {
	discordID = strings.TrimSpace(discordID)
	if discordID == "" {
		return newServiceError(opPut, "missing_discord_id", errMissingDiscordID)
	}
	profile.Handle = strings.TrimSpace(profile.Handle)
	if profile.Handle == "" {
		return newServiceError(opPut, "missing_handle", errMissingHandle)
	}
	profile.DiscordID = discordID
	profile.HandleKey = HandleKey(profile.Handle)
	if profile.OrgStars < 0 {
		profile.OrgStars = 0
	}
	now := s.clock().UTC()
	profile.LastUpdated = now

	eventID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPut, "id_generation_failed", err, zap.String("discord_id", discordID))
		return newServiceError(opPut, "id_generation_failed", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner Profile
		err := tx.Where("handle_key = ? AND discord_id <> ?", profile.HandleKey, discordID).Take(&owner).Error
		if err == nil {
			return newServiceError(opPut, "handle_taken", ErrHandleTaken)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opPut, "handle_check_failed", err, zap.String("discord_id", discordID))
			return persistenceError(opPut, "handle_check_failed", err)
		}

		var existing int64
		if err := tx.Model(&Profile{}).Where("discord_id = ?", discordID).Count(&existing).Error; err != nil {
			s.logError(opPut, "profile_select_failed", err, zap.String("discord_id", discordID))
			return persistenceError(opPut, "profile_select_failed", err)
		}
		action := ActionCreate
		if existing > 0 {
			action = ActionUpdate
		}

		if err := tx.Save(&profile).Error; err != nil {
			s.logError(opPut, "profile_save_failed", err, zap.String("discord_id", discordID))
			return persistenceError(opPut, "profile_save_failed", err)
		}

		details, _ := json.Marshal(map[string]any{
			"handle":     profile.Handle,
			"org_status": profile.OrgStatus,
			"org_rank":   profile.OrgRank,
		})
		event := Verification{
			EventID:   eventID,
			DiscordID: discordID,
			Action:    action,
			Success:   true,
			Details:   string(details),
			CreatedAt: now,
		}
		if err := tx.Create(&event).Error; err != nil {
			s.logError(opPut, "verification_insert_failed", err, zap.String("discord_id", discordID))
			return persistenceError(opPut, "verification_insert_failed", err)
		}
		return nil
	})
}

// FindByHandle returns the profile linked to handle, ignoring case.
func (s *Store) FindByHandle(ctx context.Context, handle string) (Profile, error) {
	key := HandleKey(handle)
	if key == "" {
		return Profile{}, newServiceError(opFindByHandle, "missing_handle", errMissingHandle)
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("handle_key = ?", key).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		s.logError(opFindByHandle, "query_failed", err, zap.String("handle", handle))
		return Profile{}, persistenceError(opFindByHandle, "query_failed", err)
	}
	return profile, nil
}

// All returns every linked profile ordered by handle.
func (s *Store) All(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := s.db.WithContext(ctx).Order("handle_key ASC").Find(&profiles).Error; err != nil {
		s.logError(opAll, "query_failed", err)
		return nil, persistenceError(opAll, "query_failed", err)
	}
	return profiles, nil
}

// Search returns profiles matching filter, most recently updated first.
func (s *Store) Search(ctx context.Context, filter Filter) ([]Profile, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&Profile{})
	if text := strings.ToLower(strings.TrimSpace(filter.Query)); text != "" {
		pattern := "%" + text + "%"
		query = query.Where("handle_key LIKE ? OR LOWER(display_name) LIKE ? OR discord_id = ?", pattern, pattern, text)
	}
	if filter.OrgStatus != "" {
		query = query.Where("org_status = ?", filter.OrgStatus)
	}
	if filter.OrgRank != "" {
		query = query.Where("org_rank = ?", filter.OrgRank)
	}
	if filter.Verified != nil {
		query = query.Where("verified = ?", *filter.Verified)
	}

	var profiles []Profile
	if err := query.Order("last_updated DESC").Limit(limit).Offset(offset).Find(&profiles).Error; err != nil {
		s.logError(opSearch, "query_failed", err)
		return nil, persistenceError(opSearch, "query_failed", err)
	}
	return profiles, nil
}

// AppendRoleChange records a rank transition without touching the profile.
func (s *Store) AppendRoleChange(ctx context.Context, discordID, oldRank, newRank, reason string) (RoleChange, error) {
	change, err := s.newRoleChange(opAppendRoleChange, discordID, oldRank, newRank, reason)
	if err != nil {
		return RoleChange{}, err
	}
	if err := s.db.WithContext(ctx).Create(&change).Error; err != nil {
		s.logError(opAppendRoleChange, "insert_failed", err, zap.String("discord_id", change.DiscordID))
		return RoleChange{}, persistenceError(opAppendRoleChange, "insert_failed", err)
	}
	return change, nil
}

// RecordRankChange appends the history row and, when the member has a linked
// profile, stores the new rank in the same transaction.
func (s *Store) RecordRankChange(ctx context.Context, rankChange RankChange) (RoleChange, error) {
	change, err := s.newRoleChange(opRecordRankChange, rankChange.DiscordID, rankChange.OldRank, rankChange.NewRank, rankChange.Reason)
	if err != nil {
		return RoleChange{}, err
	}
	updates := map[string]any{
		"org_rank":     change.NewRank,
		"last_updated": change.CreatedAt,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&change).Error; err != nil {
			s.logError(opRecordRankChange, "insert_failed", err, zap.String("discord_id", change.DiscordID))
			return persistenceError(opRecordRankChange, "insert_failed", err)
		}
		if err := tx.Model(&Profile{}).Where("discord_id = ?", change.DiscordID).Updates(updates).Error; err != nil {
			s.logError(opRecordRankChange, "profile_update_failed", err, zap.String("discord_id", change.DiscordID))
			return persistenceError(opRecordRankChange, "profile_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return RoleChange{}, txErr
	}
	return change, nil
}

func (s *Store) newRoleChange(operation, discordID, oldRank, newRank, reason string) (RoleChange, error) {
	discordID = strings.TrimSpace(discordID)
	if discordID == "" {
		return RoleChange{}, newServiceError(operation, "missing_discord_id", errMissingDiscordID)
	}
	changeID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err, zap.String("discord_id", discordID))
		return RoleChange{}, newServiceError(operation, "id_generation_failed", err)
	}
	return RoleChange{
		ChangeID:  changeID,
		DiscordID: discordID,
		OldRank:   rankOrNone(oldRank),
		NewRank:   rankOrNone(newRank),
		Reason:    strings.TrimSpace(reason),
		CreatedAt: s.clock().UTC(),
	}, nil
}

// RoleHistory returns rank transitions for discordID, newest first.
func (s *Store) RoleHistory(ctx context.Context, discordID string, limit int) ([]RoleChange, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	var changes []RoleChange
	if err := s.db.WithContext(ctx).
		Where("discord_id = ?", strings.TrimSpace(discordID)).
		Order("created_at DESC").
		Limit(limit).
		Find(&changes).Error; err != nil {
		s.logError(opRoleHistory, "query_failed", err, zap.String("discord_id", discordID))
		return nil, persistenceError(opRoleHistory, "query_failed", err)
	}
	return changes, nil
}

// VerificationHistory returns link and lookup attempts for discordID, newest first.
func (s *Store) VerificationHistory(ctx context.Context, discordID string, limit int) ([]Verification, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	var events []Verification
	if err := s.db.WithContext(ctx).
		Where("discord_id = ?", strings.TrimSpace(discordID)).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		s.logError(opVerificationHistory, "query_failed", err, zap.String("discord_id", discordID))
		return nil, persistenceError(opVerificationHistory, "query_failed", err)
	}
	return events, nil
}

// RecordLookupFailure appends an unsuccessful lookup event.
func (s *Store) RecordLookupFailure(ctx context.Context, discordID string, details map[string]any) error {
	discordID = strings.TrimSpace(discordID)
	if discordID == "" {
		return newServiceError(opRecordLookupFailure, "missing_discord_id", errMissingDiscordID)
	}
	eventID, err := s.idProvider.NewID()
	if err != nil {
		return newServiceError(opRecordLookupFailure, "id_generation_failed", err)
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return newServiceError(opRecordLookupFailure, "details_encode_failed", err)
	}
	event := Verification{
		EventID:   eventID,
		DiscordID: discordID,
		Action:    ActionLookup,
		Success:   false,
		Details:   string(payload),
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logError(opRecordLookupFailure, "insert_failed", err, zap.String("discord_id", discordID))
		return persistenceError(opRecordLookupFailure, "insert_failed", err)
	}
	return nil
}

// Cleanup deletes history rows older than retention. Profiles are never pruned.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (CleanupResult, error) {
	if retention <= 0 {
		return CleanupResult{}, newServiceError(opCleanup, "invalid_retention", fmt.Errorf("retention must be positive, got %s", retention))
	}
	cutoff := s.clock().UTC().Add(-retention)

	var result CleanupResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changes := tx.Where("created_at < ?", cutoff).Delete(&RoleChange{})
		if changes.Error != nil {
			s.logError(opCleanup, "role_history_delete_failed", changes.Error)
			return persistenceError(opCleanup, "role_history_delete_failed", changes.Error)
		}
		verifications := tx.Where("created_at < ?", cutoff).Delete(&Verification{})
		if verifications.Error != nil {
			s.logError(opCleanup, "verification_history_delete_failed", verifications.Error)
			return persistenceError(opCleanup, "verification_history_delete_failed", verifications.Error)
		}
		result = CleanupResult{RoleChanges: changes.RowsAffected, Verifications: verifications.RowsAffected}
		return nil
	})
	if txErr != nil {
		return CleanupResult{}, txErr
	}
	s.logger.Info("history cleanup completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("role_changes", result.RoleChanges),
		zap.Int64("verifications", result.Verifications))
	return result, nil
}

type groupCount struct {
	Bucket string
	Total  int64
}

// Stats aggregates profile and history counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	db := s.db.WithContext(ctx)
	stats := Stats{
		ByStatus: make(map[OrgStatus]int64),
		ByRank:   make(map[string]int64),
	}

	if err := db.Model(&Profile{}).Count(&stats.TotalMembers).Error; err != nil {
		return Stats{}, s.statsError("total_failed", err)
	}
	if err := db.Model(&Profile{}).Where("verified = ?", true).Count(&stats.VerifiedMembers).Error; err != nil {
		return Stats{}, s.statsError("verified_failed", err)
	}

	var statuses []groupCount
	if err := db.Model(&Profile{}).Select("org_status AS bucket, COUNT(*) AS total").Group("org_status").Scan(&statuses).Error; err != nil {
		return Stats{}, s.statsError("status_breakdown_failed", err)
	}
	for _, row := range statuses {
		stats.ByStatus[OrgStatus(row.Bucket)] = row.Total
	}

	var ranks []groupCount
	if err := db.Model(&Profile{}).Select("org_rank AS bucket, COUNT(*) AS total").Where("org_rank <> ''").Group("org_rank").Scan(&ranks).Error; err != nil {
		return Stats{}, s.statsError("rank_breakdown_failed", err)
	}
	for _, row := range ranks {
		stats.ByRank[row.Bucket] = row.Total
	}

	if err := db.Model(&RoleChange{}).Count(&stats.RoleChanges).Error; err != nil {
		return Stats{}, s.statsError("role_history_failed", err)
	}
	if err := db.Model(&Verification{}).Count(&stats.Verifications).Error; err != nil {
		return Stats{}, s.statsError("verification_history_failed", err)
	}

	var latest Profile
	err := db.Order("last_updated DESC").Limit(1).Take(&latest).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Stats{}, s.statsError("latest_failed", err)
	}
	stats.LastUpdated = latest.LastUpdated
	return stats, nil
}

func (s *Store) statsError(reason string, err error) error {
	s.logError(opStats, reason, err)
	return persistenceError(opStats, reason, err)
}

func rankOrNone(rank string) string {
	rank = strings.TrimSpace(rank)
	if rank == "" {
		return NoRank
	}
	return rank
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("member store error", attrs...)
}
