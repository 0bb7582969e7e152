package members

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/draxon/draxon-bots/internal/faults"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("id-%04d", p.next), nil
}

type failingIDProvider struct{}

func (failingIDProvider) NewID() (string, error) {
	return "", errors.New("entropy exhausted")
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "members.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := NewStore(StoreConfig{
		Database:   openTestDatabase(t),
		Clock:      clock.Now,
		IDProvider: &sequenceIDProvider{},
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store, clock
}

func TestNewStoreRequiresDependencies(t *testing.T) {
	_, err := NewStore(StoreConfig{IDProvider: NewUUIDProvider()})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "members.store.new.missing_database" {
		t.Fatalf("expected missing database error, got %v", err)
	}
}

func TestPutCreatesThenUpdatesWithVerificationEvents(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "1001", Profile{Handle: "Nova", OrgStatus: StatusMain, OrgStars: 3, Verified: true}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	clock.Advance(time.Hour)
	if err := store.Put(ctx, "1001", Profile{Handle: "Nova", OrgStatus: StatusAffiliate, OrgStars: -2, Verified: true}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	profile, err := store.Get(ctx, "1001")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if profile.OrgStatus != StatusAffiliate {
		t.Fatalf("expected affiliate status, got %q", profile.OrgStatus)
	}
	if profile.OrgStars != 0 {
		t.Fatalf("expected negative stars to clamp to 0, got %d", profile.OrgStars)
	}
	if !profile.LastUpdated.Equal(clock.Now()) {
		t.Fatalf("expected last_updated %v, got %v", clock.Now(), profile.LastUpdated)
	}

	events, err := store.VerificationHistory(ctx, "1001", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 verification events, got %d", len(events))
	}
	if events[0].Action != ActionUpdate || events[1].Action != ActionCreate {
		t.Fatalf("unexpected actions %q, %q", events[0].Action, events[1].Action)
	}
}

func TestPutRejectsHandleLinkedToAnotherMember(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "1001", Profile{Handle: "nova", OrgStatus: StatusMain}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	err := store.Put(ctx, "2002", Profile{Handle: "NOVA", OrgStatus: StatusMain})
	if !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("expected ErrHandleTaken, got %v", err)
	}
	if _, err := store.Get(ctx, "2002"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected no profile for rejected member, got %v", err)
	}
	events, err := store.VerificationHistory(ctx, "2002", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("rejected put must not record events, got %d", len(events))
	}
}

func TestPutIsAllOrNothingWhenIDGenerationFails(t *testing.T) {
	store, err := NewStore(StoreConfig{Database: openTestDatabase(t), IDProvider: failingIDProvider{}})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Put(context.Background(), "1001", Profile{Handle: "nova"}); err == nil {
		t.Fatalf("expected id generation failure")
	}
	if _, err := store.Get(context.Background(), "1001"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected no partial write, got %v", err)
	}
}

func TestGetMissingProfileIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "404")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if faults.Classify(err) != faults.KindNotFound {
		t.Fatalf("expected not found classification")
	}
}

func TestFindByHandleIgnoresCase(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "1001", Profile{Handle: "Nova", OrgStatus: StatusMain}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	profile, err := store.FindByHandle(ctx, "  nOvA ")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if profile.DiscordID != "1001" || profile.Handle != "Nova" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestRecordRankChangeUpdatesProfileAndHistoryTogether(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "1001", Profile{Handle: "nova", OrgStatus: StatusMain, OrgRank: "Director"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	change, err := store.RecordRankChange(ctx, RankChange{
		DiscordID: "1001",
		OldRank:   "Director",
		NewRank:   "Screening",
		Reason:    "Not found in organization",
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if change.ChangeID == "" {
		t.Fatalf("expected change id")
	}

	profile, err := store.Get(ctx, "1001")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if profile.OrgStatus != StatusMain || profile.OrgRank != "Screening" {
		t.Fatalf("unexpected profile state %q/%q", profile.OrgStatus, profile.OrgRank)
	}

	history, err := store.RoleHistory(ctx, "1001", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 || history[0].Reason != "Not found in organization" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestAppendRoleChangeRecordsNoneForMissingRank(t *testing.T) {
	store, _ := newTestStore(t)
	change, err := store.AppendRoleChange(context.Background(), "3003", "", "Applicant", "Promoted by manager")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if change.OldRank != NoRank {
		t.Fatalf("expected old rank %q, got %q", NoRank, change.OldRank)
	}
}

func TestCleanupPrunesOnlyExpiredHistory(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "1001", Profile{Handle: "nova"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if _, err := store.AppendRoleChange(ctx, "1001", "Applicant", "Employee", "old"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	clock.Advance(40 * 24 * time.Hour)
	if _, err := store.AppendRoleChange(ctx, "1001", "Employee", "Team Leader", "recent"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	result, err := store.Cleanup(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.RoleChanges != 1 || result.Verifications != 1 {
		t.Fatalf("unexpected cleanup result %+v", result)
	}
	if _, err := store.Get(ctx, "1001"); err != nil {
		t.Fatalf("profiles must survive cleanup: %v", err)
	}
	history, err := store.RoleHistory(ctx, "1001", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 || history[0].Reason != "recent" {
		t.Fatalf("unexpected remaining history %+v", history)
	}

	if _, err := store.Cleanup(ctx, 0); err == nil {
		t.Fatalf("expected zero retention to be rejected")
	}
}

func TestSearchAndStats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seed := []struct {
		id      string
		profile Profile
	}{
		{"1", Profile{Handle: "Nova", DisplayName: "Nova Prime", OrgStatus: StatusMain, OrgRank: "Director", Verified: true}},
		{"2", Profile{Handle: "Orion", OrgStatus: StatusAffiliate, OrgRank: "Employee", Verified: true}},
		{"3", Profile{Handle: "Vega", OrgStatus: StatusNotFound, OrgRank: "Screening"}},
	}
	for _, entry := range seed {
		if err := store.Put(ctx, entry.id, entry.profile); err != nil {
			t.Fatalf("put %s failed: %v", entry.id, err)
		}
	}
	if err := store.RecordLookupFailure(ctx, "4", map[string]any{"handle": "ghost"}); err != nil {
		t.Fatalf("record lookup failure: %v", err)
	}

	verified := true
	found, err := store.Search(ctx, Filter{Verified: &verified})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 verified profiles, got %d", len(found))
	}
	found, err = store.Search(ctx, Filter{Query: "prime"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 1 || found[0].DiscordID != "1" {
		t.Fatalf("unexpected query result %+v", found)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("all failed: %v", err)
	}
	if len(all) != 3 || all[0].Handle != "Nova" {
		t.Fatalf("unexpected profiles %+v", all)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalMembers != 3 || stats.VerifiedMembers != 2 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if stats.ByStatus[StatusAffiliate] != 1 || stats.ByRank["Director"] != 1 {
		t.Fatalf("unexpected breakdown %+v", stats)
	}
	if stats.Verifications != 4 {
		t.Fatalf("expected 4 verification events, got %d", stats.Verifications)
	}
}
