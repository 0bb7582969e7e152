package reconcile

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/draxon/draxon-bots/internal/events"
	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/platform/platformtest"
	"github.com/draxon/draxon-bots/internal/ranks"
	"github.com/draxon/draxon-bots/internal/rsi"
)

type stubDirectory struct {
	mu      sync.Mutex
	roster  []rsi.OrgMember
	err     error
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (d *stubDirectory) FetchAllMembers(ctx context.Context, orgSID string) ([]rsi.OrgMember, error) {
	d.mu.Lock()
	d.calls++
	entered, release := d.entered, d.release
	d.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.roster, nil
}

func roster(handles ...string) []rsi.OrgMember {
	entries := make([]rsi.OrgMember, 0, len(handles))
	for _, handle := range handles {
		entries = append(entries, rsi.OrgMember{Handle: handle})
	}
	return entries
}

type memoryStore struct {
	mu       sync.Mutex
	profiles map[string]members.Profile
	history  []members.RoleChange
	failGet  map[string]error
}

func newMemoryStore(profiles ...members.Profile) *memoryStore {
	store := &memoryStore{profiles: make(map[string]members.Profile), failGet: make(map[string]error)}
	for _, profile := range profiles {
		store.profiles[profile.DiscordID] = profile
	}
	return store
}

func (s *memoryStore) Get(ctx context.Context, discordID string) (members.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failGet[discordID]; err != nil {
		return members.Profile{}, err
	}
	profile, ok := s.profiles[discordID]
	if !ok {
		return members.Profile{}, members.ErrProfileNotFound
	}
	return profile, nil
}

func (s *memoryStore) RecordRankChange(ctx context.Context, change members.RankChange) (members.RoleChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldRank := change.OldRank
	if oldRank == "" {
		oldRank = members.NoRank
	}
	record := members.RoleChange{
		ChangeID:  fmt.Sprintf("change-%d", len(s.history)+1),
		DiscordID: change.DiscordID,
		OldRank:   oldRank,
		NewRank:   change.NewRank,
		Reason:    change.Reason,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	s.history = append(s.history, record)
	if profile, ok := s.profiles[change.DiscordID]; ok {
		profile.OrgRank = change.NewRank
		s.profiles[change.DiscordID] = profile
	}
	return record, nil
}

type recordingNotifier struct {
	mu          sync.Mutex
	roleChanges []members.RoleChange
	summaries   [][]platform.Member
}

func (n *recordingNotifier) NotifyRoleChange(ctx context.Context, guildID string, member platform.Member, change members.RoleChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.roleChanges = append(n.roleChanges, change)
	return nil
}

func (n *recordingNotifier) NotifyUnlinkedSummary(ctx context.Context, guildID string, unlinked []platform.Member) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, unlinked)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []events.Message
}

func (p *recordingPublisher) Publish(message events.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
}

type engineFixture struct {
	engine    *Engine
	directory *stubDirectory
	store     *memoryStore
	platform  *platformtest.Fake
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func defaultPolicy() Policy {
	return Policy{
		Ladder:            ranks.MustDefault(),
		LeadershipCeiling: "Team Leader",
		DefaultDemotion:   "Employee",
		Unaffiliated:      "Screening",
	}
}

func newEngineFixture(t *testing.T, directory *stubDirectory, store *memoryStore, guildMembers ...platform.Member) engineFixture {
	t.Helper()
	fake := platformtest.New()
	fake.AddGuild(platform.Guild{ID: "guild-1", Name: "DraXon"}, guildMembers...)
	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}
	engine, err := NewEngine(Config{
		Directory: directory,
		Store:     store,
		Platform:  fake,
		Notifier:  notifier,
		Policy:    defaultPolicy(),
		OrgSID:    "DRAXON",
		Publisher: publisher,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engineFixture{engine: engine, directory: directory, store: store, platform: fake, notifier: notifier, publisher: publisher}
}

func runSingle(t *testing.T, fixture engineFixture) Report {
	t.Helper()
	reports, err := fixture.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	return reports[0]
}

func TestAffiliateDirectorIsDemotedToEmployeeIgnoringHandleCase(t *testing.T) {
	store := newMemoryStore(members.Profile{DiscordID: "1001", Handle: "nova", OrgStatus: members.StatusAffiliate})
	fixture := newEngineFixture(t, &stubDirectory{roster: roster("Nova", "Orion")}, store,
		platform.Member{ID: "1001", Username: "nova", Roles: []string{"@everyone", "Director"}})

	report := runSingle(t, fixture)

	if got := fixture.platform.RolesOf("guild-1", "1001"); !reflect.DeepEqual(got, []string{"@everyone", "Employee"}) {
		t.Fatalf("unexpected roles %v", got)
	}
	if len(store.history) != 1 {
		t.Fatalf("expected exactly one history row, got %d", len(store.history))
	}
	change := store.history[0]
	if change.OldRank != "Director" || change.NewRank != "Employee" || change.Reason != ReasonAffiliate {
		t.Fatalf("unexpected history row %+v", change)
	}
	if len(fixture.notifier.roleChanges) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(fixture.notifier.roleChanges))
	}
	if len(report.Changes) != 1 || report.Failures != 0 || report.Aborted {
		t.Fatalf("unexpected report %+v", report)
	}
	if store.profiles["1001"].OrgRank != "Employee" {
		t.Fatalf("expected org rank to be persisted, got %q", store.profiles["1001"].OrgRank)
	}
}

func TestNotInOrgResetsToScreeningRegardlessOfStartingRank(t *testing.T) {
	store := newMemoryStore(
		members.Profile{DiscordID: "1", Handle: "chair", OrgStatus: members.StatusMain},
		members.Profile{DiscordID: "2", Handle: "worker", OrgStatus: members.StatusAffiliate},
		members.Profile{DiscordID: "3", Handle: "nobody", OrgStatus: members.StatusMain},
		members.Profile{DiscordID: "4", Handle: "multi", OrgStatus: members.StatusMain},
	)
	fixture := newEngineFixture(t, &stubDirectory{roster: roster("someone-else")}, store,
		platform.Member{ID: "1", Roles: []string{"Chairman"}},
		platform.Member{ID: "2", Roles: []string{"Employee", "Pilot"}},
		platform.Member{ID: "3", Roles: nil},
		platform.Member{ID: "4", Roles: []string{"Screening", "Manager"}},
	)

	report := runSingle(t, fixture)

	expected := map[string][]string{
		"1": {"Screening"},
		"2": {"Pilot", "Screening"},
		"3": {"Screening"},
		"4": {"Screening"},
	}
	for id, want := range expected {
		if got := fixture.platform.RolesOf("guild-1", id); !reflect.DeepEqual(got, want) {
			t.Fatalf("member %s roles = %v, want %v", id, got, want)
		}
	}
	if store.profiles["2"].OrgStatus != members.StatusAffiliate || store.profiles["1"].OrgStatus != members.StatusMain {
		t.Fatalf("reset must keep the cached org status, got %q and %q", store.profiles["1"].OrgStatus, store.profiles["2"].OrgStatus)
	}
	if len(report.Changes) != 4 {
		t.Fatalf("expected 4 changes, got %d", len(report.Changes))
	}
	for _, change := range store.history {
		if change.Reason != ReasonNotInOrg || change.NewRank != "Screening" {
			t.Fatalf("unexpected history row %+v", change)
		}
	}
	if store.history[2].OldRank != members.NoRank {
		t.Fatalf("expected rankless member to record %q, got %q", members.NoRank, store.history[2].OldRank)
	}
}

func TestSecondPassIsIdempotent(t *testing.T) {
	store := newMemoryStore(
		members.Profile{DiscordID: "1", Handle: "gone", OrgStatus: members.StatusMain},
		members.Profile{DiscordID: "2", Handle: "nova", OrgStatus: members.StatusAffiliate},
		members.Profile{DiscordID: "3", Handle: "main", OrgStatus: members.StatusMain},
	)
	fixture := newEngineFixture(t, &stubDirectory{roster: roster("nova", "main")}, store,
		platform.Member{ID: "1", Roles: []string{"Manager"}},
		platform.Member{ID: "2", Roles: []string{"Chairman"}},
		platform.Member{ID: "3", Roles: []string{"Director"}},
	)

	first := runSingle(t, fixture)
	if len(first.Changes) != 2 {
		t.Fatalf("expected 2 changes on first pass, got %d", len(first.Changes))
	}
	mutations := fixture.platform.MutationCount()
	historyRows := len(store.history)
	notifications := len(fixture.notifier.roleChanges)

	second := runSingle(t, fixture)
	if len(second.Changes) != 0 {
		t.Fatalf("expected no changes on second pass, got %+v", second.Changes)
	}
	if fixture.platform.MutationCount() != mutations || len(store.history) != historyRows || len(fixture.notifier.roleChanges) != notifications {
		t.Fatalf("second pass must not mutate, record or notify")
	}
	if got := fixture.platform.RolesOf("guild-1", "3"); !reflect.DeepEqual(got, []string{"Director"}) {
		t.Fatalf("main member must keep rank, got %v", got)
	}
}

func TestReturningAffiliateIsStillHeldToLeadershipCeiling(t *testing.T) {
	store := newMemoryStore(members.Profile{DiscordID: "1", Handle: "nova", OrgStatus: members.StatusAffiliate})
	directory := &stubDirectory{roster: roster("someone-else")}
	fixture := newEngineFixture(t, directory, store, platform.Member{ID: "1", Roles: []string{"Employee"}})

	runSingle(t, fixture)
	if got := fixture.platform.RolesOf("guild-1", "1"); !reflect.DeepEqual(got, []string{"Screening"}) {
		t.Fatalf("expected reset to Screening, got %v", got)
	}

	directory.roster = roster("Nova")
	ctx := context.Background()
	if err := fixture.platform.RemoveRole(ctx, "guild-1", "1", "Screening"); err != nil {
		t.Fatalf("failed to remove role: %v", err)
	}
	if err := fixture.platform.AddRole(ctx, "guild-1", "1", "Director"); err != nil {
		t.Fatalf("failed to add role: %v", err)
	}

	report := runSingle(t, fixture)
	if got := fixture.platform.RolesOf("guild-1", "1"); !reflect.DeepEqual(got, []string{"Employee"}) {
		t.Fatalf("expected affiliate Director to be demoted, got %v", got)
	}
	if len(report.Changes) != 1 || report.Changes[0].Reason != ReasonAffiliate {
		t.Fatalf("unexpected changes %+v", report.Changes)
	}
}

func TestUnlinkedMembersAreSummarisedWithoutMutation(t *testing.T) {
	store := newMemoryStore(members.Profile{DiscordID: "1", Handle: "nova", OrgStatus: members.StatusMain})
	fixture := newEngineFixture(t, &stubDirectory{roster: roster("nova")}, store,
		platform.Member{ID: "1", Roles: []string{"Employee"}},
		platform.Member{ID: "2", Roles: []string{"Manager"}},
		platform.Member{ID: "3", Roles: []string{"Applicant"}},
		platform.Member{ID: "bot", Bot: true, Roles: []string{"Chairman"}},
	)

	report := runSingle(t, fixture)

	if fixture.platform.MutationCount() != 0 {
		t.Fatalf("expected no role mutations, got %d", fixture.platform.MutationCount())
	}
	if !reflect.DeepEqual(report.Unlinked, []string{"2", "3"}) {
		t.Fatalf("unexpected unlinked list %v", report.Unlinked)
	}
	if len(fixture.notifier.summaries) != 1 || len(fixture.notifier.summaries[0]) != 2 {
		t.Fatalf("expected one summary with 2 members, got %+v", fixture.notifier.summaries)
	}
	if report.Examined != 3 {
		t.Fatalf("bots must be excluded, examined %d", report.Examined)
	}
}

func TestRosterFailureAbortsWithZeroMutations(t *testing.T) {
	tests := []struct {
		name      string
		directory *stubDirectory
		wantErr   error
	}{
		{name: "maintenance", directory: &stubDirectory{err: rsi.ErrMaintenance}, wantErr: rsi.ErrMaintenance},
		{name: "empty roster", directory: &stubDirectory{roster: nil}, wantErr: ErrEmptyRoster},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryStore(members.Profile{DiscordID: "1", Handle: "gone", OrgStatus: members.StatusMain})
			fixture := newEngineFixture(t, tc.directory, store,
				platform.Member{ID: "1", Roles: []string{"Director"}},
				platform.Member{ID: "2", Roles: []string{"Employee"}},
			)

			report := runSingle(t, fixture)

			if !report.Aborted || report.Error != tc.wantErr.Error() || !errors.Is(report.Cause, tc.wantErr) {
				t.Fatalf("expected aborted report with %v, got %+v", tc.wantErr, report)
			}
			if fixture.platform.MutationCount() != 0 || len(store.history) != 0 {
				t.Fatalf("aborted pass must not mutate")
			}
			if len(fixture.notifier.roleChanges) != 0 || len(fixture.notifier.summaries) != 0 {
				t.Fatalf("aborted pass must not notify")
			}
		})
	}
}

func TestPerMemberFailureDoesNotStopThePass(t *testing.T) {
	store := newMemoryStore(
		members.Profile{DiscordID: "1", Handle: "gone-a", OrgStatus: members.StatusMain},
		members.Profile{DiscordID: "2", Handle: "gone-b", OrgStatus: members.StatusMain},
		members.Profile{DiscordID: "3", Handle: "gone-c", OrgStatus: members.StatusMain},
	)
	store.failGet["3"] = errors.New("disk on fire")
	fixture := newEngineFixture(t, &stubDirectory{roster: roster("nova")}, store,
		platform.Member{ID: "1", Roles: []string{"Director"}},
		platform.Member{ID: "2", Roles: []string{"Director"}},
		platform.Member{ID: "3", Roles: []string{"Director"}},
	)
	fixture.platform.FailRole["1"] = errors.New("missing permissions")

	report := runSingle(t, fixture)

	if report.Failures != 2 {
		t.Fatalf("expected 2 failures, got %d", report.Failures)
	}
	if len(report.Changes) != 1 || report.Changes[0].DiscordID != "2" {
		t.Fatalf("expected member 2 to be processed, got %+v", report.Changes)
	}
	if len(store.history) != 1 {
		t.Fatalf("failed swaps must not record history, got %d rows", len(store.history))
	}
}

func TestAffiliateWithinCeilingAndMainMembersAreLeftAlone(t *testing.T) {
	store := newMemoryStore(
		members.Profile{DiscordID: "1", Handle: "lead", OrgStatus: members.StatusAffiliate},
		members.Profile{DiscordID: "2", Handle: "boss", OrgStatus: members.StatusMain},
		members.Profile{DiscordID: "3", Handle: "unranked", OrgStatus: members.StatusAffiliate},
	)
	fixture := newEngineFixture(t, &stubDirectory{roster: roster("lead", "boss", "unranked")}, store,
		platform.Member{ID: "1", Roles: []string{"Team Leader"}},
		platform.Member{ID: "2", Roles: []string{"Chairman"}},
		platform.Member{ID: "3", Roles: []string{"Pilot"}},
	)

	report := runSingle(t, fixture)
	if len(report.Changes) != 0 || fixture.platform.MutationCount() != 0 {
		t.Fatalf("expected no changes, got %+v", report.Changes)
	}
}

func TestRunPublishesEvents(t *testing.T) {
	store := newMemoryStore(members.Profile{DiscordID: "1", Handle: "gone", OrgStatus: members.StatusMain})
	fixture := newEngineFixture(t, &stubDirectory{roster: roster("nova")}, store,
		platform.Member{ID: "1", Roles: []string{"Employee"}})

	runSingle(t, fixture)

	if len(fixture.publisher.messages) != 2 {
		t.Fatalf("expected role change and pass events, got %+v", fixture.publisher.messages)
	}
	if fixture.publisher.messages[0].EventType != events.EventRoleChanged || fixture.publisher.messages[0].NewRank != "Screening" {
		t.Fatalf("unexpected first event %+v", fixture.publisher.messages[0])
	}
	if fixture.publisher.messages[1].EventType != events.EventPassCompleted || fixture.publisher.messages[1].Changes != 1 {
		t.Fatalf("unexpected second event %+v", fixture.publisher.messages[1])
	}
}

func TestOverlappingPassIsRejected(t *testing.T) {
	directory := &stubDirectory{
		roster:  roster("nova"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	fixture := newEngineFixture(t, directory, newMemoryStore(), platform.Member{ID: "1"})

	done := make(chan error, 1)
	go func() {
		_, err := fixture.engine.Run(context.Background())
		done <- err
	}()
	<-directory.entered

	if _, err := fixture.engine.Run(context.Background()); !errors.Is(err, ErrPassInProgress) {
		t.Fatalf("expected ErrPassInProgress, got %v", err)
	}
	close(directory.release)
	if err := <-done; err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
}

func TestCompareClassifiesMembers(t *testing.T) {
	store := newMemoryStore(
		members.Profile{DiscordID: "1", Handle: "Nova", OrgStatus: members.StatusMain},
		members.Profile{DiscordID: "2", Handle: "gone", OrgStatus: members.StatusMain},
	)
	fixture := newEngineFixture(t, &stubDirectory{roster: roster("nova", "orion")}, store,
		platform.Member{ID: "1", Username: "a-nova", Roles: []string{"Director"}},
		platform.Member{ID: "2", Username: "b-gone"},
		platform.Member{ID: "3", Username: "c-new"},
	)

	comparison, err := fixture.engine.Compare(context.Background(), "guild-1")
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	statuses := []MatchStatus{MatchLinkedInOrg, MatchLinkedNotInOrg, MatchUnlinked}
	for i, entry := range comparison.Entries {
		if entry.Status != statuses[i] {
			t.Fatalf("entry %d status = %q, want %q", i, entry.Status, statuses[i])
		}
	}
	if comparison.Entries[0].Rank != "Director" {
		t.Fatalf("expected rank in comparison, got %q", comparison.Entries[0].Rank)
	}
	if !reflect.DeepEqual(comparison.RosterNotInGuild, []string{"orion"}) {
		t.Fatalf("unexpected roster-only handles %v", comparison.RosterNotInGuild)
	}
	if fixture.platform.MutationCount() != 0 {
		t.Fatalf("compare must not mutate")
	}
}

func TestNewEngineRejectsDemotionAboveCeiling(t *testing.T) {
	policy := defaultPolicy()
	policy.DefaultDemotion = "Manager"
	_, err := NewEngine(Config{
		Directory: &stubDirectory{},
		Store:     newMemoryStore(),
		Platform:  platformtest.New(),
		Notifier:  &recordingNotifier{},
		Policy:    policy,
		OrgSID:    "DRAXON",
	})
	if !errors.Is(err, ErrDemotionAboveCeiling) {
		t.Fatalf("expected ErrDemotionAboveCeiling, got %v", err)
	}
}

func TestNewEngineRejectsPolicyOutsideLadder(t *testing.T) {
	policy := defaultPolicy()
	policy.DefaultDemotion = "Intern"
	_, err := NewEngine(Config{
		Directory: &stubDirectory{},
		Store:     newMemoryStore(),
		Platform:  platformtest.New(),
		Notifier:  &recordingNotifier{},
		Policy:    policy,
		OrgSID:    "DRAXON",
	})
	if !errors.Is(err, ranks.ErrUnknownRank) {
		t.Fatalf("expected ErrUnknownRank, got %v", err)
	}
}
