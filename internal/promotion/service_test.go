package promotion

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/notify"
	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/platform/platformtest"
	"github.com/draxon/draxon-bots/internal/settings"
)

const guildID = "g1"

type stubChannels struct {
	channels map[settings.Binding]string
}

func (s stubChannels) Channel(ctx context.Context, guildID string, binding settings.Binding) (string, error) {
	channelID, ok := s.channels[binding]
	if !ok {
		return "", settings.ErrChannelNotConfigured
	}
	return channelID, nil
}

type recordingStore struct {
	changes []members.RankChange
	err     error
}

func (s *recordingStore) RecordRankChange(ctx context.Context, change members.RankChange) (members.RoleChange, error) {
	if s.err != nil {
		return members.RoleChange{}, s.err
	}
	s.changes = append(s.changes, change)
	return members.RoleChange{DiscordID: change.DiscordID, OldRank: change.OldRank, NewRank: change.NewRank, Reason: change.Reason}, nil
}

type announcement struct {
	kind     notify.AnnouncementKind
	memberID string
	from     string
	to       string
}

type recordingAnnouncer struct {
	announcements []announcement
	err           error
}

func (a *recordingAnnouncer) Announce(ctx context.Context, guildID string, kind notify.AnnouncementKind, member platform.Member, from, to string) error {
	a.announcements = append(a.announcements, announcement{kind: kind, memberID: member.ID, from: from, to: to})
	return a.err
}

type fixture struct {
	service   *Service
	platform  *platformtest.Fake
	store     *recordingStore
	announcer *recordingAnnouncer
}

func newFixture(t *testing.T, bound bool, guildMembers ...platform.Member) fixture {
	t.Helper()
	fake := platformtest.New()
	fake.AddGuild(platform.Guild{ID: guildID, Name: "DraXon"}, guildMembers...)
	channels := stubChannels{channels: map[settings.Binding]string{}}
	if bound {
		channels.channels[settings.BindingPromotion] = "promotions"
	}
	store := &recordingStore{}
	announcer := &recordingAnnouncer{}
	service, err := NewService(Config{Platform: fake, Store: store, Announcer: announcer, Channels: channels})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return fixture{service: service, platform: fake, store: store, announcer: announcer}
}

var director = platform.Member{ID: "boss", Username: "boss", Roles: []string{"Director"}}

func TestPromoteMovesOneRankUp(t *testing.T) {
	f := newFixture(t, true, director, platform.Member{ID: "u1", Username: "pilot", Roles: []string{"Employee", "Pilot"}})

	outcome, err := f.service.Promote(context.Background(), Request{GuildID: guildID, Actor: director, TargetID: "u1"})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if outcome.From != "Employee" || outcome.To != "Team Leader" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if got := f.platform.RolesOf(guildID, "u1"); !reflect.DeepEqual(got, []string{"Pilot", "Team Leader"}) {
		t.Fatalf("unexpected roles %v", got)
	}
	if len(f.store.changes) != 1 || f.store.changes[0].Reason != "promotion by boss" {
		t.Fatalf("unexpected recorded changes %+v", f.store.changes)
	}
	if len(f.announcer.announcements) != 1 || f.announcer.announcements[0].kind != notify.KindPromotion {
		t.Fatalf("unexpected announcements %+v", f.announcer.announcements)
	}
	if Message(outcome, nil) != "✅ Successfully promoted <@u1> to Team Leader!" {
		t.Fatalf("unexpected message %q", Message(outcome, nil))
	}
}

func TestDemoteMovesOneRankDown(t *testing.T) {
	f := newFixture(t, true, director, platform.Member{ID: "u1", Username: "lead", Roles: []string{"Team Leader"}})

	outcome, err := f.service.Demote(context.Background(), Request{GuildID: guildID, Actor: director, TargetID: "u1"})
	if err != nil {
		t.Fatalf("demote failed: %v", err)
	}
	if outcome.To != "Employee" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if got := f.platform.RolesOf(guildID, "u1"); !reflect.DeepEqual(got, []string{"Employee"}) {
		t.Fatalf("unexpected roles %v", got)
	}
	if !strings.HasPrefix(Message(outcome, nil), "✅ Successfully demoted") {
		t.Fatalf("unexpected message %q", Message(outcome, nil))
	}
}

func TestPromoteRequiresManagerRole(t *testing.T) {
	actor := platform.Member{ID: "u2", Roles: []string{"Manager"}}
	f := newFixture(t, true, actor, platform.Member{ID: "u1", Roles: []string{"Employee"}})

	_, err := f.service.Promote(context.Background(), Request{GuildID: guildID, Actor: actor, TargetID: "u1"})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if f.platform.MutationCount() != 0 {
		t.Fatalf("expected no mutations")
	}
}

func TestPromoteRequiresPromotionChannel(t *testing.T) {
	f := newFixture(t, false, director, platform.Member{ID: "u1", Roles: []string{"Employee"}})

	_, err := f.service.Promote(context.Background(), Request{GuildID: guildID, Actor: director, TargetID: "u1"})
	if !errors.Is(err, settings.ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
	if Message(Outcome{}, err) != "❌ Promotion channel not configured. Please use `/setup` first." {
		t.Fatalf("unexpected message %q", Message(Outcome{}, err))
	}
	if f.platform.MutationCount() != 0 || len(f.store.changes) != 0 {
		t.Fatalf("expected no side effects")
	}
}

func TestLadderEndpointsHaveNoAdjacentRank(t *testing.T) {
	f := newFixture(t, true, director,
		platform.Member{ID: "top", Roles: []string{"Chairman"}},
		platform.Member{ID: "bottom", Roles: []string{"Screening"}},
		platform.Member{ID: "none", Roles: []string{"Pilot"}},
	)
	ctx := context.Background()

	outcome, err := f.service.Promote(ctx, Request{GuildID: guildID, Actor: director, TargetID: "top"})
	if !errors.Is(err, ErrNoAdjacentRank) {
		t.Fatalf("expected ErrNoAdjacentRank, got %v", err)
	}
	if !strings.Contains(Message(outcome, err), "Cannot determine next rank for <@top>") {
		t.Fatalf("unexpected message %q", Message(outcome, err))
	}
	if _, err := f.service.Demote(ctx, Request{GuildID: guildID, Actor: director, TargetID: "bottom"}); !errors.Is(err, ErrNoAdjacentRank) {
		t.Fatalf("expected ErrNoAdjacentRank at bottom, got %v", err)
	}
	if _, err := f.service.Promote(ctx, Request{GuildID: guildID, Actor: director, TargetID: "none"}); !errors.Is(err, ErrNoAdjacentRank) {
		t.Fatalf("expected ErrNoAdjacentRank without rank, got %v", err)
	}
	if f.platform.MutationCount() != 0 {
		t.Fatalf("expected no mutations")
	}
}

func TestAnnouncementFailureDoesNotFailPromotion(t *testing.T) {
	f := newFixture(t, true, director, platform.Member{ID: "u1", Roles: []string{"Applicant"}})
	f.announcer.err = errors.New("channel gone")

	if _, err := f.service.Promote(context.Background(), Request{GuildID: guildID, Actor: director, TargetID: "u1"}); err != nil {
		t.Fatalf("expected promotion to succeed, got %v", err)
	}
	if len(f.store.changes) != 1 {
		t.Fatalf("expected change to be recorded")
	}
}

func TestSwapFailureIsNotRecorded(t *testing.T) {
	f := newFixture(t, true, director, platform.Member{ID: "u1", Roles: []string{"Applicant"}})
	f.platform.FailRole["u1"] = errors.New("missing permissions")

	if _, err := f.service.Promote(context.Background(), Request{GuildID: guildID, Actor: director, TargetID: "u1"}); err == nil {
		t.Fatalf("expected swap failure")
	}
	if len(f.store.changes) != 0 || len(f.announcer.announcements) != 0 {
		t.Fatalf("expected nothing recorded or announced")
	}
}
