package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/platform/platformtest"
	"github.com/draxon/draxon-bots/internal/settings"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type staticChannels map[settings.Binding]string

func (c staticChannels) Channel(ctx context.Context, guildID string, binding settings.Binding) (string, error) {
	if channelID, ok := c[binding]; ok {
		return channelID, nil
	}
	return "", ErrChannelNotConfigured
}

func newTestNotifier(t *testing.T, fake *platformtest.Fake, channels staticChannels, logger *zap.Logger) *Notifier {
	t.Helper()
	notifier, err := New(Config{
		Messenger: fake,
		Channels:  channels,
		Pick:      func(n int) int { return n - 1 },
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("failed to create notifier: %v", err)
	}
	return notifier
}

func TestNotifyRoleChangeSurvivesDirectMessageFailure(t *testing.T) {
	fake := platformtest.New()
	fake.FailDirect["1001"] = errors.New("cannot send messages to this user")
	core, logs := observer.New(zapcore.WarnLevel)
	notifier := newTestNotifier(t, fake, staticChannels{settings.BindingDemotion: "demotions"}, zap.New(core))

	change := members.RoleChange{DiscordID: "1001", OldRank: "Director", NewRank: "Employee", Reason: "Affiliate status incompatible with leadership role"}
	if err := notifier.NotifyRoleChange(context.Background(), "guild-1", platform.Member{ID: "1001"}, change); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Messages) != 1 || fake.Messages[0].ChannelID != "demotions" {
		t.Fatalf("expected one demotion post, got %+v", fake.Messages)
	}
	for _, fragment := range []string{"<@1001>", "Director", "Employee", "Affiliate status"} {
		if !strings.Contains(fake.Messages[0].Content, fragment) {
			t.Fatalf("expected %q in post %q", fragment, fake.Messages[0].Content)
		}
	}
	if logs.FilterMessage("role change direct message failed").Len() != 1 {
		t.Fatalf("expected the failed DM to be logged")
	}
}

func TestNotifyRoleChangeWithoutChannel(t *testing.T) {
	fake := platformtest.New()
	notifier := newTestNotifier(t, fake, staticChannels{}, nil)
	err := notifier.NotifyRoleChange(context.Background(), "guild-1", platform.Member{ID: "1"}, members.RoleChange{OldRank: "A", NewRank: "B"})
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
	if len(fake.Directs) != 1 {
		t.Fatalf("expected the DM to be attempted before the channel lookup")
	}
}

func TestNotifyUnlinkedSummaryRemindsEachAndPostsOnce(t *testing.T) {
	fake := platformtest.New()
	fake.FailDirect["b"] = errors.New("dm closed")
	notifier := newTestNotifier(t, fake, staticChannels{settings.BindingReminder: "reminders"}, nil)

	unlinked := []platform.Member{{ID: "a"}, {ID: "b"}}
	if err := notifier.NotifyUnlinkedSummary(context.Background(), "guild-1", unlinked); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Directs) != 1 || fake.Directs[0].UserID != "a" || fake.Directs[0].Content != UnlinkedReminder {
		t.Fatalf("unexpected reminders %+v", fake.Directs)
	}
	if len(fake.Messages) != 1 {
		t.Fatalf("expected exactly one summary post, got %d", len(fake.Messages))
	}
	summary := fake.Messages[0].Content
	if !strings.Contains(summary, "<@a>") || !strings.Contains(summary, "<@b>") {
		t.Fatalf("summary must mention both members: %q", summary)
	}
}

func TestRenderUnlinkedSummaryTruncatesLongLists(t *testing.T) {
	unlinked := make([]platform.Member, 0, 200)
	for i := 0; i < 200; i++ {
		unlinked = append(unlinked, platform.Member{ID: fmt.Sprintf("%018d", i)})
	}
	summary := RenderUnlinkedSummary(unlinked)
	list := summary[strings.Index(summary, "•"):]
	if utf8.RuneCountInString(list) != maxSummaryLength {
		t.Fatalf("expected list capped at %d characters, got %d", maxSummaryLength, utf8.RuneCountInString(list))
	}
	if !strings.HasSuffix(list, "...") {
		t.Fatalf("expected truncated list to end with ellipsis")
	}
	if Truncate("short", 10) != "short" {
		t.Fatalf("short values must pass through")
	}
}

func TestAnnounceUsesInjectedPick(t *testing.T) {
	fake := platformtest.New()
	notifier := newTestNotifier(t, fake, staticChannels{settings.BindingPromotion: "promotions"}, nil)

	member := platform.Member{ID: "42"}
	if err := notifier.Announce(context.Background(), "guild-1", KindPromotion, member, "Employee", "Team Leader"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := notifier.Announce(context.Background(), "guild-1", KindDemotion, member, "Team Leader", "Employee"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Messages) != 2 {
		t.Fatalf("expected 2 announcements, got %d", len(fake.Messages))
	}
	if !strings.Contains(fake.Messages[0].Content, "DraXon Personnel Update") {
		t.Fatalf("expected last promotion template, got %q", fake.Messages[0].Content)
	}
	if !strings.Contains(fake.Messages[1].Content, "Administrative Update") {
		t.Fatalf("expected last demotion template, got %q", fake.Messages[1].Content)
	}
}

func TestAnnounceTemplatesMentionMemberAndRanks(t *testing.T) {
	for _, kind := range []AnnouncementKind{KindPromotion, KindDemotion} {
		for i, template := range templatesFor(kind) {
			content := template("<@7>", "Employee", "Manager")
			for _, fragment := range []string{"<@7>", "Employee", "Manager"} {
				if !strings.Contains(content, fragment) {
					t.Fatalf("%s template %d misses %q", kind, i, fragment)
				}
			}
		}
	}
}
