package incidents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/draxon/draxon-bots/internal/faults"
	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/platform/platformtest"
	"github.com/draxon/draxon-bots/internal/settings"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>RSI Status</title>
    <item>
      <title>Login Issues</title>
      <link>https://status.robertsspaceindustries.com/issues/login/</link>
      <guid>GUID_PLACEHOLDER</guid>
      <category>partial</category>
      <category>Platform</category>
      <category>Persistent Universe</category>
      <description><![CDATA[<p>[2026-10-18 Updates]</p><p>14:05 UTC - Investigating login failures.</p><p></p><p>Players may see error 30k.</p>]]></description>
    </item>
  </channel>
</rss>`

type feedServer struct {
	*httptest.Server
	guid     atomic.Value
	requests atomic.Int32
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{}
	fs.guid.Store("incident-1")
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.requests.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(strings.Replace(feedTemplate, "GUID_PLACEHOLDER", fs.guid.Load().(string), 1)))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func newSettings(t *testing.T) *settings.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "incidents.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&settings.Setting{}); err != nil {
		t.Fatalf("failed to migrate settings: %v", err)
	}
	service, err := settings.NewService(settings.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create settings: %v", err)
	}
	return service
}

func TestRunPostsNewIncidentOncePerGuild(t *testing.T) {
	server := newFeedServer(t)
	state := newSettings(t)
	ctx := context.Background()
	if err := state.BindChannel(ctx, "g1", settings.BindingIncidents, "alerts-1"); err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	fake := platformtest.New()
	fake.AddGuild(platform.Guild{ID: "g1"})
	fake.AddGuild(platform.Guild{ID: "g2"})

	monitor, err := NewMonitor(Config{Source: NewFeedSource(server.URL, server.Client()), State: state, Platform: fake})
	if err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}
	if err := monitor.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(fake.Messages) != 1 || fake.Messages[0].ChannelID != "alerts-1" {
		t.Fatalf("expected one post to the bound channel, got %+v", fake.Messages)
	}
	post := fake.Messages[0].Content
	for _, fragment := range []string{"**Login Issues**", "Status: ⚠️ Partial", "- Platform", "- Persistent Universe", "**[2026-10-18 Updates]**", "`14:05 UTC` - Investigating login failures."} {
		if !strings.Contains(post, fragment) {
			t.Fatalf("expected %q in post:\n%s", fragment, post)
		}
	}

	if err := monitor.Run(ctx); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(fake.Messages) != 1 {
		t.Fatalf("expected the same incident not to be reposted, got %d posts", len(fake.Messages))
	}

	server.guid.Store("incident-2")
	if err := monitor.Run(ctx); err != nil {
		t.Fatalf("third run failed: %v", err)
	}
	if len(fake.Messages) != 2 {
		t.Fatalf("expected a new incident to be posted, got %d posts", len(fake.Messages))
	}
}

func TestCheckPersistsLastGUID(t *testing.T) {
	server := newFeedServer(t)
	state := newSettings(t)
	monitor, err := NewMonitor(Config{Source: NewFeedSource(server.URL, server.Client()), State: state, Platform: platformtest.New()})
	if err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}
	incident, ok, err := monitor.Check(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected new incident, got %v (%v)", ok, err)
	}
	if incident.Status != "partial" || len(incident.Components) != 2 {
		t.Fatalf("unexpected incident %+v", incident)
	}
	stored, found, err := state.Get(context.Background(), settings.GlobalScope, lastGUIDKey)
	if err != nil || !found || stored != "incident-1" {
		t.Fatalf("expected stored guid, got %q (%v, %v)", stored, found, err)
	}
}

func TestFetchFailureIsRemoteUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	monitor, err := NewMonitor(Config{Source: NewFeedSource(server.URL, server.Client()), State: newSettings(t), Platform: platformtest.New()})
	if err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}
	err = monitor.Run(context.Background())
	if !errors.Is(err, faults.ErrRemoteUnavailable) {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
}

func TestCleanDescriptionWithoutParagraphs(t *testing.T) {
	if got := cleanDescription("All systems operational"); got != "All systems operational" {
		t.Fatalf("unexpected description %q", got)
	}
}
