package incidents

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/draxon/draxon-bots/internal/faults"
	"github.com/mmcdole/gofeed"
)

// DefaultFeedURL is the RSI status page feed.
const DefaultFeedURL = "https://status.robertsspaceindustries.com/index.xml"

// statusEmojis maps feed status tags to their indicator.
var statusEmojis = map[string]string{
	"operational": "✅",
	"degraded":    "⚠️",
	"partial":     "⚠️",
	"major":       "❌",
	"maintenance": "🔧",
}

// Incident is the newest entry of the status feed.
type Incident struct {
	GUID        string
	Title       string
	Description string
	Link        string
	Status      string
	Components  []string
	Published   time.Time
}

// Source fetches the status feed.
type Source interface {
	Fetch(ctx context.Context) (*gofeed.Feed, error)
}

// FeedSource reads an RSS feed over HTTP.
type FeedSource struct {
	URL    string
	parser *gofeed.Parser
}

// NewFeedSource returns a source for url using client for transport.
func NewFeedSource(url string, client *http.Client) *FeedSource {
	if strings.TrimSpace(url) == "" {
		url = DefaultFeedURL
	}
	parser := gofeed.NewParser()
	parser.UserAgent = "DraXon_AI_Bot/2.0"
	if client != nil {
		parser.Client = client
	}
	return &FeedSource{URL: url, parser: parser}
}

func (s *FeedSource) Fetch(ctx context.Context) (*gofeed.Feed, error) {
	feed, err := s.parser.ParseURLWithContext(s.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("incidents: fetch feed: %w: %v", faults.ErrRemoteUnavailable, err)
	}
	return feed, nil
}

// newIncident converts a feed item. Tags naming a known status set the status; the rest are affected systems.
func newIncident(item *gofeed.Item) Incident {
	incident := Incident{
		GUID:        item.GUID,
		Title:       strings.TrimSpace(item.Title),
		Description: cleanDescription(item.Description),
		Link:        item.Link,
	}
	if incident.GUID == "" {
		incident.GUID = item.Link
	}
	if item.PublishedParsed != nil {
		incident.Published = item.PublishedParsed.UTC()
	}
	for _, category := range item.Categories {
		term := strings.TrimSpace(category)
		if _, ok := statusEmojis[strings.ToLower(term)]; ok {
			incident.Status = strings.ToLower(term)
			continue
		}
		if term != "" {
			incident.Components = append(incident.Components, term)
		}
	}
	return incident
}

// cleanDescription flattens the feed's HTML paragraphs into chat markdown.
// Date headers such as "[2024-10-26 Updates]" are bolded and "HH:MM UTC - text" lines get a code timestamp.
func cleanDescription(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	var lines []string
	doc.Find("p").Each(func(_ int, paragraph *goquery.Selection) {
		text := strings.TrimSpace(paragraph.Text())
		switch {
		case text == "":
		case strings.HasPrefix(text, "[20"):
			lines = append(lines, "", "**"+text+"**")
		case strings.Contains(text, " UTC - "):
			at, message, _ := strings.Cut(text, " UTC - ")
			lines = append(lines, fmt.Sprintf("`%s UTC` - %s", at, message))
		default:
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Render formats the incident as a plain-text channel post.
func Render(incident Incident) string {
	var b strings.Builder
	b.WriteString("🚨 **RSI Status Update**\n")
	b.WriteString("**" + incident.Title + "**\n")
	if incident.Status != "" {
		fmt.Fprintf(&b, "Status: %s %s\n", statusEmojis[incident.Status], strings.ToUpper(incident.Status[:1])+incident.Status[1:])
	}
	if len(incident.Components) > 0 {
		b.WriteString("🎯 Affected Systems:\n")
		for _, component := range incident.Components {
			b.WriteString("- " + component + "\n")
		}
	}
	if incident.Description != "" {
		b.WriteString("\n" + incident.Description + "\n")
	}
	if incident.Link != "" {
		b.WriteString("\n" + incident.Link)
	}
	return strings.TrimRight(b.String(), "\n")
}
