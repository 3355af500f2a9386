package lms

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// ForumFeed is a Moodle forum RSS export watched alongside page scraping.
// Forum posts arrive here with a clean structure instead of being fished out
// of HTML, but they flow through the same identity and dedup pipeline.
type ForumFeed struct {
	Name     string
	URL      string
	CourseID string
}

// ForumPost pairs an extracted activity with the course it belongs to.
type ForumPost struct {
	CourseID string
	Activity Activity
}

// ForumWatcher collects posts from configured forum RSS feeds.
type ForumWatcher struct {
	client *http.Client
	parser *gofeed.Parser
	feeds  []ForumFeed
}

// NewForumWatcher creates a watcher over the given feeds.
func NewForumWatcher(feeds []ForumFeed) *ForumWatcher {
	return &ForumWatcher{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		feeds:  feeds,
	}
}

// Feeds returns the configured feeds.
func (w *ForumWatcher) Feeds() []ForumFeed {
	return w.feeds
}

// Collect fetches every configured feed. A failing feed is logged and skipped,
// never fatal to the others.
func (w *ForumWatcher) Collect(ctx context.Context) []ForumPost {
	var posts []ForumPost
	for _, feed := range w.feeds {
		items, err := w.collectFeed(ctx, feed)
		if err != nil {
			slog.Warn("forum feed failed", "feed", feed.Name, "error", err)
			continue
		}
		posts = append(posts, items...)
	}
	return posts
}

func (w *ForumWatcher) collectFeed(ctx context.Context, feed ForumFeed) ([]ForumPost, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "lmswatch/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := w.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.Name, err)
	}

	var posts []ForumPost
	for _, entry := range parsed.Items {
		if entry.Title == "" || entry.Link == "" {
			continue
		}
		posts = append(posts, ForumPost{
			CourseID: feed.CourseID,
			Activity: Activity{
				Type:        "forum",
				Title:       cleanText(entry.Title),
				URL:         entry.Link,
				Description: cleanText(entry.Description),
			},
		})
	}
	return posts, nil
}
