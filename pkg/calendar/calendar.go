package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/kavindu/lmswatch/internal/store"
	"github.com/kavindu/lmswatch/pkg/lms"
)

// Event is a deadline descriptor parsed out of a VEVENT.
type Event struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
}

// Parse extracts events from iCalendar text, keeping only those starting
// strictly after now, sorted ascending by start time. Date-only events are
// normalized to UTC midnight. A malformed feed degrades to an empty result,
// never an error: the feed is untrusted input.
func Parse(data string, now time.Time) []Event {
	cal, err := ics.ParseCalendar(strings.NewReader(data))
	if err != nil {
		return nil
	}

	var events []Event
	for _, ve := range cal.Events() {
		start, ok := eventStart(ve)
		if !ok || !start.After(now) {
			continue
		}

		title := propValue(ve, ics.ComponentPropertySummary)
		if title == "" {
			title = "Untitled Event"
		}

		events = append(events, Event{
			Title:       title,
			Description: propValue(ve, ics.ComponentPropertyDescription),
			Location:    propValue(ve, ics.ComponentPropertyLocation),
			Start:       start.UTC(),
		})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events
}

func eventStart(ve *ics.VEvent) (time.Time, bool) {
	if start, err := ve.GetStartAt(); err == nil {
		return start, true
	}
	// DATE-valued DTSTART carries no time component: UTC midnight by convention.
	if day, err := ve.GetAllDayStartAt(); err == nil {
		return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func propValue(ve *ics.VEvent, prop ics.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

// Merger syncs iCalendar feeds into the deadline table. Every event upserts
// on its content-derived id, so syncing an unchanged feed twice leaves the
// same row set behind.
type Merger struct {
	client *http.Client
	store  store.Store
}

// NewMerger creates a merger writing through the given store.
func NewMerger(st store.Store) *Merger {
	return &Merger{
		client: &http.Client{Timeout: 30 * time.Second},
		store:  st,
	}
}

// Sync fetches a site's calendar feed and upserts its future events. Events
// that disappeared from the feed are left alone; use Resync to bound
// staleness.
func (m *Merger) Sync(ctx context.Context, site lms.Site) (int, error) {
	if site.CalendarURL == "" {
		return 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site.CalendarURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create calendar request %s: %w", site.Name, err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch calendar %s: %w", site.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("calendar %s status %d", site.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read calendar %s: %w", site.Name, err)
	}

	events := Parse(string(body), time.Now().UTC())

	count := 0
	for _, ev := range events {
		d := &store.Deadline{
			DeadlineID:   lms.CalendarDeadlineID(site.Name, ev.Start.Format(time.RFC3339), ev.Title),
			Title:        ev.Title,
			Description:  ev.Description,
			DeadlineDate: ev.Start,
			Site:         site.Name,
			Source:       store.SourceCalendar,
			Location:     ev.Location,
		}
		if err := m.store.UpsertDeadline(ctx, d); err != nil {
			return count, fmt.Errorf("store calendar event %q: %w", ev.Title, err)
		}
		count++
	}
	return count, nil
}

// Resync purges the site's calendar-sourced deadlines and rebuilds them from
// the feed. The remote calendar is the source of truth for these rows;
// scraped deadlines are untouched.
func (m *Merger) Resync(ctx context.Context, site lms.Site) (int, error) {
	if err := m.store.PurgeCalendarDeadlines(ctx, site.Name); err != nil {
		return 0, err
	}
	return m.Sync(ctx, site)
}
