package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/joescharf/voicecal/internal/models"
)

// DefaultICSCacheTTL is how long a fetched feed is reused.
const DefaultICSCacheTTL = time.Minute

// icsMaster is a parsed VEVENT before recurrence expansion.
type icsMaster struct {
	event models.ExternalEvent
	rule  string
}

// ICSFeed is a read-only calendar backed by an iCalendar URL.
type ICSFeed struct {
	id     string
	url    string
	client *http.Client
	loc    *time.Location
	cache  *expirable.LRU[string, []icsMaster]
}

// NewICSFeed returns a feed reader. A nil client uses http.DefaultClient;
// ttl <= 0 disables caching.
func NewICSFeed(id, url string, client *http.Client, loc *time.Location, ttl time.Duration) *ICSFeed {
	if client == nil {
		client = http.DefaultClient
	}
	if loc == nil {
		loc = time.Local
	}
	f := &ICSFeed{id: id, url: url, client: client, loc: loc}
	if ttl > 0 {
		f.cache = expirable.NewLRU[string, []icsMaster](16, nil, ttl)
	}
	return f
}

func (f *ICSFeed) ID() string { return f.id }

func (f *ICSFeed) ListEvents(ctx context.Context, window models.TimeRange) ([]models.ExternalEvent, error) {
	masters, err := f.masters(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.ExternalEvent
	for _, m := range masters {
		inst, err := expandEvent(m.event, m.rule, window)
		if err != nil {
			slog.Warn("skipping event with bad recurrence", "calendar", f.id, "event", m.event.ID, "error", err)
			continue
		}
		out = append(out, inst...)
	}
	sortEvents(out)
	return out, nil
}

func (f *ICSFeed) masters(ctx context.Context) ([]icsMaster, error) {
	if f.cache != nil {
		if m, ok := f.cache.Get(f.url); ok {
			return m, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", f.id, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.id, err)
	}

	masters, err := parseICS(body, f.id, f.loc)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		f.cache.Add(f.url, masters)
	}
	return masters, nil
}

func parseICS(body []byte, calendarID string, loc *time.Location) ([]icsMaster, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(string(body)))
	if strings.HasPrefix(trimmed, "<!DOCTYPE") || strings.HasPrefix(trimmed, "<HTML") {
		return nil, fmt.Errorf("received HTML instead of iCalendar data, check whether the URL requires authentication")
	}
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		return nil, fmt.Errorf("invalid iCalendar data: expected BEGIN:VCALENDAR")
	}

	dec := ical.NewDecoder(bytes.NewReader(body))
	var out []icsMaster
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}
		for _, ev := range cal.Events() {
			m, ok := parseVEvent(ev, calendarID, loc)
			if ok {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func parseVEvent(ev ical.Event, calendarID string, loc *time.Location) (icsMaster, bool) {
	status := strings.ToUpper(propValue(ev.Props, ical.PropStatus))
	if status == "CANCELLED" {
		return icsMaster{}, false
	}
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return icsMaster{}, false
	}
	allDay := len(propValue(ev.Props, ical.PropDateTimeStart)) == len("20060102")
	end, err := ev.DateTimeEnd(loc)
	if err != nil || !end.After(start) {
		if allDay {
			end = start.AddDate(0, 0, 1)
		} else {
			end = start.Add(time.Hour)
		}
	}
	transparent := strings.EqualFold(propValue(ev.Props, ical.PropTransparency), "TRANSPARENT")

	e := models.ExternalEvent{
		ID:            propValue(ev.Props, ical.PropUID),
		Title:         propValue(ev.Props, ical.PropSummary),
		Start:         start,
		End:           end,
		CalendarID:    calendarID,
		Flexible:      transparent || status == "TENTATIVE" || allDay,
		AttendeeCount: len(ev.Props[ical.PropAttendee]),
	}
	if e.ID == "" {
		e.ID = calendarID + "-" + start.UTC().Format(time.RFC3339) + "-" + e.Title
	}
	return icsMaster{event: e, rule: propValue(ev.Props, ical.PropRecurrenceRule)}, true
}

func propValue(props ical.Props, name string) string {
	if p := props.Get(name); p != nil {
		return p.Value
	}
	return ""
}
