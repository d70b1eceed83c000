package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/joescharf/voicecal/internal/models"
)

// DefaultGoogleBaseURL is the Google Calendar v3 REST endpoint.
const DefaultGoogleBaseURL = "https://www.googleapis.com/calendar/v3"

// GoogleCalendar reads and writes one Google calendar with a pre-issued access token.
type GoogleCalendar struct {
	id         string
	calendarID string
	baseURL    string
	httpClient *http.Client
	loc        *time.Location
}

// GoogleConfig configures a GoogleCalendar.
type GoogleConfig struct {
	ID          string // voicecal calendar id
	CalendarID  string // Google calendar id, usually an email address or "primary"
	AccessToken string
	BaseURL     string
	Location    *time.Location
}

// NewGoogleCalendar returns a client for cfg.
func NewGoogleCalendar(ctx context.Context, cfg GoogleConfig) *GoogleCalendar {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGoogleBaseURL
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &GoogleCalendar{
		id:         cfg.ID,
		calendarID: cfg.CalendarID,
		baseURL:    cfg.BaseURL,
		httpClient: oauth2.NewClient(ctx, ts),
		loc:        cfg.Location,
	}
}

func (g *GoogleCalendar) ID() string { return g.id }

type googleEvent struct {
	ID           string           `json:"id,omitempty"`
	Summary      string           `json:"summary"`
	Description  string           `json:"description,omitempty"`
	Status       string           `json:"status,omitempty"`
	Transparency string           `json:"transparency,omitempty"`
	Recurrence   []string         `json:"recurrence,omitempty"`
	Start        *googleDateTime  `json:"start,omitempty"`
	End          *googleDateTime  `json:"end,omitempty"`
	Attendees    []googleAttendee `json:"attendees,omitempty"`
}

type googleDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googleAttendee struct {
	Email string `json:"email"`
}

type eventsResponse struct {
	Items []googleEvent `json:"items"`
}

// apiError carries the HTTP status of a failed call so callers can map 404/410.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("calendar API error (%d): %s", e.Status, e.Message)
}

func (g *GoogleCalendar) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &apiError{Status: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}

func (g *GoogleCalendar) eventsPath() string {
	return fmt.Sprintf("/calendars/%s/events", url.PathEscape(g.calendarID))
}

func (g *GoogleCalendar) ListEvents(ctx context.Context, window models.TimeRange) ([]models.ExternalEvent, error) {
	q := url.Values{}
	q.Set("timeMin", window.Start.Format(time.RFC3339))
	q.Set("timeMax", window.End.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", "250")

	data, err := g.request(ctx, http.MethodGet, g.eventsPath()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", g.id, err)
	}
	var resp eventsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse events response: %w", err)
	}

	out := make([]models.ExternalEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, ok := g.convertEvent(item)
		if !ok {
			continue
		}
		out = append(out, ev)
	}
	sortEvents(out)
	return out, nil
}

func (g *GoogleCalendar) convertEvent(item googleEvent) (models.ExternalEvent, bool) {
	if item.Status == "cancelled" || item.Start == nil || item.End == nil {
		return models.ExternalEvent{}, false
	}
	start, allDay, err := g.parseDateTime(item.Start)
	if err != nil {
		return models.ExternalEvent{}, false
	}
	end, _, err := g.parseDateTime(item.End)
	if err != nil {
		return models.ExternalEvent{}, false
	}
	return models.ExternalEvent{
		ID:            item.ID,
		Title:         item.Summary,
		Start:         start,
		End:           end,
		CalendarID:    g.id,
		Flexible:      item.Transparency == "transparent" || item.Status == "tentative" || allDay,
		AttendeeCount: len(item.Attendees),
	}, true
}

func (g *GoogleCalendar) parseDateTime(dt *googleDateTime) (time.Time, bool, error) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, false, err
	}
	t, err := time.ParseInLocation("2006-01-02", dt.Date, g.loc)
	return t, true, err
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, ev NewEvent) (string, error) {
	body := googleEvent{
		Summary:     ev.Title,
		Description: ev.Description,
		Start:       &googleDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &googleDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}
	if ev.Recurrence != "" {
		body.Recurrence = []string{"RRULE:" + trimRulePrefix(ev.Recurrence)}
		// Recurring events need an explicit zone for expansion.
		body.Start.TimeZone = ev.Start.Location().String()
		body.End.TimeZone = ev.End.Location().String()
	}
	for _, a := range ev.Attendees {
		if strings.Contains(a, "@") {
			body.Attendees = append(body.Attendees, googleAttendee{Email: a})
		}
	}

	data, err := g.request(ctx, http.MethodPost, g.eventsPath(), body)
	if err != nil {
		return "", fmt.Errorf("create event %s: %w", g.id, err)
	}
	var created googleEvent
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("parse created event: %w", err)
	}
	return created.ID, nil
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, externalID string) error {
	path := g.eventsPath() + "/" + url.PathEscape(externalID)
	_, err := g.request(ctx, http.MethodDelete, path, nil)
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) && (ae.Status == http.StatusNotFound || ae.Status == http.StatusGone) {
			return fmt.Errorf("%s/%s: %w", g.id, externalID, ErrEventNotFound)
		}
		return fmt.Errorf("delete event %s: %w", g.id, err)
	}
	return nil
}
