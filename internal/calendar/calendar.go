// Package calendar holds the calendar provider adapters: an in-memory calendar,
// a read-only iCalendar feed, Google Calendar and the SQLite-backed local calendar.
package calendar

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/joescharf/voicecal/internal/models"
)

// ErrEventNotFound is returned by DeleteEvent when the object no longer exists.
var ErrEventNotFound = errors.New("event not found")

// ErrReadOnly is returned when a write is attempted on a read-only provider.
var ErrReadOnly = errors.New("calendar is read-only")

// Reader lists events from one calendar.
type Reader interface {
	ID() string
	ListEvents(ctx context.Context, window models.TimeRange) ([]models.ExternalEvent, error)
}

// Writer creates and deletes events on one calendar.
type Writer interface {
	CreateEvent(ctx context.Context, ev NewEvent) (string, error)
	DeleteEvent(ctx context.Context, externalID string) error
}

// ReadWriter is a calendar that can be both queried and written.
type ReadWriter interface {
	Reader
	Writer
}

// NewEvent is the payload for CreateEvent.
type NewEvent struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Recurrence  string // RRULE body without the "RRULE:" prefix
	Attendees   []string
}

// Info describes a configured calendar.
type Info struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Selected bool   `json:"selected"`
	Writable bool   `json:"writable"`
	Default  bool   `json:"default"`
}

func sortEvents(events []models.ExternalEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].ID < events[j].ID
		}
		return events[i].Start.Before(events[j].Start)
	})
}
