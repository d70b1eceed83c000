package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/store"
)

// EventStore is the slice of the store that backs a LocalCalendar.
type EventStore interface {
	CreateCalendarEvent(ctx context.Context, e *models.CalendarEvent) error
	ListCalendarEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*models.CalendarEvent, error)
	DeleteCalendarEvent(ctx context.Context, calendarID, id string) error
}

// LocalCalendar is a writable calendar persisted in the voicecal database.
type LocalCalendar struct {
	id    string
	store EventStore
}

// NewLocalCalendar returns the local calendar with the given id.
func NewLocalCalendar(id string, s EventStore) *LocalCalendar {
	return &LocalCalendar{id: id, store: s}
}

func (l *LocalCalendar) ID() string { return l.id }

func (l *LocalCalendar) ListEvents(ctx context.Context, window models.TimeRange) ([]models.ExternalEvent, error) {
	rows, err := l.store.ListCalendarEvents(ctx, l.id, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("list local events: %w", err)
	}
	var out []models.ExternalEvent
	for _, r := range rows {
		ev := models.ExternalEvent{
			ID:            r.ID,
			Title:         r.Title,
			Start:         r.Start.In(window.Start.Location()),
			End:           r.End.In(window.Start.Location()),
			CalendarID:    l.id,
			Flexible:      r.Flexible,
			AttendeeCount: len(r.Attendees),
		}
		inst, err := expandEvent(ev, r.Recurrence, window)
		if err != nil {
			return nil, err
		}
		out = append(out, inst...)
	}
	sortEvents(out)
	return out, nil
}

func (l *LocalCalendar) CreateEvent(ctx context.Context, ev NewEvent) (string, error) {
	row := &models.CalendarEvent{
		CalendarID:  l.id,
		UID:         uuid.NewString(),
		Title:       ev.Title,
		Description: ev.Description,
		Start:       ev.Start,
		End:         ev.End,
		Recurrence:  trimRulePrefix(ev.Recurrence),
		Attendees:   ev.Attendees,
	}
	if err := l.store.CreateCalendarEvent(ctx, row); err != nil {
		return "", err
	}
	return row.ID, nil
}

func (l *LocalCalendar) DeleteEvent(ctx context.Context, externalID string) error {
	err := l.store.DeleteCalendarEvent(ctx, l.id, externalID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s/%s: %w", l.id, externalID, ErrEventNotFound)
	}
	return err
}

// ExportICS writes the events starting in window as an iCalendar document.
func (l *LocalCalendar) ExportICS(ctx context.Context, w io.Writer, window models.TimeRange) error {
	rows, err := l.store.ListCalendarEvents(ctx, l.id, window.Start, window.End)
	if err != nil {
		return fmt.Errorf("list local events: %w", err)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//voicecal//voicecal//EN")

	for _, r := range rows {
		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, r.UID)
		ev.Props.SetDateTime(ical.PropDateTimeStamp, r.CreatedAt.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeStart, r.Start.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, r.End.UTC())
		ev.Props.SetText(ical.PropSummary, r.Title)
		if r.Description != "" {
			ev.Props.SetText(ical.PropDescription, r.Description)
		}
		if r.Recurrence != "" {
			ev.Props.Set(&ical.Prop{Name: ical.PropRecurrenceRule, Value: r.Recurrence, Params: make(ical.Params)})
		}
		if r.Flexible {
			ev.Props.SetText(ical.PropTransparency, "TRANSPARENT")
		}
		cal.Children = append(cal.Children, ev.Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
