package calendar

import (
	"context"
	"fmt"
	"sync"

	"github.com/joescharf/voicecal/internal/models"
)

// MemoryCalendar is an in-process calendar, used for demos and tests.
type MemoryCalendar struct {
	id string

	mu     sync.Mutex
	seq    int
	events map[string]memoryEvent
}

type memoryEvent struct {
	event models.ExternalEvent
	rule  string
}

// NewMemoryCalendar returns an empty calendar with the given id.
func NewMemoryCalendar(id string) *MemoryCalendar {
	return &MemoryCalendar{id: id, events: make(map[string]memoryEvent)}
}

func (m *MemoryCalendar) ID() string { return m.id }

// Add seeds an existing event. An empty ID is assigned.
func (m *MemoryCalendar) Add(ev models.ExternalEvent) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		m.seq++
		ev.ID = fmt.Sprintf("%s-%d", m.id, m.seq)
	}
	ev.CalendarID = m.id
	m.events[ev.ID] = memoryEvent{event: ev}
	return ev.ID
}

func (m *MemoryCalendar) ListEvents(ctx context.Context, window models.TimeRange) ([]models.ExternalEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ExternalEvent
	for _, me := range m.events {
		inst, err := expandEvent(me.event, me.rule, window)
		if err != nil {
			return nil, err
		}
		out = append(out, inst...)
	}
	sortEvents(out)
	return out, nil
}

func (m *MemoryCalendar) CreateEvent(ctx context.Context, ev NewEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("%s-%d", m.id, m.seq)
	m.events[id] = memoryEvent{
		event: models.ExternalEvent{
			ID:            id,
			Title:         ev.Title,
			Start:         ev.Start,
			End:           ev.End,
			CalendarID:    m.id,
			AttendeeCount: len(ev.Attendees),
		},
		rule: ev.Recurrence,
	}
	return id, nil
}

func (m *MemoryCalendar) DeleteEvent(ctx context.Context, externalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[externalID]; !ok {
		return fmt.Errorf("%s/%s: %w", m.id, externalID, ErrEventNotFound)
	}
	delete(m.events, externalID)
	return nil
}

// Len returns the number of stored (master) events.
func (m *MemoryCalendar) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
