package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ActionKind is the variant tag of an ActionCandidate.
type ActionKind string

const (
	ActionKindTask          ActionKind = "task"
	ActionKindCalendarEvent ActionKind = "calendar_event"
	ActionKindReminder      ActionKind = "reminder"
)

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionKindTask, ActionKindCalendarEvent, ActionKindReminder:
		return true
	}
	return false
}

// Priority represents the urgency of an action.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Field names reported in ActionCandidate.MissingFields.
const (
	FieldTitle     = "title"
	FieldStartTime = "start_time"
	FieldRemindAt  = "remind_at"
)

// ActionCandidate is a structured, not yet committed action derived from a transcript.
type ActionCandidate struct {
	Kind        ActionKind `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	// DateHint is the resolved calendar day when only a day was stated.
	DateHint          *time.Time    `json:"date_hint,omitempty"`
	Duration          time.Duration `json:"duration,omitempty"`
	DurationDefaulted bool          `json:"duration_defaulted,omitempty"`
	Recurrence        string        `json:"recurrence,omitempty"` // RRULE body, e.g. FREQ=WEEKLY;BYDAY=MO
	Priority          Priority      `json:"priority"`
	Attendees         []string      `json:"attendees,omitempty"`
	CalendarID        string        `json:"calendar_id,omitempty"`

	Confidence    float64  `json:"confidence"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// RequiredFields returns the fields a candidate of this kind must carry before it can proceed.
func (c *ActionCandidate) RequiredFields() []string {
	switch c.Kind {
	case ActionKindCalendarEvent:
		return []string{FieldTitle, FieldStartTime}
	case ActionKindReminder:
		return []string{FieldTitle, FieldRemindAt}
	default:
		return []string{FieldTitle}
	}
}

// HasField reports whether the named field is present.
func (c *ActionCandidate) HasField(field string) bool {
	switch field {
	case FieldTitle:
		return strings.TrimSpace(c.Title) != ""
	case FieldStartTime, FieldRemindAt:
		return c.Start != nil
	}
	return false
}

// IsMissing reports whether field is listed in MissingFields.
func (c *ActionCandidate) IsMissing(field string) bool {
	return slices.Contains(c.MissingFields, field)
}

// Blocked reports whether the candidate needs clarification before it may be checked or executed.
func (c *ActionCandidate) Blocked(threshold float64) bool {
	return c.Confidence < threshold || len(c.MissingFields) > 0
}

// TimeBounded reports whether the candidate occupies calendar time and must be conflict checked.
func (c *ActionCandidate) TimeBounded() bool {
	return c.Kind == ActionKindCalendarEvent && c.Start != nil
}

// Range returns the candidate's time range. End falls back to Start+Duration.
func (c *ActionCandidate) Range() (TimeRange, bool) {
	if c.Start == nil {
		return TimeRange{}, false
	}
	start := *c.Start
	var end time.Time
	switch {
	case c.End != nil:
		end = *c.End
	case c.Duration > 0:
		end = start.Add(c.Duration)
	default:
		return TimeRange{}, false
	}
	return TimeRange{Start: start, End: end}, true
}

// WithSlot returns a copy of the candidate moved to the given range.
func (c *ActionCandidate) WithSlot(start, end time.Time) *ActionCandidate {
	out := c.Clone()
	out.Start = &start
	out.End = &end
	out.Duration = end.Sub(start)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	out.DateHint = &day
	return out
}

// Clone returns a deep copy.
func (c *ActionCandidate) Clone() *ActionCandidate {
	if c == nil {
		return nil
	}
	out := *c
	out.Start = cloneTime(c.Start)
	out.End = cloneTime(c.End)
	out.DateHint = cloneTime(c.DateHint)
	out.Attendees = slices.Clone(c.Attendees)
	out.MissingFields = slices.Clone(c.MissingFields)
	return &out
}

// Label is a short human readable description used in option lists and previews.
func (c *ActionCandidate) Label() string {
	var sb strings.Builder
	sb.WriteString(c.Title)
	if len(c.Attendees) > 0 {
		sb.WriteString(" (with ")
		sb.WriteString(strings.Join(c.Attendees, ", "))
		sb.WriteString(")")
	}
	if c.Start != nil {
		sb.WriteString(", ")
		sb.WriteString(c.Start.Format("Mon Jan 2 15:04"))
		if r, ok := c.Range(); ok && c.Kind == ActionKindCalendarEvent {
			sb.WriteString("-")
			sb.WriteString(r.End.Format("15:04"))
		}
	} else if c.DateHint != nil {
		sb.WriteString(", ")
		sb.WriteString(c.DateHint.Format("Mon Jan 2"))
	}
	return sb.String()
}

// Preview renders the confirmation text shown before execution.
func (c *ActionCandidate) Preview() string {
	var verb string
	switch c.Kind {
	case ActionKindCalendarEvent:
		verb = "Create event"
	case ActionKindReminder:
		verb = "Set reminder"
	default:
		verb = "Add task"
	}
	preview := fmt.Sprintf("%s: %s", verb, c.Label())
	if c.Kind == ActionKindTask && c.Start != nil {
		preview = fmt.Sprintf("%s: %s (due %s)", verb, c.Title, c.Start.Format("Mon Jan 2 15:04"))
	}
	if c.Recurrence != "" {
		preview += fmt.Sprintf(" [repeats %s]", c.Recurrence)
	}
	if c.Priority == PriorityHigh {
		preview += " [high priority]"
	}
	return preview
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
