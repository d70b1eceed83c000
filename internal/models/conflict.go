package models

import "time"

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End-Start.
func (r TimeRange) Duration() time.Duration { return r.End.Sub(r.Start) }

// Valid reports whether End is after Start.
func (r TimeRange) Valid() bool { return r.End.After(r.Start) }

// Overlap returns the length of the intersection of r and o.
func (r TimeRange) Overlap(o TimeRange) time.Duration {
	start := r.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := r.End
	if o.End.Before(end) {
		end = o.End
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// Gap returns the distance between two non-overlapping ranges, or 0 if they touch or overlap.
func (r TimeRange) Gap(o TimeRange) time.Duration {
	switch {
	case !o.Start.Before(r.End):
		return o.Start.Sub(r.End)
	case !r.Start.Before(o.End):
		return r.Start.Sub(o.End)
	}
	return 0
}

// Severity is a coarse ranking of how badly a time collides with existing commitments.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// AtLeast reports whether s is as severe as o.
func (s Severity) AtLeast(o Severity) bool { return s.rank() >= o.rank() }

// Max returns the more severe of s and o.
func (s Severity) Max(o Severity) Severity {
	if o.rank() > s.rank() {
		return o
	}
	return s
}

// ExternalEvent is an event read from a calendar provider.
type ExternalEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	CalendarID    string    `json:"calendar_id"`
	Flexible      bool      `json:"flexible"`
	AttendeeCount int       `json:"attendee_count"`
}

// Range returns the event's time range.
func (e ExternalEvent) Range() TimeRange { return TimeRange{Start: e.Start, End: e.End} }

// ConflictingEvent is an external event summary that collides with a requested range.
type ConflictingEvent struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CalendarID string    `json:"calendar_id"`
	Flexible   bool      `json:"flexible"`
	Severity   Severity  `json:"severity"`
}

// SuggestedSlot is a ranked alternative time.
type SuggestedSlot struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Score  float64   `json:"score"`
	Reason string    `json:"reason"`
}

// ConflictReport is the result of a conflict check.
type ConflictReport struct {
	Severity          Severity           `json:"severity"`
	RequestedRange    TimeRange          `json:"requested_range"`
	ConflictingEvents []ConflictingEvent `json:"conflicting_events,omitempty"`
	SuggestedSlots    []SuggestedSlot    `json:"suggested_slots,omitempty"`
	// Unreachable lists calendar ids that errored or timed out during the check.
	Unreachable []string  `json:"unreachable,omitempty"`
	Partial     bool      `json:"partial"`
	CheckedAt   time.Time `json:"checked_at"`
}

// ConflictOverride records an explicit decision to proceed despite a conflict.
type ConflictOverride struct {
	Severity         Severity  `json:"severity"`
	ConflictingIDs   []string  `json:"conflicting_ids,omitempty"`
	UnreachableAtRun []string  `json:"unreachable,omitempty"`
	At               time.Time `json:"at"`
}
