package models

import "time"

// CalendarEvent is an event stored in the built-in local calendar.
type CalendarEvent struct {
	ID          string
	CalendarID  string
	UID         string // iCalendar UID
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Recurrence  string
	Attendees   []string
	Flexible    bool
	CreatedAt   time.Time
}
