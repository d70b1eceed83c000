package conversation

import (
	"fmt"
	"strings"

	"github.com/joescharf/voicecal/internal/models"
)

// Field names used for clarification rounds that are not candidate fields.
const (
	FieldOption   = "option"
	FieldConfirm  = "confirm"
	FieldRevision = "revision"
)

// question builds the clarification for a blocked candidate.
func question(c *models.ActionCandidate) (text, field string) {
	switch {
	case c.IsMissing(models.FieldTitle):
		switch c.Kind {
		case models.ActionKindCalendarEvent:
			return "What is the event called?", models.FieldTitle
		case models.ActionKindReminder:
			return "What should I remind you about?", models.FieldTitle
		}
		return "What should the task say?", models.FieldTitle
	case c.IsMissing(models.FieldStartTime):
		if c.DateHint != nil {
			return fmt.Sprintf("What time on %s should %q start?", c.DateHint.Format("Monday, Jan 2"), c.Title), models.FieldStartTime
		}
		return fmt.Sprintf("When should %q start?", c.Title), models.FieldStartTime
	case c.IsMissing(models.FieldRemindAt):
		if c.DateHint != nil {
			return fmt.Sprintf("What time on %s should I remind you to %s?", c.DateHint.Format("Monday, Jan 2"), lowerFirst(c.Title)), models.FieldRemindAt
		}
		return fmt.Sprintf("When should I remind you to %s?", lowerFirst(c.Title)), models.FieldRemindAt
	}
	return fmt.Sprintf("Just to check: %s. Is that right?", c.Preview()), FieldConfirm
}

func optionQuestion(options []models.ActionCandidate) (string, []string) {
	labels := make([]string, len(options))
	for i := range options {
		labels[i] = options[i].Label()
	}
	return "Which did you mean? " + numbered(labels), labels
}

func conflictQuestion(report *models.ConflictReport) (string, []string) {
	names := make([]string, 0, len(report.ConflictingEvents))
	for _, ev := range report.ConflictingEvents {
		names = append(names, fmt.Sprintf("%q (%s-%s)", ev.Title, ev.Start.Format("15:04"), ev.End.Format("15:04")))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "That overlaps with %s.", strings.Join(names, ", "))

	labels := make([]string, len(report.SuggestedSlots))
	for i, s := range report.SuggestedSlots {
		labels[i] = fmt.Sprintf("%s (%s)", s.Start.Format("Mon Jan 2 15:04"), s.Reason)
	}
	if len(labels) > 0 {
		sb.WriteString(" Free times: ")
		sb.WriteString(numbered(labels))
		sb.WriteString(". Pick one,")
	} else {
		sb.WriteString(" I found no free time nearby.")
	}
	sb.WriteString(" say \"keep it\" to book anyway, or give another time.")
	return sb.String(), labels
}

// warnings describes non-blocking findings of a report.
func warnings(report *models.ConflictReport, override *models.ConflictOverride) []string {
	if report == nil {
		return nil
	}
	var out []string
	if override != nil {
		for _, ev := range report.ConflictingEvents {
			out = append(out, fmt.Sprintf("Booking despite overlap with %q", ev.Title))
		}
	} else {
		for _, ev := range report.ConflictingEvents {
			if ev.Severity == models.SeverityLow {
				out = append(out, fmt.Sprintf("Close to %q at %s", ev.Title, ev.Start.Format("15:04")))
			}
		}
	}
	if report.Partial {
		out = append(out, "Could not check calendars: "+strings.Join(report.Unreachable, ", "))
	}
	return out
}

func numbered(items []string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%d) %s", i+1, it)
	}
	return strings.Join(parts, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
