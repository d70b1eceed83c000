package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/joescharf/voicecal/internal/models"
)

// maxOccurrences bounds expansion of a single rule within one window.
const maxOccurrences = 500

// ValidateRule checks that rule is a parseable RRULE body.
func ValidateRule(rule string) error {
	if _, err := rrule.StrToROption(trimRulePrefix(rule)); err != nil {
		return fmt.Errorf("invalid recurrence %q: %w", rule, err)
	}
	return nil
}

// Occurrences returns the start times of every occurrence of a recurring event
// (first instance at start, lasting dur) that intersects window.
func Occurrences(start time.Time, dur time.Duration, rule string, window models.TimeRange) ([]time.Time, error) {
	opt, err := rrule.StrToROptionInLocation(trimRulePrefix(rule), start.Location())
	if err != nil {
		return nil, fmt.Errorf("parse recurrence %q: %w", rule, err)
	}
	opt.Dtstart = start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("build recurrence %q: %w", rule, err)
	}

	var out []time.Time
	for _, occ := range r.Between(window.Start.Add(-dur), window.End, true) {
		if !occ.Add(dur).After(window.Start) || !occ.Before(window.End) {
			continue
		}
		out = append(out, occ)
		if len(out) >= maxOccurrences {
			break
		}
	}
	return out, nil
}

// expandEvent turns a possibly recurring master event into the instances inside window.
func expandEvent(ev models.ExternalEvent, rule string, window models.TimeRange) ([]models.ExternalEvent, error) {
	if rule == "" {
		if ev.Range().Overlap(window) > 0 {
			return []models.ExternalEvent{ev}, nil
		}
		return nil, nil
	}
	dur := ev.End.Sub(ev.Start)
	starts, err := Occurrences(ev.Start, dur, rule, window)
	if err != nil {
		return nil, err
	}
	out := make([]models.ExternalEvent, 0, len(starts))
	for _, s := range starts {
		inst := ev
		inst.ID = ev.ID + "-" + s.UTC().Format("20060102T150405Z")
		inst.Start = s
		inst.End = s.Add(dur)
		out = append(out, inst)
	}
	return out, nil
}

func trimRulePrefix(rule string) string {
	rule = strings.TrimSpace(rule)
	return strings.TrimPrefix(strings.TrimPrefix(rule, "RRULE:"), "rrule:")
}
