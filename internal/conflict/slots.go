package conflict

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/joescharf/voicecal/internal/models"
)

const (
	proximityWeight = 0.7
	clearanceWeight = 0.3
)

// suggest walks forward from the requested start and returns the best free
// slots of the same length.
func (d *Detector) suggest(r models.TimeRange, events []models.ExternalEvent) []models.SuggestedSlot {
	dur := r.Duration()
	step := d.opts.Step
	if step <= 0 {
		step = dur
	}
	limit := r.Start.Add(d.opts.Horizon)

	var slots []models.SuggestedSlot
	for s := r.Start.Add(step); !s.After(limit); s = s.Add(step) {
		cand := models.TimeRange{Start: s, End: s.Add(dur)}
		if !d.withinWorkHours(cand) || !d.free(cand, events) {
			continue
		}
		room := clearance(cand, events, dur)
		proximity := 1 - float64(s.Sub(r.Start))/float64(d.opts.Horizon)
		slots = append(slots, models.SuggestedSlot{
			Start:  cand.Start,
			End:    cand.End,
			Score:  proximityWeight*proximity + clearanceWeight*room,
			Reason: reason(r.Start, cand.Start, room >= 1),
		})
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}
		return slots[i].Start.Before(slots[j].Start)
	})
	if len(slots) > d.opts.MaxSuggestions {
		slots = slots[:d.opts.MaxSuggestions]
	}
	return slots
}

// free reports whether cand would itself classify as none.
func (d *Detector) free(cand models.TimeRange, events []models.ExternalEvent) bool {
	for _, ev := range events {
		if classify(cand, ev, d.opts.MinBuffer) != models.SeverityNone {
			return false
		}
	}
	return true
}

func (d *Detector) withinWorkHours(cand models.TimeRange) bool {
	if d.opts.WorkStart == 0 && d.opts.WorkEnd == 0 {
		return true
	}
	day := time.Date(cand.Start.Year(), cand.Start.Month(), cand.Start.Day(), 0, 0, 0, 0, cand.Start.Location())
	open := day.Add(d.opts.WorkStart)
	closeAt := day.Add(d.opts.WorkEnd)
	return !cand.Start.Before(open) && !cand.End.After(closeAt)
}

// clearance is the distance to the nearest event, relative to the slot length
// and capped at 1.
func clearance(cand models.TimeRange, events []models.ExternalEvent, dur time.Duration) float64 {
	if dur < time.Hour {
		dur = time.Hour
	}
	nearest := dur
	for _, ev := range events {
		if g := cand.Gap(ev.Range()); g < nearest {
			nearest = g
		}
	}
	return float64(nearest) / float64(dur)
}

func reason(requested, start time.Time, isolated bool) string {
	start = start.In(requested.Location())
	reqDay := time.Date(requested.Year(), requested.Month(), requested.Day(), 0, 0, 0, 0, requested.Location())
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	var out string
	switch days := int(math.Round(day.Sub(reqDay).Hours() / 24)); days {
	case 0:
		out = fmt.Sprintf("Same day, %s later", shortDuration(start.Sub(requested)))
	case 1:
		out = "Tomorrow at " + start.Format("15:04")
	default:
		out = start.Format("Mon Jan 2") + " at " + start.Format("15:04")
	}
	if isolated {
		out += ", clear of other events"
	}
	return out
}

func shortDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%dm", h, m)
}
