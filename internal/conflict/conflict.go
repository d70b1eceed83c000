// Package conflict checks a requested time range against the user's calendars
// and proposes free alternatives.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/models"
)

var (
	// ErrInvalidRange is returned when a range does not end after it starts.
	ErrInvalidRange = errors.New("invalid time range")
	// ErrConflictCheckPartial marks a report built without every calendar.
	ErrConflictCheckPartial = errors.New("conflict check incomplete")
)

// Defaults for Options.
const (
	DefaultProviderTimeout  = 3 * time.Second
	DefaultAggregateTimeout = 5 * time.Second
	DefaultHorizon          = 14 * 24 * time.Hour
	DefaultMaxSuggestions   = 3
)

// Options tunes a Detector. Zero values fall back to the defaults.
type Options struct {
	ProviderTimeout  time.Duration
	AggregateTimeout time.Duration
	Horizon          time.Duration
	// Step is the slot search increment; zero uses the requested duration.
	Step           time.Duration
	MaxSuggestions int
	// MinBuffer is the minimum gap to neighbouring events; closer events rate low.
	MinBuffer time.Duration
	// WorkStart and WorkEnd restrict suggestions to a daily window, as offsets
	// from midnight. Both zero disables the restriction.
	WorkStart time.Duration
	WorkEnd   time.Duration

	// BreakerFailures consecutive failures open a calendar's breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = DefaultProviderTimeout
	}
	if o.AggregateTimeout <= 0 {
		o.AggregateTimeout = DefaultAggregateTimeout
	}
	if o.Horizon <= 0 {
		o.Horizon = DefaultHorizon
	}
	if o.MaxSuggestions <= 0 {
		o.MaxSuggestions = DefaultMaxSuggestions
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Detector is safe for concurrent use.
type Detector struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewDetector returns a detector with the given options.
func NewDetector(opts Options) *Detector {
	opts = opts.withDefaults()
	return &Detector{opts: opts, log: opts.Logger, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// Check classifies r against every source and, when it collides, suggests
// free slots. Unreachable sources make the report partial but never fail it.
func (d *Detector) Check(ctx context.Context, r models.TimeRange, userID string, sources []calendar.Reader) (*models.ConflictReport, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%s to %s: %w", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), ErrInvalidRange)
	}
	report := &models.ConflictReport{
		Severity:       models.SeverityNone,
		RequestedRange: r,
		CheckedAt:      d.opts.Now().UTC(),
	}
	if len(sources) == 0 {
		return report, nil
	}

	window := models.TimeRange{
		Start: r.Start.Add(-d.opts.MinBuffer),
		End:   r.Start.Add(d.opts.Horizon + r.Duration() + d.opts.MinBuffer),
	}
	events, unreachable := d.fetch(ctx, window, sources)
	report.Unreachable = unreachable
	report.Partial = len(unreachable) > 0

	for _, ev := range events {
		sev := classify(r, ev, d.opts.MinBuffer)
		if sev == models.SeverityNone {
			continue
		}
		report.Severity = report.Severity.Max(sev)
		report.ConflictingEvents = append(report.ConflictingEvents, models.ConflictingEvent{
			ID:         ev.ID,
			Title:      ev.Title,
			Start:      ev.Start,
			End:        ev.End,
			CalendarID: ev.CalendarID,
			Flexible:   ev.Flexible,
			Severity:   sev,
		})
	}
	if report.Severity != models.SeverityNone {
		report.SuggestedSlots = d.suggest(r, events)
	}

	d.log.Debug("conflict check",
		"user", userID,
		"start", r.Start,
		"severity", report.Severity,
		"conflicts", len(report.ConflictingEvents),
		"unreachable", len(unreachable),
	)
	return report, nil
}

// fetch queries every source concurrently. Sources that fail, time out or sit
// behind an open breaker are returned as unreachable. A failing source never
// cancels the others.
func (d *Detector) fetch(ctx context.Context, window models.TimeRange, sources []calendar.Reader) ([]models.ExternalEvent, []string) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.AggregateTimeout)
	defer cancel()

	var (
		mu          sync.Mutex
		closed      bool
		events      []models.ExternalEvent
		unreachable []string
		answered    = make(map[string]bool, len(sources))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			pctx, pcancel := context.WithTimeout(gctx, d.opts.ProviderTimeout)
			defer pcancel()
			evs, err := d.query(pctx, src, window)

			mu.Lock()
			defer mu.Unlock()
			if closed {
				return nil
			}
			answered[src.ID()] = true
			if err != nil {
				d.log.Warn("calendar unreachable", "calendar", src.ID(), "error", err)
				unreachable = append(unreachable, src.ID())
				return nil
			}
			events = append(events, evs...)
			return nil
		})
	}

	finished := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	closed = true
	for _, src := range sources {
		if !answered[src.ID()] {
			d.log.Warn("calendar timed out", "calendar", src.ID())
			unreachable = append(unreachable, src.ID())
		}
	}
	return events, unreachable
}

func (d *Detector) query(ctx context.Context, src calendar.Reader, window models.TimeRange) ([]models.ExternalEvent, error) {
	out, err := d.breaker(src.ID()).Execute(func() (interface{}, error) {
		evs, err := src.ListEvents(ctx, window)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		return evs, err
	})
	if err != nil {
		return nil, err
	}
	evs, _ := out.([]models.ExternalEvent)
	return evs, nil
}

func (d *Detector) breaker(id string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[id]; ok {
		return cb
	}
	failures := d.opts.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "calendar:" + id,
		MaxRequests: 1,
		Timeout:     d.opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Info("calendar breaker", "name", name, "from", from.String(), "to", to.String())
		},
	})
	d.breakers[id] = cb
	return cb
}

// BreakerState reports the breaker state of a calendar, "closed" if it was never queried.
func (d *Detector) BreakerState(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[id]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}

// classify rates one event against the requested range.
func classify(r models.TimeRange, ev models.ExternalEvent, minBuffer time.Duration) models.Severity {
	if ov := r.Overlap(ev.Range()); ov > 0 {
		if !ev.Flexible && (ov*2 > r.Duration() || ov == r.Duration()) {
			return models.SeverityHigh
		}
		return models.SeverityMedium
	}
	if minBuffer > 0 && ev.End.After(ev.Start) && r.Gap(ev.Range()) < minBuffer {
		return models.SeverityLow
	}
	return models.SeverityNone
}

// PartialError returns ErrConflictCheckPartial naming the unreachable calendars,
// or nil for a complete report.
func PartialError(r *models.ConflictReport) error {
	if r == nil || !r.Partial {
		return nil
	}
	return fmt.Errorf("%w: unreachable %s", ErrConflictCheckPartial, strings.Join(r.Unreachable, ", "))
}
