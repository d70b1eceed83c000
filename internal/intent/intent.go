// Package intent turns transcripts into structured action candidates.
package intent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/joescharf/voicecal/internal/models"
)

var (
	// ErrExtractionFailure means the transcript could not be turned into a usable candidate.
	ErrExtractionFailure = errors.New("extraction failed")
	// ErrAmbiguousInput means there were more plausible interpretations than can be offered.
	ErrAmbiguousInput = errors.New("ambiguous input")
)

// Defaults for Policy.
const (
	DefaultThreshold     = 0.7
	DefaultMaxOptions    = 3
	DefaultEventDuration = time.Hour
)

const (
	baseConfidence          = 0.9
	ambiguousHourConfidence = 0.6
)

// TemporalContext anchors relative expressions like "tomorrow".
type TemporalContext struct {
	Now      time.Time
	Location *time.Location
}

func (tc TemporalContext) now() time.Time {
	now := tc.Now
	if now.IsZero() {
		now = time.Now()
	}
	if tc.Location != nil {
		now = now.In(tc.Location)
	}
	return now
}

// Result is either a single candidate or a set of discrete interpretations.
type Result struct {
	Candidate *models.ActionCandidate
	Ambiguous []models.ActionCandidate
}

// IsAmbiguous reports whether the caller has to choose between interpretations.
func (r *Result) IsAmbiguous() bool { return len(r.Ambiguous) > 1 }

// Extractor produces candidates from transcripts and merges clarification answers.
type Extractor interface {
	Extract(ctx context.Context, transcript string, tc TemporalContext) (*Result, error)
	Refine(ctx context.Context, pending *models.ActionCandidate, answer string, tc TemporalContext) (*Result, error)
}

// Policy holds the confidence and completion rules shared by every extractor.
type Policy struct {
	Threshold       float64
	MaxOptions      int
	DefaultDuration time.Duration
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, MaxOptions: DefaultMaxOptions, DefaultDuration: DefaultEventDuration}
}

func (p Policy) withDefaults() Policy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.MaxOptions <= 0 {
		p.MaxOptions = DefaultMaxOptions
	}
	if p.DefaultDuration <= 0 {
		p.DefaultDuration = DefaultEventDuration
	}
	return p
}

// Finalize fills defaults, resolves the end of timed events, recomputes missing
// fields and caps the confidence of incomplete candidates below the threshold.
func (p Policy) Finalize(c *models.ActionCandidate) {
	p = p.withDefaults()

	c.Title = strings.TrimSpace(c.Title)
	if c.Priority == "" {
		c.Priority = models.PriorityMedium
	}
	if c.Kind == models.ActionKindCalendarEvent && c.Start != nil && c.End == nil && c.Duration <= 0 {
		c.Duration = p.DefaultDuration
		c.DurationDefaulted = true
	}
	if c.Start != nil && c.End != nil {
		c.Duration = c.End.Sub(*c.Start)
	}
	if c.Kind == models.ActionKindCalendarEvent && c.Start != nil && c.End == nil && c.Duration > 0 {
		end := c.Start.Add(c.Duration)
		c.End = &end
	}
	if c.Start != nil {
		day := time.Date(c.Start.Year(), c.Start.Month(), c.Start.Day(), 0, 0, 0, 0, c.Start.Location())
		c.DateHint = &day
	}

	c.MissingFields = nil
	for _, f := range c.RequiredFields() {
		if !c.HasField(f) {
			c.MissingFields = append(c.MissingFields, f)
		}
	}

	switch {
	case c.Confidence < 0:
		c.Confidence = 0
	case c.Confidence > 1:
		c.Confidence = 1
	}
	if len(c.MissingFields) > 0 && c.Confidence > p.Threshold/2 {
		c.Confidence = p.Threshold / 2
	}
}

// finish finalizes every candidate of r and enforces MaxOptions.
func (p Policy) finish(r *Result) (*Result, error) {
	p = p.withDefaults()
	if r.Candidate != nil {
		p.Finalize(r.Candidate)
	}
	if len(r.Ambiguous) > p.MaxOptions {
		return nil, ErrAmbiguousInput
	}
	for i := range r.Ambiguous {
		p.Finalize(&r.Ambiguous[i])
	}
	if len(r.Ambiguous) == 1 {
		r.Candidate = &r.Ambiguous[0]
		r.Ambiguous = nil
	}
	return r, nil
}
