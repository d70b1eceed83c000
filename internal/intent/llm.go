package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/models"
)

// Completer is a single-shot language model call. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLMExtractor asks a language model for structured interpretations and
// validates what comes back.
type LLMExtractor struct {
	llm    Completer
	policy Policy
	dir    *Directory
}

// NewLLMExtractor returns an extractor backed by c. dir may be nil.
func NewLLMExtractor(c Completer, policy Policy, dir *Directory) *LLMExtractor {
	return &LLMExtractor{llm: c, policy: policy.withDefaults(), dir: dir}
}

// interpretation is the wire shape the model is asked to produce.
type interpretation struct {
	Kind            string   `json:"kind"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Start           string   `json:"start,omitempty"`
	End             string   `json:"end,omitempty"`
	Date            string   `json:"date,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Recurrence      string   `json:"recurrence,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	Attendees       []string `json:"attendees,omitempty"`
	Confidence      float64  `json:"confidence"`
}

type llmResponse struct {
	Interpretations []interpretation `json:"interpretations"`
}

const systemPrompt = `You turn short spoken requests into calendar events, tasks or reminders. Return ONLY a JSON object of the form {"interpretations": [...]} where each interpretation has these fields:
- "kind": one of "task", "calendar_event", "reminder"
- "title": short title without date or time words
- "description": optional extra detail
- "start": RFC 3339 timestamp with offset, only if the request names a time (for reminders this is when to remind, for tasks the due time)
- "end": RFC 3339 timestamp, only if the request names an end time or a duration
- "date": YYYY-MM-DD when a day is named but no time
- "duration_minutes": integer, only if a duration is stated
- "recurrence": RRULE body such as "FREQ=WEEKLY;BYDAY=MO", only for repeating requests
- "priority": one of "low", "medium", "high"
- "attendees": names of people the event is with
- "confidence": number between 0 and 1

Rules:
- Resolve relative days against the current time given below; a weekday name always means a day strictly in the future
- Never invent a date or time that the request does not mention
- Return several interpretations only when the request is genuinely ambiguous, at most %d
- Return valid JSON only, no markdown fencing or explanation`

// buildPrompt constructs the system and user prompts for an extraction or,
// when pending is set, a refinement.
func buildPrompt(text string, tc TemporalContext, pending *models.ActionCandidate, maxOptions int, contacts []Contact) (system string, user string) {
	system = fmt.Sprintf(systemPrompt, maxOptions)

	now := tc.now()
	var sb strings.Builder
	sb.WriteString("Current time: ")
	sb.WriteString(now.Format(time.RFC3339))
	sb.WriteString(" (")
	sb.WriteString(now.Format("Monday"))
	sb.WriteString(", timezone ")
	sb.WriteString(now.Location().String())
	sb.WriteString(")\n")
	if len(contacts) > 0 {
		names := make([]string, 0, len(contacts))
		for _, c := range contacts {
			names = append(names, c.Name)
		}
		sb.WriteString("Known contacts: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	if pending != nil {
		data, _ := json.Marshal(pending)
		sb.WriteString("A request is being clarified. Current interpretation:\n")
		sb.Write(data)
		sb.WriteString("\n\nMerge this answer into it and return exactly one interpretation:\n")
	} else {
		sb.WriteString("Request:\n")
	}
	sb.WriteString(text)
	user = sb.String()
	return
}

func buildRepairPrompt(user, raw string, verr error) string {
	var sb strings.Builder
	sb.WriteString(user)
	sb.WriteString("\n\nYour previous answer was rejected: ")
	sb.WriteString(verr.Error())
	sb.WriteString("\nPrevious answer:\n")
	sb.WriteString(raw)
	sb.WriteString("\n\nReply again with a single JSON object that follows the schema exactly. Timestamps must be RFC 3339 with an offset, end must be after start, confidence must be between 0 and 1.")
	return sb.String()
}

// Extract asks the model for interpretations of transcript.
func (e *LLMExtractor) Extract(ctx context.Context, transcript string, tc TemporalContext) (*Result, error) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return nil, fmt.Errorf("empty transcript: %w", ErrExtractionFailure)
	}
	system, user := buildPrompt(text, tc, nil, e.policy.MaxOptions, e.contacts())
	cands, err := e.complete(ctx, system, user, tc)
	if err != nil {
		return nil, err
	}
	if !hasTemporalCue(text, tc) {
		for i := range cands {
			dropTimes(&cands[i])
		}
	}
	dayAssumed := scanTemporal(text, tc.now()).dayAssumed()
	for i := range cands {
		if dayAssumed || (cands[i].Start != nil && cands[i].Start.Before(tc.now())) {
			cands[i].Confidence = min(cands[i].Confidence, ambiguousHourConfidence)
		}
	}
	if len(cands) == 1 {
		return e.policy.finish(&Result{Candidate: &cands[0]})
	}
	return e.policy.finish(&Result{Ambiguous: cands})
}

// Refine asks the model to merge answer into pending. Times are kept from
// pending unless the answer mentions one.
func (e *LLMExtractor) Refine(ctx context.Context, pending *models.ActionCandidate, answer string, tc TemporalContext) (*Result, error) {
	if pending == nil {
		return nil, fmt.Errorf("refine without a pending candidate: %w", ErrExtractionFailure)
	}
	system, user := buildPrompt(answer, tc, pending, 1, e.contacts())
	cands, err := e.complete(ctx, system, user, tc)
	if err != nil {
		return nil, err
	}
	c := cands[0]
	if !hasTemporalCue(answer, tc) {
		c.Start = cloneTime(pending.Start)
		c.End = cloneTime(pending.End)
		c.DateHint = cloneTime(pending.DateHint)
		c.Duration = pending.Duration
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = pending.Title
	}
	c.CalendarID = pending.CalendarID
	return e.policy.finish(&Result{Candidate: &c})
}

// complete runs the model once and, on invalid output, once more with the
// validation error quoted back.
func (e *LLMExtractor) complete(ctx context.Context, system, user string, tc TemporalContext) ([]models.ActionCandidate, error) {
	raw, err := e.llm.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}
	cands, verr := e.parse(raw, tc)
	if verr == nil {
		return cands, nil
	}

	raw, err = e.llm.Complete(ctx, system, buildRepairPrompt(user, raw, verr))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}
	cands, verr = e.parse(raw, tc)
	if verr != nil {
		return nil, fmt.Errorf("%w: invalid model output after repair: %w", ErrExtractionFailure, verr)
	}
	return cands, nil
}

func (e *LLMExtractor) parse(raw string, tc TemporalContext) ([]models.ActionCandidate, error) {
	var resp llmResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse response as JSON: %w", err)
	}
	if len(resp.Interpretations) == 0 {
		return nil, errors.New("no interpretations")
	}
	loc := tc.now().Location()
	out := make([]models.ActionCandidate, 0, len(resp.Interpretations))
	for i, in := range resp.Interpretations {
		c, err := e.convert(in, loc)
		if err != nil {
			return nil, fmt.Errorf("interpretation %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *LLMExtractor) convert(in interpretation, loc *time.Location) (models.ActionCandidate, error) {
	var c models.ActionCandidate

	kind := models.ActionKind(in.Kind)
	if in.Kind == "event" {
		kind = models.ActionKindCalendarEvent
	}
	if !kind.Valid() {
		return c, fmt.Errorf("unknown kind %q", in.Kind)
	}
	c.Kind = kind
	c.Title = strings.TrimSpace(in.Title)
	c.Description = strings.TrimSpace(in.Description)

	if in.Confidence < 0 || in.Confidence > 1 {
		return c, fmt.Errorf("confidence %v out of range", in.Confidence)
	}
	c.Confidence = in.Confidence

	if in.Start != "" {
		s, err := time.Parse(time.RFC3339, in.Start)
		if err != nil {
			return c, fmt.Errorf("start: %w", err)
		}
		s = s.In(loc)
		c.Start = &s
	}
	if in.End != "" {
		if c.Start == nil {
			return c, errors.New("end without start")
		}
		end, err := time.Parse(time.RFC3339, in.End)
		if err != nil {
			return c, fmt.Errorf("end: %w", err)
		}
		if !end.After(*c.Start) {
			return c, errors.New("end is not after start")
		}
		end = end.In(loc)
		c.End = &end
	}
	if in.Date != "" && c.Start == nil {
		d, err := time.ParseInLocation("2006-01-02", in.Date, loc)
		if err != nil {
			return c, fmt.Errorf("date: %w", err)
		}
		c.DateHint = &d
	}
	if in.DurationMinutes < 0 {
		return c, fmt.Errorf("negative duration %d", in.DurationMinutes)
	}
	if c.End == nil {
		c.Duration = time.Duration(in.DurationMinutes) * time.Minute
	}

	if in.Recurrence != "" {
		rule := strings.TrimPrefix(strings.TrimSpace(in.Recurrence), "RRULE:")
		if err := calendar.ValidateRule(rule); err != nil {
			return c, err
		}
		c.Recurrence = rule
	}

	switch p := models.Priority(strings.ToLower(in.Priority)); p {
	case "", models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
		c.Priority = p
	default:
		return c, fmt.Errorf("unknown priority %q", in.Priority)
	}

	for _, name := range in.Attendees {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if m := e.dir.Match(name); len(m) == 1 {
			name = m[0].Name
		}
		c.Attendees = append(c.Attendees, name)
	}
	return c, nil
}

func (e *LLMExtractor) contacts() []Contact {
	if e.dir == nil {
		return nil
	}
	return e.dir.contacts
}

func dropTimes(c *models.ActionCandidate) {
	c.Start, c.End, c.DateHint = nil, nil, nil
	c.Recurrence = ""
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
