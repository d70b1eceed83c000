package intent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/voicecal/internal/models"
)

// Monday 2026-10-19 10:00 UTC.
var monday = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func tcAt(now time.Time) TemporalContext {
	return TemporalContext{Now: now, Location: time.UTC}
}

func at(day, hour, min int) time.Time {
	return time.Date(2026, 10, day, hour, min, 0, 0, time.UTC)
}

func extractOne(t *testing.T, e Extractor, text string) *models.ActionCandidate {
	t.Helper()
	res, err := e.Extract(context.Background(), text, tcAt(monday))
	require.NoError(t, err)
	require.NotNil(t, res.Candidate, "expected a single candidate for %q", text)
	return res.Candidate
}

func TestRuleExtract_Scenarios(t *testing.T) {
	e := NewRuleExtractor(DefaultPolicy(), nil)

	t.Run("complete event", func(t *testing.T) {
		c := extractOne(t, e, "lunch with Dana Friday at noon, 1 hour")
		assert.Equal(t, models.ActionKindCalendarEvent, c.Kind)
		assert.Equal(t, "Lunch with Dana", c.Title)
		require.NotNil(t, c.Start)
		assert.Equal(t, at(23, 12, 0), *c.Start)
		r, ok := c.Range()
		require.True(t, ok)
		assert.Equal(t, at(23, 13, 0), r.End)
		assert.Equal(t, []string{"Dana"}, c.Attendees)
		assert.Empty(t, c.MissingFields)
		assert.InDelta(t, 0.9, c.Confidence, 1e-9)
		assert.False(t, c.Blocked(DefaultThreshold))
	})

	t.Run("date without time", func(t *testing.T) {
		c := extractOne(t, e, "meeting tomorrow")
		assert.Equal(t, models.ActionKindCalendarEvent, c.Kind)
		assert.Equal(t, "Meeting", c.Title)
		assert.Nil(t, c.Start)
		require.NotNil(t, c.DateHint)
		assert.Equal(t, at(20, 0, 0), *c.DateHint)
		assert.Equal(t, []string{models.FieldStartTime}, c.MissingFields)
		assert.LessOrEqual(t, c.Confidence, DefaultThreshold/2)
	})

	t.Run("reminder", func(t *testing.T) {
		c := extractOne(t, e, "remind me to call mom at 5pm")
		assert.Equal(t, models.ActionKindReminder, c.Kind)
		assert.Equal(t, "Call mom", c.Title)
		require.NotNil(t, c.Start)
		assert.Equal(t, at(19, 17, 0), *c.Start)
	})

	t.Run("reminder without time is incomplete", func(t *testing.T) {
		c := extractOne(t, e, "remind me to water the plants")
		assert.Equal(t, models.ActionKindReminder, c.Kind)
		assert.Equal(t, "Water the plants", c.Title)
		assert.Equal(t, []string{models.FieldRemindAt}, c.MissingFields)
	})

	t.Run("relative instant", func(t *testing.T) {
		c := extractOne(t, e, "remind me to stretch in 2 hours")
		require.NotNil(t, c.Start)
		assert.Equal(t, monday.Add(2*time.Hour), *c.Start)
		assert.Equal(t, "Stretch", c.Title)
	})

	t.Run("bare hour is afternoon with reduced confidence", func(t *testing.T) {
		c := extractOne(t, e, "meet Sam at 3")
		require.NotNil(t, c.Start)
		assert.Equal(t, at(19, 15, 0), *c.Start)
		assert.InDelta(t, ambiguousHourConfidence, c.Confidence, 1e-9)
		assert.True(t, c.Blocked(DefaultThreshold))
	})

	t.Run("clock time without a day is tentative", func(t *testing.T) {
		later := extractOne(t, e, "meeting at 3pm")
		require.NotNil(t, later.Start)
		assert.Equal(t, at(19, 15, 0), *later.Start)
		assert.InDelta(t, ambiguousHourConfidence, later.Confidence, 1e-9)
		assert.True(t, later.Blocked(DefaultThreshold))

		passed := extractOne(t, e, "meeting at 9am")
		require.NotNil(t, passed.Start)
		assert.Equal(t, at(20, 9, 0), *passed.Start)
		assert.True(t, passed.Blocked(DefaultThreshold))
	})

	t.Run("past start today is tentative", func(t *testing.T) {
		c := extractOne(t, e, "meeting today at 9am")
		require.NotNil(t, c.Start)
		assert.Equal(t, at(19, 9, 0), *c.Start)
		assert.InDelta(t, ambiguousHourConfidence, c.Confidence, 1e-9)
	})

	t.Run("out of range clock is dropped", func(t *testing.T) {
		c := extractOne(t, e, "meeting tomorrow at 25:00")
		assert.Equal(t, "Meeting", c.Title)
		assert.Nil(t, c.Start)
		assert.Equal(t, []string{models.FieldStartTime}, c.MissingFields)

		c = extractOne(t, e, "remind me to call mom at 13pm")
		assert.Equal(t, "Call mom", c.Title)
		assert.Nil(t, c.Start)
	})

	t.Run("named day keeps full confidence", func(t *testing.T) {
		c := extractOne(t, e, "meeting tomorrow at 9am")
		assert.InDelta(t, baseConfidence, c.Confidence, 1e-9)
	})

	t.Run("same weekday means next week", func(t *testing.T) {
		c := extractOne(t, e, "dentist appointment on Monday at 9am")
		assert.Equal(t, "Dentist appointment", c.Title)
		require.NotNil(t, c.Start)
		assert.Equal(t, at(26, 9, 0), *c.Start)
	})

	t.Run("time range", func(t *testing.T) {
		c := extractOne(t, e, "2-3pm design review tomorrow")
		assert.Equal(t, models.ActionKindCalendarEvent, c.Kind)
		assert.Equal(t, "Design review", c.Title)
		require.NotNil(t, c.Start)
		require.NotNil(t, c.End)
		assert.Equal(t, at(20, 14, 0), *c.Start)
		assert.Equal(t, at(20, 15, 0), *c.End)
		assert.Equal(t, time.Hour, c.Duration)
	})

	t.Run("weekday recurrence rolls past times to tomorrow", func(t *testing.T) {
		c := extractOne(t, e, "team standup every weekday at 9:30am")
		assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", c.Recurrence)
		assert.Equal(t, "Team standup", c.Title)
		require.NotNil(t, c.Start)
		assert.Equal(t, at(20, 9, 30), *c.Start)
		assert.True(t, c.DurationDefaulted)
		assert.Equal(t, DefaultEventDuration, c.Duration)
	})

	t.Run("weekly recurrence anchors on the weekday", func(t *testing.T) {
		c := extractOne(t, e, "yoga class every monday at 7am")
		assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", c.Recurrence)
		assert.Equal(t, "Yoga class", c.Title)
		require.NotNil(t, c.Start)
		assert.Equal(t, at(26, 7, 0), *c.Start)
	})

	t.Run("plain task", func(t *testing.T) {
		c := extractOne(t, e, "buy milk")
		assert.Equal(t, models.ActionKindTask, c.Kind)
		assert.Equal(t, "Buy milk", c.Title)
		assert.Equal(t, models.PriorityMedium, c.Priority)
		assert.Empty(t, c.MissingFields)
		assert.GreaterOrEqual(t, c.Confidence, DefaultThreshold)
	})

	t.Run("priority and explicit date", func(t *testing.T) {
		c := extractOne(t, e, "urgent: file taxes by Oct 30")
		assert.Equal(t, models.ActionKindTask, c.Kind)
		assert.Equal(t, "File taxes", c.Title)
		assert.Equal(t, models.PriorityHigh, c.Priority)
		require.NotNil(t, c.DateHint)
		assert.Equal(t, at(30, 0, 0), *c.DateHint)
	})

	t.Run("past month day rolls to next year", func(t *testing.T) {
		c := extractOne(t, e, "add a task renew passport on March 3")
		require.NotNil(t, c.DateHint)
		assert.Equal(t, time.Date(2027, 3, 3, 0, 0, 0, 0, time.UTC), *c.DateHint)
		assert.Equal(t, "Renew passport", c.Title)
	})
}

func TestRuleExtract_EmptyTranscript(t *testing.T) {
	e := NewRuleExtractor(DefaultPolicy(), nil)
	_, err := e.Extract(context.Background(), "   ", tcAt(monday))
	assert.ErrorIs(t, err, ErrExtractionFailure)
}

func TestRuleExtract_Contacts(t *testing.T) {
	dir := NewDirectory([]Contact{
		{Name: "Dana Lee", Email: "dana.lee@example.com"},
		{Name: "Dana Park"},
		{Name: "Sam Green"},
	})
	e := NewRuleExtractor(DefaultPolicy(), dir)

	t.Run("unique first name resolves", func(t *testing.T) {
		c := extractOne(t, e, "coffee with Sam tomorrow at 10am")
		assert.Equal(t, []string{"Sam Green"}, c.Attendees)
	})

	t.Run("shared first name is ambiguous", func(t *testing.T) {
		res, err := e.Extract(context.Background(), "coffee with dana tomorrow at 10am", tcAt(monday))
		require.NoError(t, err)
		require.True(t, res.IsAmbiguous())
		require.Len(t, res.Ambiguous, 2)
		assert.Equal(t, []string{"Dana Lee"}, res.Ambiguous[0].Attendees)
		assert.Equal(t, []string{"Dana Park"}, res.Ambiguous[1].Attendees)
		for _, opt := range res.Ambiguous {
			require.NotNil(t, opt.Start)
			assert.Equal(t, at(20, 10, 0), *opt.Start)
		}
	})

	t.Run("full name is exact", func(t *testing.T) {
		c := extractOne(t, e, "coffee with Dana Park tomorrow at 10am")
		assert.Equal(t, []string{"Dana Park"}, c.Attendees)
	})

	t.Run("too many interpretations", func(t *testing.T) {
		crowded := NewRuleExtractor(DefaultPolicy(), NewDirectory([]Contact{
			{Name: "Alex A"}, {Name: "Alex B"}, {Name: "Alex C"}, {Name: "Alex D"},
		}))
		_, err := crowded.Extract(context.Background(), "lunch with Alex tomorrow at noon", tcAt(monday))
		assert.ErrorIs(t, err, ErrAmbiguousInput)
	})
}

func TestRuleRefine(t *testing.T) {
	e := NewRuleExtractor(DefaultPolicy(), nil)
	ctx := context.Background()

	t.Run("time fills the hinted day", func(t *testing.T) {
		pending := extractOne(t, e, "meeting tomorrow")
		res, err := e.Refine(ctx, pending, "3pm", tcAt(monday))
		require.NoError(t, err)
		c := res.Candidate
		require.NotNil(t, c.Start)
		assert.Equal(t, at(20, 15, 0), *c.Start)
		assert.Empty(t, c.MissingFields)
		assert.True(t, c.DurationDefaulted)
		assert.False(t, c.Blocked(DefaultThreshold))
		assert.Equal(t, "Meeting", c.Title)
	})

	t.Run("lone hour is ambiguous", func(t *testing.T) {
		pending := extractOne(t, e, "meeting tomorrow")
		res, err := e.Refine(ctx, pending, "4", tcAt(monday))
		require.NoError(t, err)
		require.NotNil(t, res.Candidate.Start)
		assert.Equal(t, at(20, 16, 0), *res.Candidate.Start)
		assert.InDelta(t, ambiguousHourConfidence, res.Candidate.Confidence, 1e-9)
	})

	t.Run("date moves an existing slot", func(t *testing.T) {
		pending := extractOne(t, e, "2-3pm design review tomorrow")
		res, err := e.Refine(ctx, pending, "actually thursday", tcAt(monday))
		require.NoError(t, err)
		c := res.Candidate
		assert.Equal(t, at(22, 14, 0), *c.Start)
		assert.Equal(t, at(22, 15, 0), *c.End)
	})

	t.Run("duration replaces the default", func(t *testing.T) {
		pending := extractOne(t, e, "meeting tomorrow at 11am")
		require.True(t, pending.DurationDefaulted)
		res, err := e.Refine(ctx, pending, "make it 30 minutes", tcAt(monday))
		require.NoError(t, err)
		assert.Equal(t, 30*time.Minute, res.Candidate.Duration)
		assert.False(t, res.Candidate.DurationDefaulted)
	})

	t.Run("answer becomes the missing title", func(t *testing.T) {
		pending := &models.ActionCandidate{Kind: models.ActionKindTask}
		res, err := e.Refine(ctx, pending, "pick up the dry cleaning", tcAt(monday))
		require.NoError(t, err)
		assert.Equal(t, "Pick up the dry cleaning", res.Candidate.Title)
		assert.Empty(t, res.Candidate.MissingFields)
	})

	t.Run("unrelated answer changes nothing", func(t *testing.T) {
		pending := extractOne(t, e, "meeting tomorrow")
		res, err := e.Refine(ctx, pending, "hmm", tcAt(monday))
		require.NoError(t, err)
		assert.Nil(t, res.Candidate.Start)
		assert.Equal(t, []string{models.FieldStartTime}, res.Candidate.MissingFields)
	})

	t.Run("nil pending", func(t *testing.T) {
		_, err := e.Refine(ctx, nil, "3pm", tcAt(monday))
		assert.ErrorIs(t, err, ErrExtractionFailure)
	})
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"schedule a meeting with Bob", "Meeting with Bob"},
		{"please remind me to   take out the trash  ", "Take out the trash"},
		{"add dentist to my calendar", "Dentist"},
		{"call the bank at", "Call the bank"},
		{"  , ", ""},
		{"at", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanTitle(tt.in))
		})
	}
}

func TestAttendeeNames(t *testing.T) {
	assert.Equal(t, []string{"Dana", "Lee"}, attendeeNames("lunch with Dana and Lee"))
	assert.Equal(t, []string{"Dana Lee"}, attendeeNames("lunch with Dana Lee"))
	assert.Equal(t, []string{"sam"}, attendeeNames("sync with sam about budget"))
	assert.Nil(t, attendeeNames("sync with the team"))
}

func TestDirectoryMatch(t *testing.T) {
	d := NewDirectory([]Contact{{Name: "Dana Lee"}, {Name: "Dana Park"}, {Name: ""}})
	assert.Equal(t, 2, d.Len())
	assert.Len(t, d.Match("dana"), 2)
	assert.Len(t, d.Match("DANA LEE"), 1)
	assert.Empty(t, d.Match("sam"))

	var nilDir *Directory
	assert.Nil(t, nilDir.Match("dana"))
}
