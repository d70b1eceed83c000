package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/voicecal/internal/models"
)

func TestFinalize(t *testing.T) {
	p := DefaultPolicy()

	t.Run("event start gets default duration", func(t *testing.T) {
		start := at(20, 9, 0)
		c := &models.ActionCandidate{Kind: models.ActionKindCalendarEvent, Title: " Standup ", Start: &start, Confidence: 0.9}
		p.Finalize(c)
		assert.Equal(t, "Standup", c.Title)
		assert.Equal(t, time.Hour, c.Duration)
		assert.True(t, c.DurationDefaulted)
		assert.Equal(t, models.PriorityMedium, c.Priority)
		require.NotNil(t, c.DateHint)
		assert.Equal(t, at(20, 0, 0), *c.DateHint)
		require.NotNil(t, c.End)
		assert.Equal(t, at(20, 10, 0), *c.End)
		assert.Empty(t, c.MissingFields)
	})

	t.Run("spoken duration sets the end", func(t *testing.T) {
		start := at(23, 12, 0)
		c := &models.ActionCandidate{Kind: models.ActionKindCalendarEvent, Title: "Lunch", Start: &start, Duration: 90 * time.Minute}
		p.Finalize(c)
		require.NotNil(t, c.End)
		assert.Equal(t, at(23, 13, 30), *c.End)
		assert.False(t, c.DurationDefaulted)
	})

	t.Run("tasks keep no end", func(t *testing.T) {
		due := at(23, 12, 0)
		c := &models.ActionCandidate{Kind: models.ActionKindTask, Title: "x", Start: &due}
		p.Finalize(c)
		assert.Nil(t, c.End)
	})

	t.Run("missing fields cap confidence", func(t *testing.T) {
		c := &models.ActionCandidate{Kind: models.ActionKindCalendarEvent, Confidence: 0.99}
		p.Finalize(c)
		assert.Equal(t, []string{models.FieldTitle, models.FieldStartTime}, c.MissingFields)
		assert.InDelta(t, DefaultThreshold/2, c.Confidence, 1e-9)
	})

	t.Run("confidence clamped", func(t *testing.T) {
		c := &models.ActionCandidate{Kind: models.ActionKindTask, Title: "x", Confidence: 3}
		p.Finalize(c)
		assert.Equal(t, 1.0, c.Confidence)
		c.Confidence = -1
		p.Finalize(c)
		assert.Equal(t, 0.0, c.Confidence)
	})

	t.Run("explicit end wins over duration", func(t *testing.T) {
		start, end := at(20, 9, 0), at(20, 9, 45)
		c := &models.ActionCandidate{Kind: models.ActionKindCalendarEvent, Title: "x", Start: &start, End: &end, Duration: time.Hour}
		p.Finalize(c)
		assert.Equal(t, 45*time.Minute, c.Duration)
		assert.False(t, c.DurationDefaulted)
	})
}

func TestFinish(t *testing.T) {
	p := Policy{MaxOptions: 2}
	opts := []models.ActionCandidate{{Kind: models.ActionKindTask, Title: "a"}, {Kind: models.ActionKindTask, Title: "b"}}

	res, err := p.finish(&Result{Ambiguous: opts})
	require.NoError(t, err)
	assert.True(t, res.IsAmbiguous())

	_, err = p.finish(&Result{Ambiguous: append(opts, models.ActionCandidate{Kind: models.ActionKindTask, Title: "c"})})
	assert.ErrorIs(t, err, ErrAmbiguousInput)

	res, err = p.finish(&Result{Ambiguous: opts[:1]})
	require.NoError(t, err)
	assert.False(t, res.IsAmbiguous())
	require.NotNil(t, res.Candidate)
	assert.Equal(t, "a", res.Candidate.Title)
}

func TestTemporalContextNow(t *testing.T) {
	ny := time.FixedZone("EST", -5*3600)
	now := TemporalContext{Now: monday, Location: ny}.now()
	assert.Equal(t, ny, now.Location())
	assert.True(t, now.Equal(monday))
}
