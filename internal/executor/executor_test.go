package executor

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

// flakyCalendar fails the first `failures` creates.
type flakyCalendar struct {
	*calendar.MemoryCalendar
	failures int32
	calls    atomic.Int32
}

func (f *flakyCalendar) CreateEvent(ctx context.Context, ev calendar.NewEvent) (string, error) {
	if f.calls.Add(1) <= f.failures {
		return "", errors.New("503 service unavailable")
	}
	return f.MemoryCalendar.CreateEvent(ctx, ev)
}

func newConversation(t *testing.T, s *store.SQLiteStore) *models.VoiceConversation {
	t.Helper()
	conv := &models.VoiceConversation{UserID: "u1", State: models.StateAwaitingConfirmation}
	require.NoError(t, s.CreateConversation(context.Background(), conv))
	return conv
}

func eventCandidate() *models.ActionCandidate {
	start := time.Date(2026, 10, 23, 12, 0, 0, 0, time.UTC)
	return &models.ActionCandidate{
		Kind:       models.ActionKindCalendarEvent,
		Title:      "Lunch with Dana",
		Start:      &start,
		Duration:   time.Hour,
		Priority:   models.PriorityMedium,
		Attendees:  []string{"Dana"},
		Confidence: 0.9,
	}
}

func fastOptions(retries int) Options {
	return Options{MaxRetries: retries, InitialInterval: time.Millisecond, Timeout: 5 * time.Second}
}

func TestExecute_CalendarEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cal := &flakyCalendar{MemoryCalendar: calendar.NewMemoryCalendar("work")}
	e := New(s, calendar.Static(cal), fastOptions(3))
	conv := newConversation(t, s)

	action, err := e.Execute(ctx, conv, eventCandidate(), "")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutedActionCreate, action.Kind)
	assert.Equal(t, "calendar:work", action.Target)
	assert.Equal(t, conv.ID, action.ConversationID)
	assert.Equal(t, 1, cal.Len())

	token, err := DecodeToken(action.UndoToken)
	require.NoError(t, err)
	assert.Equal(t, models.ActionKindCalendarEvent, token.Kind)
	assert.NotEmpty(t, token.ExternalID)

	last, err := s.LastAction(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, action.ID, last.ID)

	t.Run("idempotent per conversation", func(t *testing.T) {
		again, err := e.Execute(ctx, conv, eventCandidate(), "")
		require.NoError(t, err)
		assert.Equal(t, action.ID, again.ID)
		assert.Equal(t, 1, cal.Len())
	})
}

func TestExecute_RetriesTransientFailures(t *testing.T) {
	s := newTestStore(t)
	cal := &flakyCalendar{MemoryCalendar: calendar.NewMemoryCalendar("work"), failures: 2}
	e := New(s, calendar.Static(cal), fastOptions(3))

	_, err := e.Execute(context.Background(), newConversation(t, s), eventCandidate(), "work")
	require.NoError(t, err)
	assert.Equal(t, int32(3), cal.calls.Load())
	assert.Equal(t, 1, cal.Len())
}

func TestExecute_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cal := &flakyCalendar{MemoryCalendar: calendar.NewMemoryCalendar("work"), failures: 100}
	e := New(s, calendar.Static(cal), fastOptions(2))
	conv := newConversation(t, s)

	_, err := e.Execute(ctx, conv, eventCandidate(), "")
	assert.ErrorIs(t, err, ErrExecutionFailure)
	assert.Equal(t, int32(3), cal.calls.Load())

	_, err = s.GetActionByConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.LastAction(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExecute_ReadOnlyCalendarNotRetried(t *testing.T) {
	s := newTestStore(t)
	writable := &flakyCalendar{MemoryCalendar: calendar.NewMemoryCalendar("work")}
	readOnly := &flakyCalendar{MemoryCalendar: calendar.NewMemoryCalendar("holidays")}
	reg := calendar.Static(writable)
	require.NoError(t, reg.Register(calendar.Info{ID: "holidays", Selected: true, Writable: false}, readOnly))
	e := New(s, reg, fastOptions(3))

	_, err := e.Execute(context.Background(), newConversation(t, s), eventCandidate(), "holidays")
	assert.ErrorIs(t, err, ErrExecutionFailure)
	assert.ErrorIs(t, err, calendar.ErrReadOnly)
	assert.Equal(t, int32(0), readOnly.calls.Load())
}

func TestExecute_TaskAndReminder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := New(s, calendar.Static(), fastOptions(1))

	day := time.Date(2026, 10, 30, 0, 0, 0, 0, time.UTC)
	task := &models.ActionCandidate{Kind: models.ActionKindTask, Title: "File taxes", DateHint: &day, Priority: models.PriorityHigh}
	action, err := e.Execute(ctx, newConversation(t, s), task, "")
	require.NoError(t, err)
	assert.Equal(t, TargetTasks, action.Target)

	token, err := DecodeToken(action.UndoToken)
	require.NoError(t, err)
	item, err := s.GetItem(ctx, token.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemKindTask, item.Kind)
	assert.Equal(t, "File taxes", item.Title)
	require.NotNil(t, item.DueAt)
	assert.True(t, item.DueAt.Equal(day))
	assert.Equal(t, models.PriorityHigh, item.Priority)

	at := time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC)
	reminder := &models.ActionCandidate{Kind: models.ActionKindReminder, Title: "Call mom", Start: &at}
	action, err = e.Execute(ctx, newConversation(t, s), reminder, "")
	require.NoError(t, err)
	token, err = DecodeToken(action.UndoToken)
	require.NoError(t, err)
	item, err = s.GetItem(ctx, token.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemKindReminder, item.Kind)

	items, err := s.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestExecute_UnknownKind(t *testing.T) {
	s := newTestStore(t)
	e := New(s, calendar.Static(), fastOptions(1))
	_, err := e.Execute(context.Background(), newConversation(t, s), &models.ActionCandidate{Kind: "meeting", Title: "x"}, "")
	assert.ErrorIs(t, err, ErrExecutionFailure)
}

func TestExecute_StoresOverride(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := New(s, calendar.Static(calendar.NewMemoryCalendar("work")), fastOptions(1))

	conv := newConversation(t, s)
	conv.Override = &models.ConflictOverride{Severity: models.SeverityHigh, ConflictingIDs: []string{"work-1"}, At: time.Now().UTC()}
	action, err := e.Execute(ctx, conv, eventCandidate(), "")
	require.NoError(t, err)

	stored, err := s.GetAction(ctx, action.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Override)
	assert.Equal(t, models.SeverityHigh, stored.Override.Severity)
	assert.Equal(t, []string{"work-1"}, stored.Override.ConflictingIDs)
}

func TestExecute_EventWithoutRange(t *testing.T) {
	s := newTestStore(t)
	e := New(s, calendar.Static(calendar.NewMemoryCalendar("work")), fastOptions(1))
	_, err := e.Execute(context.Background(), newConversation(t, s), &models.ActionCandidate{Kind: models.ActionKindCalendarEvent, Title: "x"}, "")
	assert.ErrorIs(t, err, ErrExecutionFailure)
}

func TestTokenRoundTripAndRevert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cal := calendar.NewMemoryCalendar("work")
	reg := calendar.Static(cal)

	id, err := cal.CreateEvent(ctx, calendar.NewEvent{Title: "x", Start: time.Now(), End: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	token := UndoToken{Kind: models.ActionKindCalendarEvent, Target: CalendarTarget("work"), ExternalID: id}
	encoded, err := token.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"calendar_event","target":"calendar:work","external_id":"`+id+`"}`, encoded)

	decoded, err := DecodeToken(encoded)
	require.NoError(t, err)
	require.NoError(t, Revert(ctx, decoded, reg, s))
	assert.Equal(t, 0, cal.Len())

	err = Revert(ctx, decoded, reg, s)
	assert.ErrorIs(t, err, calendar.ErrEventNotFound)

	err = Revert(ctx, UndoToken{Kind: models.ActionKindTask, Target: TargetTasks, ExternalID: "missing"}, reg, s)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = DecodeToken("{not json")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = DecodeToken(`{"kind":"task","target":"tasks"}`)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
