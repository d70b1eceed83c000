package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/voicecal/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Conversations ---

func TestConversationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 10, 23, 12, 0, 0, 0, time.UTC)
	c := &models.VoiceConversation{
		UserID: "u1",
		State:  models.StateClarifying,
		Pending: &models.ActionCandidate{
			Kind:          models.ActionKindCalendarEvent,
			Title:         "Lunch with Dana",
			Start:         &start,
			Duration:      time.Hour,
			Confidence:    0.4,
			MissingFields: []string{models.FieldStartTime},
		},
		ClarificationHistory: []models.ClarificationRound{
			{Question: "What time should it start?", Field: models.FieldStartTime, AskedAt: start},
		},
		ExpiresAt: start.Add(10 * time.Minute),
	}
	require.NoError(t, s.CreateConversation(ctx, c))
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.CreatedAt.IsZero())

	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateClarifying, got.State)
	require.NotNil(t, got.Pending)
	assert.Equal(t, "Lunch with Dana", got.Pending.Title)
	assert.True(t, got.Pending.Start.Equal(start))
	assert.Equal(t, []string{models.FieldStartTime}, got.Pending.MissingFields)
	require.Len(t, got.ClarificationHistory, 1)
	assert.NotNil(t, got.OpenRound())
	assert.Nil(t, got.LastReport)

	got.State = models.StateConflictResolution
	got.LastReport = &models.ConflictReport{Severity: models.SeverityHigh, Partial: true, Unreachable: []string{"work"}}
	require.NoError(t, s.UpdateConversation(ctx, got))

	got2, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateConflictResolution, got2.State)
	require.NotNil(t, got2.LastReport)
	assert.Equal(t, models.SeverityHigh, got2.LastReport.Severity)
	assert.Equal(t, []string{"work"}, got2.LastReport.Unreachable)

	list, err := s.ListConversations(ctx, ConversationFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListConversations(ctx, ConversationFilter{UserID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetConversation(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateConversation(context.Background(), &models.VoiceConversation{ID: "missing", State: models.StateIdle})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListIdleAndPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	idle := &models.VoiceConversation{UserID: "u1", State: models.StateAwaitingConfirmation, ExpiresAt: now.Add(-time.Minute)}
	fresh := &models.VoiceConversation{UserID: "u1", State: models.StateClarifying, ExpiresAt: now.Add(time.Hour)}
	done := &models.VoiceConversation{UserID: "u1", State: models.StateExecuted, ExpiresAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-48 * time.Hour)}
	for _, c := range []*models.VoiceConversation{idle, fresh, done} {
		require.NoError(t, s.CreateConversation(ctx, c))
	}

	got, err := s.ListIdleConversations(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, idle.ID, got[0].ID)

	n, err := s.PurgeConversations(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetConversation(ctx, done.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Executed actions ---

func TestRecordExecution_ReplacesPointer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.ExecutedAction{UserID: "u1", ConversationID: "c1", Kind: models.ExecutedActionCreate,
		Candidate: models.ActionCandidate{Kind: models.ActionKindTask, Title: "Buy milk"}, Target: "tasks"}
	require.NoError(t, s.RecordExecution(ctx, first))

	last, err := s.LastAction(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, last.ID)
	assert.Equal(t, "Buy milk", last.Candidate.Title)

	second := &models.ExecutedAction{UserID: "u1", ConversationID: "c2", Kind: models.ExecutedActionCreate,
		Candidate: models.ActionCandidate{Kind: models.ActionKindTask, Title: "Call mom"}, Target: "tasks"}
	require.NoError(t, s.RecordExecution(ctx, second))

	last, err = s.LastAction(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)

	byConv, err := s.GetActionByConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byConv.ID)

	actions, err := s.ListActions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, actions, 2)
}

func TestRecordExecution_DuplicateConversationRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.ExecutedAction{UserID: "u1", ConversationID: "c1", Kind: models.ExecutedActionCreate}
	require.NoError(t, s.RecordExecution(ctx, a))

	dup := &models.ExecutedAction{UserID: "u1", ConversationID: "c1", Kind: models.ExecutedActionCreate}
	assert.Error(t, s.RecordExecution(ctx, dup))

	last, err := s.LastAction(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, last.ID, "failed insert must not move the pointer")
}

func TestClaimLastAction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.ExecutedAction{UserID: "u1", ConversationID: "c1", Kind: models.ExecutedActionCreate}
	require.NoError(t, s.RecordExecution(ctx, a))

	claimed, err := s.ClaimLastAction(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, claimed.ID)

	_, err = s.LastAction(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ClaimLastAction(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	rev := &models.ExecutedAction{UserID: "u1", ConversationID: "c1", Kind: models.ExecutedActionReversal, ReversesID: a.ID}
	require.NoError(t, s.RecordReversal(ctx, rev))

	got, err := s.GetAction(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ReversesID)
	assert.Equal(t, models.ExecutedActionReversal, got.Kind)
}

func TestRestoreLastAction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.ExecutedAction{UserID: "u1", ConversationID: "c1", Kind: models.ExecutedActionCreate}
	require.NoError(t, s.RecordExecution(ctx, a))
	_, err := s.ClaimLastAction(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, s.RestoreLastAction(ctx, "u1", a.ID))
	last, err := s.LastAction(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, last.ID)

	// A newer execution keeps its pointer.
	_, err = s.ClaimLastAction(ctx, "u1")
	require.NoError(t, err)
	b := &models.ExecutedAction{UserID: "u1", ConversationID: "c2", Kind: models.ExecutedActionCreate}
	require.NoError(t, s.RecordExecution(ctx, b))
	require.NoError(t, s.RestoreLastAction(ctx, "u1", a.ID))
	last, err = s.LastAction(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, last.ID)
}

// --- Items ---

func TestItemCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	item := &models.Item{UserID: "u1", Kind: models.ItemKindReminder, Title: "Call mom", DueAt: &due}
	require.NoError(t, s.CreateItem(ctx, item))
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, models.PriorityMedium, item.Priority)

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Call mom", got.Title)
	require.NotNil(t, got.DueAt)
	assert.True(t, got.DueAt.Equal(due))

	items, err := s.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, s.DeleteItem(ctx, item.ID))
	assert.ErrorIs(t, s.DeleteItem(ctx, item.ID), ErrNotFound)
}

// --- Local calendar ---

func TestCalendarEvents_RangeQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)
	inside := &models.CalendarEvent{CalendarID: "local", UID: "a", Title: "Standup",
		Start: base.Add(9 * time.Hour), End: base.Add(9*time.Hour + 15*time.Minute)}
	outside := &models.CalendarEvent{CalendarID: "local", UID: "b", Title: "Tomorrow",
		Start: base.Add(33 * time.Hour), End: base.Add(34 * time.Hour)}
	recurring := &models.CalendarEvent{CalendarID: "local", UID: "c", Title: "Weekly",
		Start: base.Add(-7 * 24 * time.Hour), End: base.Add(-7*24*time.Hour + time.Hour), Recurrence: "FREQ=WEEKLY"}
	other := &models.CalendarEvent{CalendarID: "work", UID: "d", Title: "Other calendar",
		Start: base.Add(9 * time.Hour), End: base.Add(10 * time.Hour)}
	for _, e := range []*models.CalendarEvent{inside, outside, recurring, other} {
		require.NoError(t, s.CreateCalendarEvent(ctx, e))
	}

	got, err := s.ListCalendarEvents(ctx, "local", base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Weekly", got[0].Title)
	assert.Equal(t, "Standup", got[1].Title)

	require.NoError(t, s.DeleteCalendarEvent(ctx, "local", inside.ID))
	assert.ErrorIs(t, s.DeleteCalendarEvent(ctx, "local", inside.ID), ErrNotFound)
}

func TestPrefixed(t *testing.T) {
	assert.Equal(t, "a.id, a.name", prefixed("a.", "id, name"))
}
