package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/conflict"
	"github.com/joescharf/voicecal/internal/executor"
	"github.com/joescharf/voicecal/internal/intent"
	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/store"
	"github.com/joescharf/voicecal/internal/undo"
)

// Monday 2026-10-19 10:00 UTC.
var monday = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func at(day, hour, min int) time.Time {
	return time.Date(2026, 10, day, hour, min, 0, 0, time.UTC)
}

type fixture struct {
	store  *store.SQLiteStore
	cal    *calendar.MemoryCalendar
	engine *Engine
	now    time.Time
}

type fixtureConfig struct {
	executor        Executor
	readers         []calendar.Reader
	providerTimeout time.Duration
}

type fixtureOption func(*fixtureConfig)

func withExecutor(x Executor) fixtureOption {
	return func(c *fixtureConfig) { c.executor = x }
}

// withReaders adds read-only calendars next to the writable "work" calendar.
func withReaders(timeout time.Duration, readers ...calendar.Reader) fixtureOption {
	return func(c *fixtureConfig) {
		c.readers = readers
		c.providerTimeout = timeout
	}
}

func newFixture(t *testing.T, contacts []intent.Contact, opts ...fixtureOption) *fixture {
	t.Helper()
	var cfg fixtureConfig
	for _, o := range opts {
		o(&cfg)
	}

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	f := &fixture{store: s, cal: calendar.NewMemoryCalendar("work"), now: monday}
	clock := func() time.Time { return f.now }
	reg := calendar.Static(append([]calendar.Reader{f.cal}, cfg.readers...)...)

	deps := Deps{
		Store:     s,
		Extractor: intent.NewRuleExtractor(intent.DefaultPolicy(), intent.NewDirectory(contacts)),
		Checker:   conflict.NewDetector(conflict.Options{Now: clock, ProviderTimeout: cfg.providerTimeout}),
		Sources:   reg,
		Executor:  executor.New(s, reg, executor.Options{MaxRetries: 1, InitialInterval: time.Millisecond}),
		Undo:      undo.NewManager(s, reg, time.Second, nil),
	}
	if cfg.executor != nil {
		deps.Executor = cfg.executor
	}
	f.engine = NewEngine(deps, Config{Location: time.UTC, Now: clock})
	return f
}

func (f *fixture) say(t *testing.T, convID, text string) *TurnResult {
	t.Helper()
	res, err := f.engine.StartOrContinue(context.Background(), TurnInput{ConversationID: convID, UserID: "u1", Transcript: text})
	require.NoError(t, err)
	return res
}

func (f *fixture) stored(t *testing.T, id string) *models.VoiceConversation {
	t.Helper()
	conv, err := f.store.GetConversation(context.Background(), id)
	require.NoError(t, err)
	return conv
}

func intPtr(v int) *int { return &v }

type failingExecutor struct{ calls int }

func (x *failingExecutor) Execute(context.Context, *models.VoiceConversation, *models.ActionCandidate, string) (*models.ExecutedAction, error) {
	x.calls++
	return nil, fmt.Errorf("%w: calendar unavailable", executor.ErrExecutionFailure)
}

func TestEngine_CompleteEventFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res := f.say(t, "", "lunch with Dana Friday at noon, 1 hour")
	assert.Equal(t, ResultReadyToConfirm, res.Kind)
	assert.Equal(t, models.StateAwaitingConfirmation, res.State)
	assert.NotEmpty(t, res.ConversationID)
	assert.Contains(t, res.Preview, "Create event: Lunch with Dana")
	require.NotNil(t, res.Report)
	assert.Equal(t, models.SeverityNone, res.Report.Severity)
	assert.Empty(t, res.Report.SuggestedSlots)

	stored := f.stored(t, res.ConversationID)
	assert.Equal(t, models.StateAwaitingConfirmation, stored.State)
	assert.Equal(t, monday.Add(DefaultTTL), stored.ExpiresAt.UTC())

	done, err := f.engine.Confirm(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, ResultExecuted, done.Kind)
	assert.Equal(t, models.StateExecuted, done.State)
	require.NotNil(t, done.Action)
	assert.Equal(t, 1, f.cal.Len())

	stored = f.stored(t, res.ConversationID)
	assert.Equal(t, models.StateExecuted, stored.State)
	assert.Equal(t, done.Action.ID, stored.ExecutedActionID)

	committed := done.Action.Candidate
	require.NotNil(t, committed.Start)
	require.NotNil(t, committed.End)
	assert.Equal(t, at(23, 12, 0), committed.Start.UTC())
	assert.Equal(t, at(23, 13, 0), committed.End.UTC())
	assert.Equal(t, []string{"Dana"}, committed.Attendees)

	again, err := f.engine.Confirm(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, done.Action.ID, again.Action.ID)
	assert.Equal(t, 1, f.cal.Len())
}

// hangingReader never answers before its context ends.
type hangingReader struct{ id string }

func (h *hangingReader) ID() string { return h.id }

func (h *hangingReader) ListEvents(ctx context.Context, _ models.TimeRange) ([]models.ExternalEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_CalendarTimeoutIsReported(t *testing.T) {
	f := newFixture(t, nil, withReaders(20*time.Millisecond, &hangingReader{id: "team"}))

	res := f.say(t, "", "lunch with Dana Friday at noon, 1 hour")
	require.Equal(t, ResultReadyToConfirm, res.Kind)
	require.NotNil(t, res.Report)
	assert.True(t, res.Report.Partial)
	assert.Equal(t, []string{"team"}, res.Report.Unreachable)
	assert.Equal(t, models.SeverityNone, res.Report.Severity)
	assert.Contains(t, res.Warnings, "Could not check calendars: team")

	done, err := f.engine.Confirm(context.Background(), res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, ResultExecuted, done.Kind)
	assert.Equal(t, 1, f.cal.Len())
}

func TestEngine_ConfirmBySaying(t *testing.T) {
	f := newFixture(t, nil)

	res := f.say(t, "", "buy milk")
	require.Equal(t, ResultReadyToConfirm, res.Kind)
	assert.Nil(t, res.Report)

	done := f.say(t, res.ConversationID, "yes please")
	assert.Equal(t, ResultExecuted, done.Kind)
	require.NotNil(t, done.Action)
	assert.Equal(t, executor.TargetTasks, done.Action.Target)

	items, err := f.store.ListItems(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Buy milk", items[0].Title)
}

func TestEngine_ClarifyMissingTime(t *testing.T) {
	f := newFixture(t, nil)

	res := f.say(t, "", "meeting tomorrow")
	assert.Equal(t, ResultNeedsClarification, res.Kind)
	assert.Equal(t, models.StateClarifying, res.State)
	assert.Equal(t, models.FieldStartTime, res.Field)
	assert.Contains(t, res.Question, "Tuesday, Oct 20")

	res = f.say(t, res.ConversationID, "3pm")
	assert.Equal(t, ResultReadyToConfirm, res.Kind)
	require.NotNil(t, res.Candidate.Start)
	assert.Equal(t, at(20, 15, 0), *res.Candidate.Start)

	stored := f.stored(t, res.ConversationID)
	require.Len(t, stored.ClarificationHistory, 1)
	assert.Equal(t, "3pm", stored.ClarificationHistory[0].Answer)
	assert.NotNil(t, stored.ClarificationHistory[0].AnsweredAt)
}

func TestEngine_LowConfidenceAsksToConfirm(t *testing.T) {
	t.Run("yes accepts the reading", func(t *testing.T) {
		f := newFixture(t, nil)
		res := f.say(t, "", "meet Sam at 3")
		require.Equal(t, ResultNeedsClarification, res.Kind)
		assert.Equal(t, FieldConfirm, res.Field)
		assert.Contains(t, res.Question, "Just to check")

		res = f.say(t, res.ConversationID, "yes")
		assert.Equal(t, ResultReadyToConfirm, res.Kind)
		assert.Equal(t, at(19, 15, 0), *res.Candidate.Start)
		assert.InDelta(t, 1.0, res.Candidate.Confidence, 1e-9)
	})

	t.Run("clock time without a day is checked", func(t *testing.T) {
		f := newFixture(t, nil)
		res := f.say(t, "", "meeting at 3pm")
		require.Equal(t, ResultNeedsClarification, res.Kind)
		assert.Equal(t, FieldConfirm, res.Field)
		assert.Contains(t, res.Question, "Just to check")

		res = f.say(t, res.ConversationID, "yes")
		require.Equal(t, ResultReadyToConfirm, res.Kind)
		assert.Equal(t, at(19, 15, 0), *res.Candidate.Start)
	})

	t.Run("no asks what to change", func(t *testing.T) {
		f := newFixture(t, nil)
		res := f.say(t, "", "meet Sam at 3")
		res = f.say(t, res.ConversationID, "no")
		require.Equal(t, ResultNeedsClarification, res.Kind)
		assert.Equal(t, FieldRevision, res.Field)

		res = f.say(t, res.ConversationID, "4pm")
		assert.Equal(t, ResultReadyToConfirm, res.Kind)
		assert.Equal(t, at(19, 16, 0), *res.Candidate.Start)
	})
}

func TestEngine_ContactOptions(t *testing.T) {
	contacts := []intent.Contact{{Name: "Dana Lee"}, {Name: "Dana Park"}}

	t.Run("ordinal", func(t *testing.T) {
		f := newFixture(t, contacts)
		res := f.say(t, "", "coffee with dana tomorrow at 10am")
		require.Equal(t, ResultNeedsClarification, res.Kind)
		assert.Equal(t, FieldOption, res.Field)
		require.Len(t, res.Options, 2)

		res = f.say(t, res.ConversationID, "the second one")
		assert.Equal(t, ResultReadyToConfirm, res.Kind)
		assert.Equal(t, []string{"Dana Park"}, res.Candidate.Attendees)
		assert.Empty(t, f.stored(t, res.ConversationID).Options)
	})

	t.Run("structured pick", func(t *testing.T) {
		f := newFixture(t, contacts)
		res := f.say(t, "", "coffee with dana tomorrow at 10am")
		res, err := f.engine.StartOrContinue(context.Background(), TurnInput{ConversationID: res.ConversationID, UserID: "u1", Option: intPtr(1)})
		require.NoError(t, err)
		assert.Equal(t, []string{"Dana Lee"}, res.Candidate.Attendees)
	})

	t.Run("name fragment", func(t *testing.T) {
		f := newFixture(t, contacts)
		res := f.say(t, "", "coffee with dana tomorrow at 10am")
		res = f.say(t, res.ConversationID, "Park")
		assert.Equal(t, []string{"Dana Park"}, res.Candidate.Attendees)
	})

	t.Run("unclear pick asks again", func(t *testing.T) {
		f := newFixture(t, contacts)
		res := f.say(t, "", "coffee with dana tomorrow at 10am")
		res = f.say(t, res.ConversationID, "hmm")
		assert.Equal(t, ResultNeedsClarification, res.Kind)
		assert.Equal(t, models.StateClarifying, res.State)
		assert.Len(t, res.Options, 2)
		assert.Len(t, f.stored(t, res.ConversationID).ClarificationHistory, 2)
	})
}

func TestEngine_Conflict(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *TurnResult) {
		f := newFixture(t, nil)
		f.cal.Add(models.ExternalEvent{Title: "Standup", Start: at(23, 12, 0), End: at(23, 13, 0)})
		res := f.say(t, "", "lunch with Dana Friday at noon, 1 hour")
		require.Equal(t, ResultConflictDetected, res.Kind)
		require.Equal(t, models.StateConflictResolution, res.State)
		return f, res
	}

	t.Run("report", func(t *testing.T) {
		_, res := setup(t)
		assert.Equal(t, models.SeverityHigh, res.Report.Severity)
		require.Len(t, res.Report.ConflictingEvents, 1)
		assert.Contains(t, res.Question, `"Standup"`)
		assert.NotEmpty(t, res.Options)
		assert.Len(t, res.Options, len(res.Report.SuggestedSlots))
	})

	t.Run("slot", func(t *testing.T) {
		f, res := setup(t)
		slot := res.Report.SuggestedSlots[0]
		res, err := f.engine.StartOrContinue(context.Background(), TurnInput{ConversationID: res.ConversationID, UserID: "u1", Slot: intPtr(1)})
		require.NoError(t, err)
		assert.Equal(t, ResultReadyToConfirm, res.Kind)
		assert.Equal(t, slot.Start, *res.Candidate.Start)
		assert.Equal(t, models.SeverityNone, res.Report.Severity)
	})

	t.Run("spoken slot", func(t *testing.T) {
		f, res := setup(t)
		slot := res.Report.SuggestedSlots[0]
		res = f.say(t, res.ConversationID, "first")
		assert.Equal(t, ResultReadyToConfirm, res.Kind)
		assert.Equal(t, slot.Start, *res.Candidate.Start)
	})

	t.Run("override", func(t *testing.T) {
		f, res := setup(t)
		res = f.say(t, res.ConversationID, "book it anyway")
		require.Equal(t, ResultReadyToConfirm, res.Kind)
		require.NotEmpty(t, res.Warnings)
		assert.Contains(t, res.Warnings[0], "Standup")

		done, err := f.engine.Confirm(context.Background(), res.ConversationID)
		require.NoError(t, err)
		require.NotNil(t, done.Action.Override)
		assert.Equal(t, models.SeverityHigh, done.Action.Override.Severity)
		assert.Len(t, done.Action.Override.ConflictingIDs, 1)
		assert.Equal(t, 2, f.cal.Len())
	})

	t.Run("revise", func(t *testing.T) {
		f, res := setup(t)
		res = f.say(t, res.ConversationID, "make it 3pm")
		assert.Equal(t, ResultReadyToConfirm, res.Kind)
		assert.Equal(t, at(23, 15, 0), *res.Candidate.Start)
	})

	t.Run("no cancels", func(t *testing.T) {
		f, res := setup(t)
		res = f.say(t, res.ConversationID, "no")
		assert.Equal(t, ResultCancelled, res.Kind)
		assert.Equal(t, models.StateCancelled, res.State)
		assert.Equal(t, 1, f.cal.Len())
	})
}

func TestEngine_FailedTurns(t *testing.T) {
	ctx := context.Background()

	t.Run("empty transcript stores nothing", func(t *testing.T) {
		f := newFixture(t, nil)
		res := f.say(t, "", "   ")
		assert.Equal(t, ResultFailed, res.Kind)
		assert.Empty(t, res.ConversationID)
		assert.True(t, res.Retryable)
		assert.ErrorIs(t, res.Err, intent.ErrExtractionFailure)
		convs, err := f.engine.List(ctx, "u1", 10)
		require.NoError(t, err)
		assert.Empty(t, convs)
	})

	t.Run("low transcript confidence leaves state", func(t *testing.T) {
		f := newFixture(t, nil)
		res := f.say(t, "", "meeting tomorrow")
		conf := 0.2
		failed, err := f.engine.StartOrContinue(ctx, TurnInput{ConversationID: res.ConversationID, UserID: "u1", Transcript: "3pm", TranscriptConfidence: &conf})
		require.NoError(t, err)
		assert.Equal(t, ResultFailed, failed.Kind)
		assert.Equal(t, models.StateClarifying, failed.State)
		assert.Equal(t, UserMessage(intent.ErrExtractionFailure), failed.Reason)

		stored := f.stored(t, res.ConversationID)
		assert.Equal(t, models.StateClarifying, stored.State)
		assert.Nil(t, stored.ClarificationHistory[0].AnsweredAt)
	})

	t.Run("execution failure stays awaiting", func(t *testing.T) {
		x := &failingExecutor{}
		f := newFixture(t, nil, withExecutor(x))
		res := f.say(t, "", "buy milk")
		failed, err := f.engine.Confirm(ctx, res.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, ResultFailed, failed.Kind)
		assert.True(t, failed.Retryable)
		assert.Equal(t, models.StateAwaitingConfirmation, failed.State)
		assert.Equal(t, models.StateAwaitingConfirmation, f.stored(t, res.ConversationID).State)
		assert.Equal(t, 1, x.calls)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, nil)
		res := f.say(t, "", "buy milk")
		_, err := f.engine.StartOrContinue(ctx, TurnInput{ConversationID: res.ConversationID, UserID: "u2", Transcript: "yes"})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("missing user", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.StartOrContinue(ctx, TurnInput{Transcript: "buy milk"})
		assert.Error(t, err)
	})

	t.Run("unknown conversation id", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.StartOrContinue(ctx, TurnInput{ConversationID: "call-42", UserID: "u1", Transcript: "buy milk"})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestEngine_CallerSuppliedID(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.engine.StartOrContinue(ctx, TurnInput{ConversationID: "call-42", UserID: "u1", Transcript: "meeting tomorrow", CreateIfMissing: true})
	require.NoError(t, err)
	assert.Equal(t, "call-42", res.ConversationID)
	assert.Equal(t, ResultNeedsClarification, res.Kind)
	assert.Equal(t, models.StateClarifying, f.stored(t, "call-42").State)

	// The same id continues the existing conversation.
	res, err = f.engine.StartOrContinue(ctx, TurnInput{ConversationID: "call-42", UserID: "u1", Transcript: "3pm", CreateIfMissing: true})
	require.NoError(t, err)
	assert.Equal(t, ResultReadyToConfirm, res.Kind)
	assert.Equal(t, "call-42", res.ConversationID)
}

func TestEngine_Busy(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.say(t, "", "buy milk")

	release, ok := f.engine.locks.TryLock(res.ConversationID)
	require.True(t, ok)

	_, err := f.engine.StartOrContinue(ctx, TurnInput{ConversationID: res.ConversationID, UserID: "u1", Transcript: "yes"})
	assert.ErrorIs(t, err, ErrConversationBusy)
	_, err = f.engine.Confirm(ctx, res.ConversationID)
	assert.ErrorIs(t, err, ErrConversationBusy)
	assert.ErrorIs(t, f.engine.Cancel(ctx, res.ConversationID), ErrConversationBusy)

	release()
	done := f.say(t, res.ConversationID, "yes")
	assert.Equal(t, ResultExecuted, done.Kind)
}

func TestEngine_Expired(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.say(t, "", "meeting tomorrow")

	f.now = f.now.Add(DefaultTTL + time.Minute)
	_, err := f.engine.StartOrContinue(ctx, TurnInput{ConversationID: res.ConversationID, UserID: "u1", Transcript: "3pm"})
	assert.ErrorIs(t, err, ErrConversationExpired)
	assert.Equal(t, models.StateExpired, f.stored(t, res.ConversationID).State)

	_, err = f.engine.Confirm(ctx, res.ConversationID)
	assert.ErrorIs(t, err, ErrConversationExpired)
}

func TestEngine_Cancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.say(t, "", "meeting tomorrow")

	require.NoError(t, f.engine.Cancel(ctx, res.ConversationID))
	assert.Equal(t, models.StateCancelled, f.stored(t, res.ConversationID).State)

	assert.ErrorIs(t, f.engine.Cancel(ctx, res.ConversationID), ErrConversationClosed)
	_, err := f.engine.StartOrContinue(ctx, TurnInput{ConversationID: res.ConversationID, UserID: "u1", Transcript: "3pm"})
	assert.ErrorIs(t, err, ErrConversationClosed)
	_, err = f.engine.Confirm(ctx, res.ConversationID)
	assert.ErrorIs(t, err, ErrConversationClosed)
}

func TestEngine_SpokenCancel(t *testing.T) {
	f := newFixture(t, nil)
	res := f.say(t, "", "meeting tomorrow")
	res = f.say(t, res.ConversationID, "never mind")
	assert.Equal(t, ResultCancelled, res.Kind)
	assert.Equal(t, models.StateCancelled, res.State)
}

func TestEngine_UndoLast(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.UndoLast(ctx, "u1")
	assert.ErrorIs(t, err, undo.ErrNothingToUndo)

	res := f.say(t, "", "lunch with Dana Friday at noon, 1 hour")
	_, err = f.engine.Confirm(ctx, res.ConversationID)
	require.NoError(t, err)
	require.Equal(t, 1, f.cal.Len())

	out, err := f.engine.UndoLast(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, out.Message, "Undone")
	assert.Equal(t, models.ExecutedActionReversal, out.Reversal.Kind)
	assert.Equal(t, 0, f.cal.Len())
}

func TestEngine_ExpireIdleAndPurge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.say(t, "", "meeting tomorrow")
	b := f.say(t, "", "meeting on thursday")
	done := f.say(t, "", "buy milk")
	f.say(t, done.ConversationID, "yes")

	n, err := f.engine.ExpireIdle(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = f.now.Add(DefaultTTL + time.Minute)
	release, ok := f.engine.locks.TryLock(b.ConversationID)
	require.True(t, ok)
	n, err = f.engine.ExpireIdle(ctx)
	release()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.StateExpired, f.stored(t, a.ConversationID).State)
	assert.Equal(t, models.StateClarifying, f.stored(t, b.ConversationID).State)

	n, err = f.engine.ExpireIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.now = f.now.Add(2 * time.Hour)
	purged, err := f.engine.PurgeFinished(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)

	convs, err := f.engine.List(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, convs)
}
