// Package executor commits confirmed candidates to a calendar or the task store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/store"
)

// ErrExecutionFailure is returned when the external write could not be committed.
var ErrExecutionFailure = errors.New("execution failed")

// Defaults for Options.
const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultTimeout         = 15 * time.Second
)

// Store is the persistence the executor needs.
type Store interface {
	GetActionByConversation(ctx context.Context, conversationID string) (*models.ExecutedAction, error)
	RecordExecution(ctx context.Context, a *models.ExecutedAction) error
	CreateItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, id string) error
}

// Options tunes retries and timeouts.
type Options struct {
	MaxRetries      int
	InitialInterval time.Duration
	Timeout         time.Duration
	Logger          *slog.Logger
}

// Executor performs the single external write of a conversation.
type Executor struct {
	store Store
	cals  *calendar.Registry
	opts  Options
	log   *slog.Logger
}

// New returns an executor writing events through cals and items into s.
func New(s Store, cals *calendar.Registry, opts Options) *Executor {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{store: s, cals: cals, opts: opts, log: opts.Logger}
}

// Execute commits c for conv. A conversation that already executed gets its
// existing action back. calendarID selects the target calendar for events;
// empty means the candidate's calendar or the default one.
func (e *Executor) Execute(ctx context.Context, conv *models.VoiceConversation, c *models.ActionCandidate, calendarID string) (*models.ExecutedAction, error) {
	existing, err := e.store.GetActionByConversation(ctx, conv.ID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("%w: %w", ErrExecutionFailure, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var token UndoToken
	switch c.Kind {
	case models.ActionKindCalendarEvent:
		token, err = e.createEvent(ctx, c, calendarID)
	case models.ActionKindTask:
		token, err = e.createItem(ctx, conv.UserID, models.ItemKindTask, c)
	case models.ActionKindReminder:
		token, err = e.createItem(ctx, conv.UserID, models.ItemKindReminder, c)
	default:
		return nil, fmt.Errorf("%w: unknown action kind %q", ErrExecutionFailure, c.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutionFailure, err)
	}

	encoded, err := token.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutionFailure, err)
	}
	action := &models.ExecutedAction{
		UserID:         conv.UserID,
		ConversationID: conv.ID,
		Kind:           models.ExecutedActionCreate,
		Candidate:      *c.Clone(),
		Target:         token.Target,
		UndoToken:      encoded,
		Override:       conv.Override,
	}
	if err := e.store.RecordExecution(ctx, action); err != nil {
		e.compensate(token)
		return nil, fmt.Errorf("%w: record action: %w", ErrExecutionFailure, err)
	}

	e.log.Info("action executed",
		"conversation", conv.ID,
		"action", action.ID,
		"kind", c.Kind,
		"target", action.Target,
		"override", conv.Override != nil,
	)
	return action, nil
}

func (e *Executor) createEvent(ctx context.Context, c *models.ActionCandidate, calendarID string) (UndoToken, error) {
	r, ok := c.Range()
	if !ok || !r.Valid() {
		return UndoToken{}, errors.New("event has no valid time range")
	}
	if calendarID == "" {
		calendarID = c.CalendarID
	}
	w, id, err := e.cals.Writer(calendarID)
	if err != nil {
		return UndoToken{}, err
	}

	var externalID string
	err = e.retry(ctx, func() error {
		var err error
		externalID, err = w.CreateEvent(ctx, calendar.NewEvent{
			Title:       c.Title,
			Description: c.Description,
			Start:       r.Start,
			End:         r.End,
			Recurrence:  c.Recurrence,
			Attendees:   c.Attendees,
		})
		return err
	})
	if err != nil {
		return UndoToken{}, fmt.Errorf("create event on %s: %w", id, err)
	}
	return UndoToken{Kind: c.Kind, Target: CalendarTarget(id), ExternalID: externalID}, nil
}

func (e *Executor) createItem(ctx context.Context, userID string, kind models.ItemKind, c *models.ActionCandidate) (UndoToken, error) {
	due := c.Start
	if due == nil && kind == models.ItemKindTask {
		due = c.DateHint
	}
	item := &models.Item{
		UserID:      userID,
		Kind:        kind,
		Title:       c.Title,
		Description: c.Description,
		DueAt:       due,
		Recurrence:  c.Recurrence,
		Priority:    c.Priority,
	}
	err := e.retry(ctx, func() error {
		item.ID = ""
		return e.store.CreateItem(ctx, item)
	})
	if err != nil {
		return UndoToken{}, fmt.Errorf("create %s: %w", kind, err)
	}
	return UndoToken{Kind: c.Kind, Target: TargetTasks, ExternalID: item.ID}, nil
}

// retry runs op with bounded exponential backoff. Configuration errors and
// context cancellation are not retried.
func (e *Executor) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.InitialInterval
	b.MaxElapsedTime = e.opts.Timeout

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		switch {
		case err == nil:
			return nil
		case permanent(err) || ctx.Err() != nil:
			return backoff.Permanent(err)
		}
		e.log.Warn("write failed, retrying", "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.opts.MaxRetries)), ctx))
}

func permanent(err error) bool {
	return errors.Is(err, calendar.ErrReadOnly) ||
		errors.Is(err, calendar.ErrUnknownCalendar) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// compensate removes an external object whose action could not be recorded.
func (e *Executor) compensate(token UndoToken) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.Timeout)
	defer cancel()
	if err := Revert(ctx, token, e.cals, e.store); err != nil {
		e.log.Error("orphaned external object", "target", token.Target, "id", token.ExternalID, "error", err)
	}
}
