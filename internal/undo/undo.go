// Package undo reverses a user's most recent executed action.
package undo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/executor"
	"github.com/joescharf/voicecal/internal/keylock"
	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/store"
)

var (
	// ErrNothingToUndo means the user has no reversible action.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrUndoFailed means the external object could not be removed; the action stays undoable.
	ErrUndoFailed = errors.New("undo failed")
)

// DefaultTimeout bounds the external delete.
const DefaultTimeout = 15 * time.Second

// Store is the persistence the manager needs.
type Store interface {
	ClaimLastAction(ctx context.Context, userID string) (*models.ExecutedAction, error)
	RestoreLastAction(ctx context.Context, userID, actionID string) error
	RecordReversal(ctx context.Context, a *models.ExecutedAction) error
	DeleteItem(ctx context.Context, id string) error
}

// Manager serializes undos per user.
type Manager struct {
	store   Store
	cals    *calendar.Registry
	locks   *keylock.Set
	timeout time.Duration
	log     *slog.Logger
}

// NewManager returns a manager. A nil logger uses slog.Default.
func NewManager(s Store, cals *calendar.Registry, timeout time.Duration, log *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: s, cals: cals, locks: keylock.New(), timeout: timeout, log: log}
}

// Undo deletes the object created by the user's last action and records the
// reversal. An object that is already gone still counts, with Partial set.
// The pointer is claimed before the delete, so a concurrent execution or undo
// cannot make a completed delete go unrecorded.
func (m *Manager) Undo(ctx context.Context, userID string) (*models.ExecutedAction, error) {
	release, ok := m.locks.TryLock(userID)
	if !ok {
		return nil, fmt.Errorf("undo already running for %s: %w", userID, ErrNothingToUndo)
	}
	defer release()

	last, err := m.store.ClaimLastAction(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNothingToUndo
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndoFailed, err)
	}

	token, err := executor.DecodeToken(last.UndoToken)
	if err != nil {
		return nil, m.restore(ctx, last, fmt.Errorf("%w: action %s: %w", ErrUndoFailed, last.ID, err))
	}

	dctx, cancel := context.WithTimeout(ctx, m.timeout)
	err = executor.Revert(dctx, token, m.cals, m.store)
	cancel()

	rev := &models.ExecutedAction{
		UserID:         userID,
		ConversationID: last.ConversationID,
		Kind:           models.ExecutedActionReversal,
		Candidate:      last.Candidate,
		Target:         last.Target,
		ReversesID:     last.ID,
	}
	switch {
	case err == nil:
		rev.Detail = fmt.Sprintf("removed %q from %s", last.Candidate.Title, last.Target)
	case errors.Is(err, calendar.ErrEventNotFound) || errors.Is(err, store.ErrNotFound):
		rev.Partial = true
		rev.Detail = fmt.Sprintf("%q was already gone from %s", last.Candidate.Title, last.Target)
	default:
		m.log.Warn("undo failed", "user", userID, "action", last.ID, "error", err)
		return nil, m.restore(ctx, last, fmt.Errorf("%w: %w", ErrUndoFailed, err))
	}

	// The external object is gone; the reversal must be written even if ctx ended.
	if err := m.store.RecordReversal(context.WithoutCancel(ctx), rev); err != nil {
		m.log.Error("reversal not recorded", "user", userID, "action", last.ID, "error", err)
		return nil, fmt.Errorf("%w: record reversal: %w", ErrUndoFailed, err)
	}

	m.log.Info("action undone", "user", userID, "action", last.ID, "reversal", rev.ID, "partial", rev.Partial)
	return rev, nil
}

// restore gives the claimed pointer back so the undo can be retried.
func (m *Manager) restore(ctx context.Context, last *models.ExecutedAction, cause error) error {
	if err := m.store.RestoreLastAction(context.WithoutCancel(ctx), last.UserID, last.ID); err != nil {
		m.log.Error("undo pointer not restored", "user", last.UserID, "action", last.ID, "error", err)
		return fmt.Errorf("%w (pointer lost: %w)", cause, err)
	}
	return cause
}
