package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/models"
)

// TargetTasks is the target of tasks and reminders.
const TargetTasks = "tasks"

const calendarPrefix = "calendar:"

// ErrInvalidToken is returned for undo tokens that cannot be decoded.
var ErrInvalidToken = errors.New("invalid undo token")

// CalendarTarget returns the target string of a calendar.
func CalendarTarget(id string) string { return calendarPrefix + id }

// UndoToken identifies the external object an action created.
type UndoToken struct {
	Kind       models.ActionKind `json:"kind"`
	Target     string            `json:"target"`
	ExternalID string            `json:"external_id"`
}

// Encode serializes the token.
func (t UndoToken) Encode() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode undo token: %w", err)
	}
	return string(data), nil
}

// DecodeToken parses a token produced by Encode.
func DecodeToken(s string) (UndoToken, error) {
	var t UndoToken
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return t, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if t.ExternalID == "" || t.Target == "" || !t.Kind.Valid() {
		return t, fmt.Errorf("%w: incomplete token %q", ErrInvalidToken, s)
	}
	return t, nil
}

// ItemDeleter removes tasks and reminders.
type ItemDeleter interface {
	DeleteItem(ctx context.Context, id string) error
}

// Revert deletes the external object named by token. Missing objects surface
// as calendar.ErrEventNotFound or store.ErrNotFound.
func Revert(ctx context.Context, token UndoToken, cals *calendar.Registry, items ItemDeleter) error {
	if id, ok := strings.CutPrefix(token.Target, calendarPrefix); ok {
		w, _, err := cals.Writer(id)
		if err != nil {
			return err
		}
		return w.DeleteEvent(ctx, token.ExternalID)
	}
	if token.Target == TargetTasks {
		return items.DeleteItem(ctx, token.ExternalID)
	}
	return fmt.Errorf("%w: unknown target %q", ErrInvalidToken, token.Target)
}
