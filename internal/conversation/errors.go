package conversation

import (
	"errors"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/conflict"
	"github.com/joescharf/voicecal/internal/executor"
	"github.com/joescharf/voicecal/internal/intent"
	"github.com/joescharf/voicecal/internal/store"
	"github.com/joescharf/voicecal/internal/undo"
)

var (
	// ErrConversationExpired is returned for turns on a conversation past its TTL.
	ErrConversationExpired = errors.New("conversation expired")
	// ErrConversationBusy is returned when another turn on the same conversation is running.
	ErrConversationBusy = errors.New("conversation busy")
	// ErrConversationClosed is returned for turns on executed or cancelled conversations.
	ErrConversationClosed = errors.New("conversation closed")
	// ErrInvalidTransition is returned when a trigger does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid transition")
)

var userMessages = []struct {
	err error
	msg string
}{
	{intent.ErrAmbiguousInput, "That could mean too many things. Please be more specific."},
	{intent.ErrExtractionFailure, "Sorry, I didn't catch that. Please repeat or rephrase your request."},
	{conflict.ErrInvalidRange, "That time doesn't work: the end has to be after the start. Please give another time."},
	{conflict.ErrConflictCheckPartial, "Some calendars could not be checked, so there may be conflicts I can't see."},
	{executor.ErrExecutionFailure, "I couldn't save that right now. Please try confirming again."},
	{ErrConversationExpired, "This request timed out. Please start a new one."},
	{ErrConversationClosed, "This request is already finished. Please start a new one."},
	{ErrConversationBusy, "I'm still working on your last message. Please try again in a moment."},
	{ErrInvalidTransition, "That doesn't apply right now. Please answer the current question or start a new request."},
	{undo.ErrNothingToUndo, "There is nothing to undo."},
	{undo.ErrUndoFailed, "I couldn't undo that right now. Please try again."},
	{calendar.ErrEventNotFound, "That event no longer exists."},
	{calendar.ErrReadOnly, "That calendar is read only. Please pick another calendar."},
	{store.ErrNotFound, "I couldn't find that request. Please start a new one."},
}

// UserMessage maps an error to a short instruction for the speaker.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Something went wrong. Please try again."
}

// retryable reports whether repeating the same turn may succeed.
func retryable(err error) bool {
	return !errors.Is(err, conflict.ErrInvalidRange) && !errors.Is(err, calendar.ErrReadOnly)
}
