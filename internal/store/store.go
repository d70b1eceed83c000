package store

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/voicecal/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ConversationFilter specifies filters for listing conversations.
type ConversationFilter struct {
	UserID string
	State  models.ConversationState
	Limit  int
}

// Store defines the persistence interface for voicecal.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, c *models.VoiceConversation) error
	GetConversation(ctx context.Context, id string) (*models.VoiceConversation, error)
	UpdateConversation(ctx context.Context, c *models.VoiceConversation) error
	ListConversations(ctx context.Context, filter ConversationFilter) ([]*models.VoiceConversation, error)
	ListIdleConversations(ctx context.Context, now time.Time) ([]*models.VoiceConversation, error)
	PurgeConversations(ctx context.Context, before time.Time) (int64, error)

	// Executed actions and the per-user undo pointer
	RecordExecution(ctx context.Context, a *models.ExecutedAction) error
	ClaimLastAction(ctx context.Context, userID string) (*models.ExecutedAction, error)
	RestoreLastAction(ctx context.Context, userID, actionID string) error
	RecordReversal(ctx context.Context, a *models.ExecutedAction) error
	GetAction(ctx context.Context, id string) (*models.ExecutedAction, error)
	GetActionByConversation(ctx context.Context, conversationID string) (*models.ExecutedAction, error)
	ListActions(ctx context.Context, userID string, limit int) ([]*models.ExecutedAction, error)
	LastAction(ctx context.Context, userID string) (*models.ExecutedAction, error)

	// Tasks and reminders
	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id string) (*models.Item, error)
	ListItems(ctx context.Context, userID string) ([]*models.Item, error)
	DeleteItem(ctx context.Context, id string) error

	// Local calendar
	CreateCalendarEvent(ctx context.Context, e *models.CalendarEvent) error
	ListCalendarEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*models.CalendarEvent, error)
	DeleteCalendarEvent(ctx context.Context, calendarID, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
