package models

import "time"

// ExecutedActionKind distinguishes committed writes from their reversals.
type ExecutedActionKind string

const (
	ExecutedActionCreate   ExecutedActionKind = "create"
	ExecutedActionReversal ExecutedActionKind = "reversal"
)

// ExecutedAction is an immutable record of a committed external write.
type ExecutedAction struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	ConversationID string             `json:"conversation_id"`
	Kind           ExecutedActionKind `json:"kind"`
	Candidate      ActionCandidate    `json:"candidate"`
	Target         string             `json:"target"`
	UndoToken      string             `json:"undo_token,omitempty"`
	ReversesID     string             `json:"reverses_id,omitempty"`
	Override       *ConflictOverride  `json:"override,omitempty"`
	Partial        bool               `json:"partial,omitempty"`
	Detail         string             `json:"detail,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ItemKind is the kind of a task store record.
type ItemKind string

const (
	ItemKindTask     ItemKind = "task"
	ItemKindReminder ItemKind = "reminder"
)

// Item is a task or reminder written to the task store.
type Item struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Kind        ItemKind   `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Recurrence  string     `json:"recurrence,omitempty"`
	Priority    Priority   `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
}
