package models

import "time"

// ConversationState is a state of the conversation state machine.
type ConversationState string

const (
	StateIdle                 ConversationState = "idle"
	StateParsing              ConversationState = "parsing"
	StateClarifying           ConversationState = "clarifying"
	StateConflictChecking     ConversationState = "conflict_checking"
	StateConflictResolution   ConversationState = "conflict_resolution"
	StateAwaitingConfirmation ConversationState = "awaiting_confirmation"
	StateExecuted             ConversationState = "executed"
	StateCancelled            ConversationState = "cancelled"
	StateExpired              ConversationState = "expired"
)

// Terminal reports whether no further transitions are possible from s.
func (s ConversationState) Terminal() bool {
	return s == StateExecuted || s == StateCancelled || s == StateExpired
}

// ClarificationRound is one question/answer exchange.
type ClarificationRound struct {
	Question   string     `json:"question"`
	Field      string     `json:"field,omitempty"`
	Options    []string   `json:"options,omitempty"`
	Answer     string     `json:"answer,omitempty"`
	AskedAt    time.Time  `json:"asked_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// VoiceConversation is the persisted state of one in-flight request.
type VoiceConversation struct {
	ID     string            `json:"id"`
	UserID string            `json:"user_id"`
	State  ConversationState `json:"state"`

	Pending *ActionCandidate `json:"pending,omitempty"`
	// Options holds open disambiguation choices while clarifying.
	Options              []ActionCandidate    `json:"options,omitempty"`
	ClarificationHistory []ClarificationRound `json:"clarification_history,omitempty"`
	LastReport           *ConflictReport      `json:"last_report,omitempty"`
	Override             *ConflictOverride    `json:"override,omitempty"`
	ExecutedActionID     string               `json:"executed_action_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OpenRound returns the last clarification round if it has not been answered yet.
func (c *VoiceConversation) OpenRound() *ClarificationRound {
	if n := len(c.ClarificationHistory); n > 0 && c.ClarificationHistory[n-1].AnsweredAt == nil {
		return &c.ClarificationHistory[n-1]
	}
	return nil
}

// Clone returns a deep copy so a turn can be applied without touching the stored value.
func (c *VoiceConversation) Clone() *VoiceConversation {
	out := *c
	out.Pending = c.Pending.Clone()
	if c.Options != nil {
		out.Options = make([]ActionCandidate, len(c.Options))
		for i := range c.Options {
			out.Options[i] = *c.Options[i].Clone()
		}
	}
	if c.ClarificationHistory != nil {
		out.ClarificationHistory = make([]ClarificationRound, len(c.ClarificationHistory))
		copy(out.ClarificationHistory, c.ClarificationHistory)
	}
	if c.LastReport != nil {
		r := *c.LastReport
		out.LastReport = &r
	}
	if c.Override != nil {
		o := *c.Override
		out.Override = &o
	}
	return &out
}
