// Package conversation drives a voice request from transcript to executed action.
package conversation

import (
	"fmt"

	"github.com/joescharf/voicecal/internal/models"
)

// Trigger is an event that moves a conversation between states.
type Trigger string

const (
	TriggerTranscript         Trigger = "transcript"
	TriggerNeedsClarification Trigger = "needs_clarification"
	TriggerAnswer             Trigger = "answer"
	TriggerTimeBounded        Trigger = "time_bounded"
	TriggerNotTimeBounded     Trigger = "not_time_bounded"
	TriggerConflict           Trigger = "conflict"
	TriggerClear              Trigger = "clear"
	TriggerSlotChosen         Trigger = "slot_chosen"
	TriggerOverride           Trigger = "override"
	TriggerRevise             Trigger = "revise"
	TriggerConfirm            Trigger = "confirm"
	TriggerCancel             Trigger = "cancel"
	TriggerExpire             Trigger = "expire"
)

var transitions = map[models.ConversationState]map[Trigger]models.ConversationState{
	models.StateIdle: {
		TriggerTranscript: models.StateParsing,
	},
	models.StateParsing: {
		TriggerNeedsClarification: models.StateClarifying,
		TriggerTimeBounded:        models.StateConflictChecking,
		TriggerNotTimeBounded:     models.StateAwaitingConfirmation,
	},
	models.StateClarifying: {
		TriggerAnswer: models.StateParsing,
	},
	models.StateConflictChecking: {
		TriggerConflict: models.StateConflictResolution,
		TriggerClear:    models.StateAwaitingConfirmation,
	},
	models.StateConflictResolution: {
		TriggerSlotChosen: models.StateConflictChecking,
		TriggerOverride:   models.StateAwaitingConfirmation,
		TriggerRevise:     models.StateParsing,
	},
	models.StateAwaitingConfirmation: {
		TriggerRevise:  models.StateParsing,
		TriggerConfirm: models.StateExecuted,
	},
}

// Next returns the state reached from `from` on trigger. It has no side effects.
func Next(from models.ConversationState, trigger Trigger) (models.ConversationState, error) {
	if !from.Terminal() {
		switch trigger {
		case TriggerCancel:
			return models.StateCancelled, nil
		case TriggerExpire:
			return models.StateExpired, nil
		}
	}
	if to, ok := transitions[from][trigger]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, from)
}

// move applies trigger to conv.
func move(conv *models.VoiceConversation, trigger Trigger) error {
	to, err := Next(conv.State, trigger)
	if err != nil {
		return err
	}
	conv.State = to
	return nil
}
