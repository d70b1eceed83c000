package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/voicecal/internal/conversation"
	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/output"
)

var (
	sayConversation string
	sayConfidence   float64
	sayOption       int
	saySlot         int
	sayOverride     bool
	sayCalendar     string
)

var sayCmd = &cobra.Command{
	Use:   "say [transcript...]",
	Short: "Start or continue a conversation",
	Long: `Send what the user said. Without --conversation a new conversation starts;
with it the words answer the open question.

  voicecal say lunch with Dana friday at noon
  voicecal say -c <id> 3pm
  voicecal say -c <id> --slot 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := conversation.TurnInput{
			ConversationID: sayConversation,
			UserID:         currentUser(),
			Transcript:     strings.Join(args, " "),
			Override:       sayOverride,
			CalendarID:     sayCalendar,
		}
		if cmd.Flags().Changed("confidence") {
			in.TranscriptConfidence = &sayConfidence
		}
		if cmd.Flags().Changed("option") {
			in.Option = &sayOption
		}
		if cmd.Flags().Changed("slot") {
			in.Slot = &saySlot
		}
		return sayRun(cmd.Context(), in)
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <conversation-id>",
	Short: "Confirm and execute a pending action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return confirmRun(cmd.Context(), args[0])
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <conversation-id>",
	Short: "Abandon a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cancelRun(cmd.Context(), args[0])
	},
}

func init() {
	sayCmd.Flags().StringVarP(&sayConversation, "conversation", "c", "", "Conversation to continue")
	sayCmd.Flags().Float64Var(&sayConfidence, "confidence", 1, "Speech recognition confidence (0-1)")
	sayCmd.Flags().IntVar(&sayOption, "option", 0, "Pick an offered interpretation (1-based)")
	sayCmd.Flags().IntVar(&saySlot, "slot", 0, "Pick a suggested slot (1-based)")
	sayCmd.Flags().BoolVar(&sayOverride, "override", false, "Book despite a conflict")
	sayCmd.Flags().StringVar(&sayCalendar, "calendar", "", "Calendar to write to")

	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(cancelCmd)
}

func sayRun(ctx context.Context, in conversation.TurnInput) error {
	if in.ConversationID == "" && in.Transcript == "" {
		return fmt.Errorf("nothing to say: pass a transcript")
	}
	p, err := getPipeline(ctx)
	if err != nil {
		return err
	}
	res, err := p.engine.StartOrContinue(ctx, in)
	if err != nil {
		return userError(err)
	}
	return printTurn(res)
}

func confirmRun(ctx context.Context, id string) error {
	p, err := getPipeline(ctx)
	if err != nil {
		return err
	}
	res, err := p.engine.Confirm(ctx, id)
	if err != nil {
		return userError(err)
	}
	return printTurn(res)
}

func cancelRun(ctx context.Context, id string) error {
	p, err := getPipeline(ctx)
	if err != nil {
		return err
	}
	if err := p.engine.Cancel(ctx, id); err != nil {
		return userError(err)
	}
	if jsonOut {
		return printJSON(map[string]string{"conversation_id": id, "state": string(models.StateCancelled)})
	}
	ui.Success("Cancelled conversation %s", id)
	return nil
}

// userError pairs the spoken explanation with the underlying error.
func userError(err error) error {
	return fmt.Errorf("%s (%w)", conversation.UserMessage(err), err)
}

func printJSON(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTurn renders a turn result. A failed turn is returned as an error.
func printTurn(res *conversation.TurnResult) error {
	if jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
		if res.Kind == conversation.ResultFailed {
			return errors.New(res.Reason)
		}
		return nil
	}

	id := output.Cyan(res.ConversationID)
	switch res.Kind {
	case conversation.ResultNeedsClarification:
		ui.Info("%s", res.Question)
		ui.VerboseLog("conversation %s, answer with: voicecal say -c %s <answer>", id, res.ConversationID)
	case conversation.ResultConflictDetected:
		ui.Warning("%s", res.Question)
		if res.Report != nil {
			printConflicts(res.Report, false)
		}
		fmt.Fprintf(ui.Out, "\nPick a slot with: voicecal say -c %s --slot N (or --override)\n", res.ConversationID)
	case conversation.ResultReadyToConfirm:
		ui.Info("%s", res.Preview)
		for _, w := range res.Warnings {
			ui.Warning("%s", w)
		}
		fmt.Fprintf(ui.Out, "\nConfirm with: voicecal confirm %s\n", res.ConversationID)
	case conversation.ResultExecuted:
		ui.Success("Done. %s", res.Preview)
		for _, w := range res.Warnings {
			ui.Warning("%s", w)
		}
		if res.Action != nil {
			ui.VerboseLog("action %s on %s", res.Action.ID, res.Action.Target)
		}
	case conversation.ResultCancelled:
		ui.Info("Cancelled conversation %s", id)
	case conversation.ResultFailed:
		return errors.New(res.Reason)
	}
	return nil
}

// printConflicts lists the overlapping events and, with slots, the suggested
// free times.
func printConflicts(r *models.ConflictReport, slots bool) {
	if len(r.ConflictingEvents) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"Event", "Calendar", "Start", "End", "Severity"})
		for _, ev := range r.ConflictingEvents {
			_ = table.Append([]string{
				ev.Title,
				ev.CalendarID,
				ev.Start.Format("Mon Jan 2 15:04"),
				ev.End.Format("15:04"),
				output.SeverityColor(string(ev.Severity)),
			})
		}
		_ = table.Render()
	}
	if slots && len(r.SuggestedSlots) > 0 {
		fmt.Fprintln(ui.Out, "\nFree slots:")
		for i, s := range r.SuggestedSlots {
			fmt.Fprintf(ui.Out, "  %d. %s - %s  %s\n", i+1, s.Start.Format("Mon Jan 2 15:04"), s.End.Format("15:04"), s.Reason)
		}
	}
	if r.Partial {
		ui.Warning("Could not check: %s", strings.Join(r.Unreachable, ", "))
	}
}
