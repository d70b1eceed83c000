package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/output"
)

var actionsLimit int

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Reverse the most recent action",
	Long:  "Reverse the most recent executed action of the current user. Only the latest action can be undone.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return undoRun(cmd.Context(), currentUser())
	},
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List executed actions and reversals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return actionsRun(cmd.Context(), currentUser())
	},
}

func init() {
	actionsCmd.Flags().IntVarP(&actionsLimit, "limit", "l", 20, "Maximum number of actions")

	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(actionsCmd)
}

func undoRun(ctx context.Context, user string) error {
	p, err := getPipeline(ctx)
	if err != nil {
		return err
	}
	res, err := p.engine.UndoLast(ctx, user)
	if err != nil {
		return userError(err)
	}
	if jsonOut {
		return printJSON(res)
	}
	if res.Reversal.Partial {
		ui.Warning("%s", res.Message)
	} else {
		ui.Success("%s", res.Message)
	}
	return nil
}

func actionsRun(ctx context.Context, user string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	actions, err := s.ListActions(ctx, user, actionsLimit)
	if err != nil {
		return err
	}
	if jsonOut {
		if actions == nil {
			actions = []*models.ExecutedAction{}
		}
		return printJSON(actions)
	}
	if len(actions) == 0 {
		ui.Info("No actions for %s", user)
		return nil
	}

	table := ui.Table([]string{"ID", "Kind", "Action", "Target", "Conversation", "When"})
	for _, a := range actions {
		kind := output.Green(string(a.Kind))
		label := a.Candidate.Label()
		if a.Kind == models.ExecutedActionReversal {
			kind = output.Yellow(string(a.Kind))
			label = fmt.Sprintf("undo %s", shortID(a.ReversesID))
		}
		_ = table.Append([]string{
			shortID(a.ID),
			kind,
			label,
			a.Target,
			shortID(a.ConversationID),
			a.CreatedAt.Local().Format("Jan 2 15:04"),
		})
	}
	_ = table.Render()
	return nil
}

// shortID trims a ULID for table display.
func shortID(id string) string {
	if len(id) > 10 {
		return id[len(id)-10:]
	}
	return id
}
