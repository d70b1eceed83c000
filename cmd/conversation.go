package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/output"
	"github.com/joescharf/voicecal/internal/store"
)

var (
	convState string
	convLimit int
)

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Inspect conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return conversationListRun(cmd.Context(), currentUser())
	},
}

var conversationListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List conversations of the current user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return conversationListRun(cmd.Context(), currentUser())
	},
}

var conversationShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a conversation with its clarification history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return conversationShowRun(cmd.Context(), args[0])
	},
}

var conversationSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire idle conversations and purge old finished ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return conversationSweepRun(cmd.Context())
	},
}

func init() {
	conversationListCmd.Flags().StringVar(&convState, "state", "", "Filter by state")
	conversationListCmd.Flags().IntVarP(&convLimit, "limit", "l", 20, "Maximum number of conversations")

	conversationCmd.AddCommand(conversationListCmd)
	conversationCmd.AddCommand(conversationShowCmd)
	conversationCmd.AddCommand(conversationSweepCmd)
	rootCmd.AddCommand(conversationCmd)
}

func conversationListRun(ctx context.Context, user string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	limit := convLimit
	if limit <= 0 {
		limit = 20
	}
	convs, err := s.ListConversations(ctx, store.ConversationFilter{
		UserID: user,
		State:  models.ConversationState(convState),
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	if jsonOut {
		if convs == nil {
			convs = []*models.VoiceConversation{}
		}
		return printJSON(convs)
	}
	if len(convs) == 0 {
		ui.Info("No conversations for %s", user)
		return nil
	}

	table := ui.Table([]string{"ID", "State", "Pending", "Rounds", "Updated"})
	for _, c := range convs {
		pending := ""
		if c.Pending != nil {
			pending = c.Pending.Label()
		}
		_ = table.Append([]string{
			c.ID,
			output.StateColor(string(c.State)),
			pending,
			fmt.Sprintf("%d", len(c.ClarificationHistory)),
			c.UpdatedAt.Local().Format("Jan 2 15:04"),
		})
	}
	_ = table.Render()
	return nil
}

func conversationShowRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	c, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(c)
	}

	fmt.Fprintf(ui.Out, "Conversation: %s\n", output.Cyan(c.ID))
	fmt.Fprintf(ui.Out, "  User:     %s\n", c.UserID)
	fmt.Fprintf(ui.Out, "  State:    %s\n", output.StateColor(string(c.State)))
	if c.Pending != nil {
		fmt.Fprintf(ui.Out, "  Pending:  %s\n", c.Pending.Preview())
		fmt.Fprintf(ui.Out, "  Confidence: %.2f\n", c.Pending.Confidence)
	}
	if c.ExecutedActionID != "" {
		fmt.Fprintf(ui.Out, "  Action:   %s\n", c.ExecutedActionID)
	}
	if c.LastReport != nil {
		fmt.Fprintf(ui.Out, "  Conflict: %s\n", output.SeverityColor(string(c.LastReport.Severity)))
	}
	if c.Override != nil {
		fmt.Fprintf(ui.Out, "  Override: %s at %s\n", c.Override.Severity, c.Override.At.Local().Format("Jan 2 15:04"))
	}
	fmt.Fprintf(ui.Out, "  Created:  %s\n", c.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if !c.State.Terminal() {
		fmt.Fprintf(ui.Out, "  Expires:  %s\n", c.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}

	if len(c.ClarificationHistory) > 0 {
		fmt.Fprintln(ui.Out, "\nClarifications:")
		for i, r := range c.ClarificationHistory {
			fmt.Fprintf(ui.Out, "  %d. Q: %s\n", i+1, r.Question)
			if r.AnsweredAt != nil {
				fmt.Fprintf(ui.Out, "     A: %s\n", r.Answer)
			}
		}
	}
	return nil
}

func conversationSweepRun(ctx context.Context) error {
	p, err := getPipeline(ctx)
	if err != nil {
		return err
	}
	expired, err := p.engine.ExpireIdle(ctx)
	if err != nil {
		return err
	}
	purged, err := p.engine.PurgeFinished(ctx, viper.GetDuration("conversation.retention"))
	if err != nil {
		return err
	}
	ui.Success("Expired %d, purged %d conversations", expired, purged)
	return nil
}
