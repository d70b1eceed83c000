package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/voicecal/internal/conflict"
	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/output"
)

var checkDuration time.Duration

var checkCmd = &cobra.Command{
	Use:   "check <start> [end]",
	Short: "Check a time range for conflicts",
	Long: `Check a time range against the selected calendars and suggest free slots.
Times are RFC 3339 or "2006-01-02 15:04" in the configured timezone. Without
<end> the range lasts --duration.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkRun(cmd.Context(), args)
	},
}

func init() {
	checkCmd.Flags().DurationVarP(&checkDuration, "duration", "d", time.Hour, "Length of the range when no end is given")
	rootCmd.AddCommand(checkCmd)
}

func checkRun(ctx context.Context, args []string) error {
	p, err := getPipeline(ctx)
	if err != nil {
		return err
	}
	start, err := parseTimeArg(args[0], p.location)
	if err != nil {
		return err
	}
	end := start.Add(checkDuration)
	if len(args) > 1 {
		if end, err = parseTimeArg(args[1], p.location); err != nil {
			return err
		}
	}

	report, err := p.detector.Check(ctx, models.TimeRange{Start: start, End: end}, currentUser(), p.calendars.Selected())
	if err != nil {
		return userError(err)
	}
	if jsonOut {
		return printJSON(report)
	}

	ui.Info("%s - %s: %s", start.Format("Mon Jan 2 15:04"), end.Format("15:04"),
		output.SeverityColor(string(report.Severity)))
	printConflicts(report, true)
	if err := conflict.PartialError(report); err != nil {
		ui.VerboseLog("%v", err)
	}
	return nil
}

var timeArgLayouts = []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

// parseTimeArg accepts RFC 3339 or a local wall-clock time in loc.
func parseTimeArg(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range timeArgLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or \"2006-01-02 15:04\"", s)
}
