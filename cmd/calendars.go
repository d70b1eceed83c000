package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/models"
)

var (
	exportDays int
	exportOut  string
)

var calendarsCmd = &cobra.Command{
	Use:     "calendars",
	Aliases: []string{"cal"},
	Short:   "List configured calendars",
	RunE: func(cmd *cobra.Command, args []string) error {
		return calendarsListRun(cmd.Context())
	},
}

var calendarsExportCmd = &cobra.Command{
	Use:   "export [calendar-id]",
	Short: "Export a local calendar as iCalendar",
	Long:  "Write the upcoming events of a local calendar as an .ics document. Defaults to the built-in local calendar.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := calendar.DefaultLocalID
		if len(args) > 0 {
			id = args[0]
		}
		return calendarsExportRun(cmd.Context(), id)
	},
}

func init() {
	calendarsExportCmd.Flags().IntVar(&exportDays, "days", 30, "Number of days to export")
	calendarsExportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default stdout)")

	calendarsCmd.AddCommand(calendarsExportCmd)
	rootCmd.AddCommand(calendarsCmd)
}

func calendarsListRun(ctx context.Context) error {
	p, err := getPipeline(ctx)
	if err != nil {
		return err
	}
	infos := p.calendars.List()
	if jsonOut {
		return printJSON(infos)
	}

	table := ui.Table([]string{"ID", "Name", "Type", "Selected", "Writable", "Default"})
	for _, c := range infos {
		_ = table.Append([]string{
			c.ID,
			c.Name,
			c.Type,
			yesNo(c.Selected),
			yesNo(c.Writable),
			yesNo(c.Default),
		})
	}
	_ = table.Render()
	return nil
}

// icsExporter is implemented by calendars that can render themselves as iCalendar.
type icsExporter interface {
	ExportICS(ctx context.Context, w io.Writer, window models.TimeRange) error
}

func calendarsExportRun(ctx context.Context, id string) error {
	p, err := getPipeline(ctx)
	if err != nil {
		return err
	}
	r, err := p.calendars.Reader(id)
	if err != nil {
		return err
	}
	exp, ok := r.(icsExporter)
	if !ok {
		return fmt.Errorf("calendar %q cannot be exported", id)
	}

	var w io.Writer = ui.Out
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	now := time.Now().In(p.location)
	window := models.TimeRange{Start: now, End: now.AddDate(0, 0, exportDays)}
	if err := exp.ExportICS(ctx, w, window); err != nil {
		return err
	}
	if exportOut != "" {
		ui.Success("Exported %s to %s", id, exportOut)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
