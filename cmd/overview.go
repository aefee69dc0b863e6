package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/dayplanner/internal/model"
)

// dayOverviewer is the part of the aggregator the overview command needs.
type dayOverviewer interface {
	GetDayOverview(ctx context.Context, date, timezone string, taskListIDs []string) (model.DayView, error)
}

func newOverviewCmd() *cobra.Command {
	var (
		timezone  string
		taskLists string
	)

	cmd := &cobra.Command{
		Use:   "overview [date]",
		Short: "Print the overview of a day",
		Long: `Print the overview of a day as JSON: events, conflicts, free windows,
due, overdue and unscheduled tasks.

The date is YYYY-MM-DD, "today" or "tomorrow" and defaults to today in the
configured timezone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if timezone == "" {
				timezone = cfg.Timezone
			}
			date := ""
			if len(args) == 1 {
				date = args[0]
			}
			return runOverview(cmd.Context(), cmd.OutOrStdout(), a.aggregator, date, timezone,
				parseCommaSeparatedList(taskLists), time.Now())
		},
	}

	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for the day (default: the configured timezone)")
	cmd.Flags().StringVar(&taskLists, "task-lists", "", "Comma-separated task list IDs (default: the configured task lists)")

	return cmd
}

func runOverview(ctx context.Context, out io.Writer, agg dayOverviewer, date, timezone string, taskListIDs []string, now time.Time) error {
	resolved, err := resolveDate(date, timezone, now)
	if err != nil {
		return err
	}

	view, err := agg.GetDayOverview(ctx, resolved, timezone, taskListIDs)
	if err != nil {
		return fmt.Errorf("failed to build day overview: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

// resolveDate turns "", "today" and "tomorrow" into a date in timezone.
// Anything else is passed through for the aggregator to validate.
func resolveDate(date, timezone string, now time.Time) (string, error) {
	switch date {
	case "", "today", "tomorrow":
	default:
		return date, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	day := now.In(loc)
	if date == "tomorrow" {
		day = day.AddDate(0, 0, 1)
	}
	return day.Format(time.DateOnly), nil
}
