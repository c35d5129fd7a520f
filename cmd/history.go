package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/report"
)

var (
	historyLimit int
	historyID    string
	historyPrune int
)

var historyCmd = appCommand("history", "List recent runs",
	`List recent deploy, install, configure, test and start runs with their
outcome. Use --id to show every test result of one run and --prune to
keep only the newest runs.`,
	func(ctx context.Context, a *app) error {
		if a.history == nil {
			return errors.New("run history is disabled")
		}
		if historyPrune > 0 {
			n, err := a.history.PruneRuns(historyPrune)
			if err != nil {
				return err
			}
			a.console.Printf("Removed %d old run(s)\n", n)
			return nil
		}
		if historyID != "" {
			run, err := a.history.GetRun(historyID)
			if err != nil {
				return err
			}
			a.console.Printf("%s %s %s\n", run.ID, run.Kind, run.Status)
			report.Render(console.Writer(a.console), "Results", run.Results)
			return nil
		}

		runs, err := a.history.RecentRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			a.console.Println("No runs recorded yet")
			return nil
		}
		a.console.Printf("%-36s  %-9s  %-19s  %-9s  %8s  %s\n", "ID", "KIND", "STARTED", "STATUS", "DURATION", "DETAIL")
		for _, r := range runs {
			a.console.Printf("%-36s  %-9s  %-19s  %-9s  %8s  %s\n",
				r.ID, r.Kind, r.StartedAt.Local().Format(time.DateTime), r.Status,
				r.Duration().Round(time.Second), r.Detail)
		}
		return nil
	})

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyID, "id", "", "Show the results of one run")
	historyCmd.Flags().IntVar(&historyPrune, "prune", 0, "Delete all but the newest N runs")
	rootCmd.AddCommand(historyCmd)
}
