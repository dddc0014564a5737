package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/warden/pkg/warden/config"
	"github.com/jamesainslie/warden/pkg/warden/matrix"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past matrix runs",
	Long: `Without arguments, history lists all persisted matrix runs, newest
first. With a run ID it prints that run's full per-cell results as CSV.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := matrix.OpenStore(config.DefaultHistoryPath())
	if err != nil {
		return setupErr(err)
	}
	defer store.Close()

	if len(args) == 1 {
		return showRun(cmd, store, args[0])
	}
	return listRuns(cmd, store)
}

func listRuns(cmd *cobra.Command, store *matrix.Store) error {
	runs, err := store.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no matrix runs recorded")
		return nil
	}

	for _, run := range runs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d cells, %d failed (%.0f%% pass)\n",
			run.ID, run.Time.Local().Format(time.DateTime),
			run.Summary.Total, run.Summary.Failed, run.Summary.PassRate()*100)
	}
	return nil
}

func showRun(cmd *cobra.Command, store *matrix.Store, id string) error {
	runID, err := uuid.Parse(id)
	if err != nil {
		return setupErr(fmt.Errorf("invalid run id %q: %w", id, err))
	}

	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}

	return matrix.WriteCSV(cmd.OutOrStdout(), run.Results)
}
