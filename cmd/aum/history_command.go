package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aum/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded batches, or the jobs of one batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if id := strings.TrimSpace(runID); id != "" {
				run, err := store.GetRun(cmd.Context(), id)
				if errors.Is(err, history.ErrNotFound) {
					return fmt.Errorf("run %s not found", id)
				}
				if err != nil {
					return err
				}
				jobs, err := store.Jobs(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s (%s, %s)\n", run.ID, run.Status, dash(run.Environment))
				fmt.Fprintf(out, "Started:  %s\nFinished: %s\n", formatTimestamp(run.StartedAt), formatTimestamp(run.FinishedAt))
				if run.Error != "" {
					fmt.Fprintf(out, "Error:    %s\n", run.Error)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				fmt.Fprintln(out, renderRunJobs(jobs, colorize))
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderRuns(runs, colorize))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of runs to list (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show the jobs of one run")
	return cmd
}
