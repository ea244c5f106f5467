package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"aum/internal/pipeline"
	"aum/internal/preflight"
)

type runOptions struct {
	skipPreflight bool
}

func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "Skip directory and endpoint checks before the batch")
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Unlock every locked file in the music directory (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, ctx, opts)
		},
	}
	bindRunFlags(cmd, opts)
	return cmd
}

func runBatch(cmd *cobra.Command, ctx *commandContext, opts *runOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	pipeline.LogConfig(logger, cfg, ctx.configPath, ctx.configFile)

	result, runErr := pipeline.Run(cmd.Context(), cfg, pipeline.Options{
		Logger:        logger,
		OpenSession:   ctx.openSession,
		SkipPreflight: opts.skipPreflight,
	})

	out := cmd.OutOrStdout()
	switch {
	case result == nil:
	case len(preflight.Failed(result.Preflight)) > 0:
		fmt.Fprintln(out, renderChecks(result.Preflight, shouldColorize(out)))
	case len(result.Report.Jobs) > 0:
		printSummary(out, result)
	case len(result.Files) == 0 && runErr == nil:
		fmt.Fprintln(out, "No locked files found")
	}
	return runErr
}

func printSummary(out io.Writer, result *pipeline.Result) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderJobs(result.Report.Jobs, colorize))

	succeeded, failed, timedOut := result.Report.Counts()
	fmt.Fprintf(out, "Unlocked %d of %d (%d failed, %d timed out) in %s; originals removed: %d\n",
		succeeded, len(result.Report.Jobs), failed, timedOut, formatDuration(result.Duration()), result.Cleanup.Removed)
	if kept := result.Cleanup.Kept + result.Cleanup.Failed; kept > 0 {
		fmt.Fprintf(out, "Originals kept despite a successful unlock: %d (see log)\n", kept)
	}
}
