package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"aum/internal/config"
)

func newRootCommand() *cobra.Command {
	return buildRootCommand(newCommandContext())
}

func buildRootCommand(ctx *commandContext) *cobra.Command {
	runOpts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:           "aum",
		Short:         "Unlock DRM-locked music through a remote browser",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if env := strings.TrimSpace(ctx.envFlag); env != "" {
				if err := os.Setenv(config.EnvVarEnvironment, env); err != nil {
					return err
				}
			}
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, ctx, runOpts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (also AUM_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&ctx.envFlag, "env", "", "Environment tag: development, testing, production, docker (also AUM_ENV)")
	bindRunFlags(rootCmd, runOpts)

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
