package main

import (
	"github.com/spf13/cobra"

	"github.com/flowkit/pipelinectl/internal/logger"
)

// appContext threads the shared logger through every subcommand, mirroring
// the teacher's cmd/streamy/app_context.go composition-root pattern.
type appContext struct {
	Log *logger.Logger
}

func newRootCmd(log *logger.Logger) *cobra.Command {
	app := &appContext{Log: log}

	cmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "pipelinectl runs configuration-driven data pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRunCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newDescribeCmd(app))
	cmd.AddCommand(newClearCacheCmd(app))
	cmd.AddCommand(newStatusCmd(app))

	return cmd
}
