package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/flowkit/pipelinectl/internal/orchestrator"
	"github.com/flowkit/pipelinectl/internal/scheduler"
)

func newRunCmd(app *appContext) *cobra.Command {
	var cacheRoot string
	var failuresDir string

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run a pipeline from its YAML definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			orch := orchestrator.New(fs, cacheRoot, failuresDir, app.Log)

			pipeline, err := orch.LoadConfig(fs, args[0])
			if err != nil {
				return err
			}
			steps, err := orch.ParseSteps(pipeline)
			if err != nil {
				return err
			}

			cfg := orchestrator.DefaultSchedulerConfig(os.Getenv)
			if pipeline.Orchestration.MaxWorkers > 0 {
				cfg.MaxWorkers = pipeline.Orchestration.MaxWorkers
			}
			cfg.SoftFail = pipeline.Orchestration.SoftFail
			cfg.StrictOutputs = pipeline.Orchestration.StrictOutputs
			if pipeline.Orchestration.Timeout > 0 {
				cfg.FlowDeadline = time.Duration(pipeline.Orchestration.Timeout) * time.Second
			}
			cfg.RetryCount = pipeline.Orchestration.RetryCount
			if pipeline.Orchestration.RetryDelay > 0 {
				cfg.RetryDelay = time.Duration(pipeline.Orchestration.RetryDelay) * time.Second
			}

			result, err := orch.Run(context.Background(), pipeline.Name, steps, cfg)
			if err != nil {
				return err
			}

			ic := resolveIcons()
			for _, r := range result.Steps {
				glyph := ic.Bullet
				switch r.Status {
				case scheduler.StatusSucceeded:
					glyph = ic.OK
				case scheduler.StatusFailed:
					glyph = ic.Fail
				case scheduler.StatusSkipped:
					glyph = ic.Skip
				case scheduler.StatusCacheHit:
					glyph = ic.Cache
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", glyph, r.Step, r.Status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run status: %s\n", result.Status)
			if result.Status == "failed" {
				return fmt.Errorf("pipeline run failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheRoot, "cache-root", ".pipeline/cache", "cache root directory")
	cmd.Flags().StringVar(&failuresDir, "failures-dir", ".pipeline/failures", "failure snapshot directory")
	return cmd
}
