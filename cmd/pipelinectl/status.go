package main

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/flowkit/pipelinectl/internal/orchestrator"
	"github.com/flowkit/pipelinectl/internal/runstatus"
)

func newStatusCmd(app *appContext) *cobra.Command {
	var cacheRoot string

	cmd := &cobra.Command{
		Use:   "status [pipeline]",
		Short: "Show the last recorded run outcome for a pipeline, or all pipelines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := orchestrator.New(afero.NewOsFs(), cacheRoot, "", app.Log)
			ic := resolveIcons()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				entry, ok, err := orch.Status(args[0])
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(out, "%s %s: no recorded run\n", ic.Bullet, args[0])
					return nil
				}
				printStatusLine(out, ic, args[0], entry)
				return nil
			}

			all, err := orch.AllStatuses()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintf(out, "%s no recorded runs\n", ic.Bullet)
				return nil
			}
			for name, entry := range all {
				printStatusLine(out, ic, name, entry)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheRoot, "cache-root", ".pipeline/cache", "cache root directory")
	return cmd
}

func printStatusLine(out io.Writer, ic icons, name string, entry runstatus.Entry) {
	glyph := ic.Bullet
	switch entry.Status {
	case "completed":
		glyph = ic.OK
	case "completed_with_failures", "failed":
		glyph = ic.Fail
	}
	fmt.Fprintf(out, "%s %s: %s (last run %s, %d/%d steps failed)\n",
		glyph, name, entry.Status, entry.LastRun.Format("2006-01-02T15:04:05Z"), entry.FailedSteps, entry.StepCount)
}
