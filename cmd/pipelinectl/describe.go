package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/flowkit/pipelinectl/internal/orchestrator"
)

func newDescribeCmd(app *appContext) *cobra.Command {
	var engine, cacheRoot string

	cmd := &cobra.Command{
		Use:   "describe <component> <method>",
		Short: "Show a registered method's metadata",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			component, method := args[0], args[1]
			orch := orchestrator.New(afero.NewOsFs(), cacheRoot, "", app.Log)
			if engine == "" {
				if candidates := orch.Registry.Candidates(component, method); len(candidates) == 1 {
					engine = candidates[0].EngineType
				}
			}
			rec, ok := orch.Describe(component, engine, method)
			if !ok {
				return fmt.Errorf("no method registered for %s::%s::%s", component, engine, method)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "full_key:    %s\n", rec.FullKey())
			fmt.Fprintf(out, "version:     %s\n", rec.Version)
			fmt.Fprintf(out, "priority:    %d\n", rec.Priority)
			fmt.Fprintf(out, "deprecated:  %t\n", rec.Deprecated)
			fmt.Fprintf(out, "tags:        %v\n", rec.Tags)
			if rec.Description != "" {
				fmt.Fprintf(out, "description: %s\n", rec.Description)
			}
			if stats, ok := orch.Registry.Stats(rec.FullKey()); ok {
				fmt.Fprintf(out, "calls:       %d (errors %d, success rate %.2f%%)\n", stats.Calls, stats.Errors, stats.SuccessRate*100)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&engine, "engine", "", "engine to describe (required unless unambiguous)")
	cmd.Flags().StringVar(&cacheRoot, "cache-root", ".pipeline/cache", "cache root directory")
	return cmd
}
