package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/flowkit/pipelinectl/internal/orchestrator"
)

func newListCmd(app *appContext) *cobra.Command {
	var component, engine, cacheRoot string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := orchestrator.New(afero.NewOsFs(), cacheRoot, "", app.Log)
			records := orch.List(component, engine)
			ic := resolveIcons()
			for _, r := range records {
				deprecated := ""
				if r.Deprecated {
					deprecated = " (deprecated)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s%s\n", ic.Bullet, r.FullKey(), deprecated)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&component, "component", "", "filter by component")
	cmd.Flags().StringVar(&engine, "engine", "", "filter by engine")
	cmd.Flags().StringVar(&cacheRoot, "cache-root", ".pipeline/cache", "cache root directory")
	return cmd
}
