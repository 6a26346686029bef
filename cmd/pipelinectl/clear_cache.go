package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/flowkit/pipelinectl/internal/orchestrator"
)

func newClearCacheCmd(app *appContext) *cobra.Command {
	var cacheRoot string

	cmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete the on-disk ArtifactStore cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := orchestrator.New(afero.NewOsFs(), cacheRoot, "", app.Log)
			if err := orch.ClearCache(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", cacheRoot)
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheRoot, "cache-root", ".pipeline/cache", "cache root directory")
	return cmd
}
