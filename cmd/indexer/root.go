package main

import (
	"github.com/spf13/cobra"

	"github.com/kirillkom/rpps-atas-assistant/internal/config"
)

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Build and inspect the RPPS minutes index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBuildCmd(cfg), newReportCmd(cfg), newAskCmd(cfg))
	return root
}
