package main

import (
	"github.com/dusk-indust/jobwatch/internal/progress"
	"github.com/spf13/cobra"
)

func newLatestCmd(root *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Fetch the most recent finished analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd, root)
			if err != nil {
				return err
			}
			result, err := e.client.LatestResult(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result payload as JSON")
	return cmd
}

func newStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the analysis pipeline steps",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printSteps(cmd.OutOrStdout(), progress.NewDefaultRegistry().Snapshot())
		},
	}
}
