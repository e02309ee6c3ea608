package main

import (
	"github.com/dusk-indust/jobwatch/internal/mcptools"
	"github.com/spf13/cobra"
)

func newServeMCPCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp",
		Short: "Run as an MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd, root)
			if err != nil {
				return err
			}
			svc := mcptools.NewAnalysisService(e.tracker(e.policy()), e.client)
			e.logger.Info().Str("api", e.cfg.APIBaseURL).Msg("serving MCP on stdio")
			return mcptools.RunAnalysisMCPServerStdio(cmd.Context(), mcptools.NewAnalysisMCPServer(svc, version))
		},
	}
}
