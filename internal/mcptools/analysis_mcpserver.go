package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewAnalysisMCPServer creates an MCP server with the 3 analysis tools
// registered: run_analysis, get_steps, and get_latest. version is reported
// to clients as the server implementation version.
func NewAnalysisMCPServer(svc *AnalysisService, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "jobwatch",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_analysis",
		Description: "Start a new market analysis job and wait for it to finish. Returns the final step states and the trader recommendation, or the failure class and message.",
	}, svc.RunAnalysis)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_steps",
		Description: "Get the pipeline step states of the running or most recent analysis job.",
	}, svc.GetSteps)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_latest",
		Description: "Fetch the most recent finished analysis result without starting a job.",
	}, svc.GetLatest)

	return server
}

// RunAnalysisMCPServerStdio runs the MCP server on stdio transport, blocking
// until stdin is closed or the context is cancelled.
func RunAnalysisMCPServerStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
