package mcptools

import "github.com/dusk-indust/jobwatch/internal/progress"

// --- MCP tool types for the analysis server mode (serve-mcp) ---

// RunAnalysisInput is the input for the run_analysis MCP tool.
type RunAnalysisInput struct {
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" jsonschema:"give up after this many seconds (default: polling policy only)"`
}

// RunAnalysisOutput is the result of the run_analysis MCP tool.
type RunAnalysisOutput struct {
	JobID           string          `json:"jobId"`
	Status          string          `json:"status"` // "completed" or "failed"
	ErrorKind       string          `json:"errorKind,omitempty"`
	Message         string          `json:"message,omitempty"`
	Steps           []progress.Step `json:"steps"`
	Recommendation  string          `json:"recommendation,omitempty"`
	MarketCondition string          `json:"marketCondition,omitempty"`
	Timestamp       string          `json:"timestamp,omitempty"`
}

// GetStepsInput is the input for the get_steps MCP tool.
type GetStepsInput struct{}

// GetStepsOutput is the result of the get_steps MCP tool.
type GetStepsOutput struct {
	JobID     string          `json:"jobId,omitempty"`
	Running   bool            `json:"running"`
	Steps     []progress.Step `json:"steps"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
}

// GetLatestInput is the input for the get_latest MCP tool.
type GetLatestInput struct{}

// GetLatestOutput is the result of the get_latest MCP tool.
type GetLatestOutput struct {
	Recommendation  string `json:"recommendation,omitempty"`
	MarketCondition string `json:"marketCondition,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	Raw             string `json:"raw"`
}
