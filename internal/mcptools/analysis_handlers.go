package mcptools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dusk-indust/jobwatch/internal/backend"
	"github.com/dusk-indust/jobwatch/internal/progress"
	"github.com/dusk-indust/jobwatch/internal/tracker"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrAnalysisRunning is returned by RunAnalysis while another job is tracked.
var ErrAnalysisRunning = errors.New("analysis already running")

// AnalysisService implements the MCP tool handlers. It tracks at most one job
// at a time and keeps the step registry of the current or last job.
type AnalysisService struct {
	tracker  *tracker.Tracker
	client   backend.Client
	registry *progress.Registry

	mu      sync.Mutex
	running bool
	jobID   string
}

// NewAnalysisService creates an AnalysisService.
func NewAnalysisService(t *tracker.Tracker, client backend.Client) *AnalysisService {
	return &AnalysisService{
		tracker:  t,
		client:   client,
		registry: progress.NewDefaultRegistry(),
	}
}

// RunAnalysis starts a job and blocks until it resolves. Job failures are
// reported in the output, not as a tool error.
func (s *AnalysisService) RunAnalysis(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunAnalysisInput,
) (*mcp.CallToolResult, RunAnalysisOutput, error) {
	if input.TimeoutSeconds < 0 {
		return nil, RunAnalysisOutput{}, fmt.Errorf("invalid timeoutSeconds: %d", input.TimeoutSeconds)
	}

	job := s.tracker.NewJob()
	if err := s.begin(job.ID); err != nil {
		return nil, RunAnalysisOutput{}, err
	}
	defer s.end()

	if input.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(input.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	out, err := s.tracker.TrackJob(ctx, job, s.registry, nil)
	if err != nil {
		return nil, RunAnalysisOutput{
			JobID:     job.ID,
			Status:    "failed",
			ErrorKind: tracker.Kind(err),
			Message:   tracker.Message(err),
			Steps:     out.Steps,
		}, nil
	}

	return nil, RunAnalysisOutput{
		JobID:           job.ID,
		Status:          "completed",
		Steps:           out.Steps,
		Recommendation:  out.Result.Recommendation(),
		MarketCondition: out.Result.MarketCondition(),
		Timestamp:       out.Result.Timestamp,
	}, nil
}

// GetSteps reports the step registry of the current or last job.
func (s *AnalysisService) GetSteps(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ GetStepsInput,
) (*mcp.CallToolResult, GetStepsOutput, error) {
	s.mu.Lock()
	jobID, running := s.jobID, s.running
	s.mu.Unlock()

	sum := s.registry.Summary()
	return nil, GetStepsOutput{
		JobID:     jobID,
		Running:   running,
		Steps:     s.registry.Snapshot(),
		Completed: sum.Completed,
		Total:     sum.Total,
	}, nil
}

// GetLatest fetches the latest analysis result once.
func (s *AnalysisService) GetLatest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GetLatestInput,
) (*mcp.CallToolResult, GetLatestOutput, error) {
	result, err := s.client.LatestResult(ctx)
	if err != nil {
		return nil, GetLatestOutput{}, err
	}
	return nil, GetLatestOutput{
		Recommendation:  result.Recommendation(),
		MarketCondition: result.MarketCondition(),
		Timestamp:       result.Timestamp,
		Raw:             string(result.Raw),
	}, nil
}

func (s *AnalysisService) begin(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("%w: %s", ErrAnalysisRunning, s.jobID)
	}
	s.running = true
	s.jobID = jobID
	return nil
}

func (s *AnalysisService) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}
