package backend

import (
	"context"
	"encoding/json"

	"github.com/dusk-indust/jobwatch/internal/progress"
)

// Client is the interface to the analysis backend.
type Client interface {
	// StartAnalysis submits a new analysis job tagged with jobID.
	// The call may block for the whole duration of the job.
	StartAnalysis(ctx context.Context, jobID string) error

	// PollProgress returns the current progress snapshot of jobID.
	// Returns ErrProgressNotFound while the backend has no record yet.
	PollProgress(ctx context.Context, jobID string) (*ProgressSnapshot, error)

	// LatestResult fetches the most recent finished analysis.
	LatestResult(ctx context.Context) (*AnalysisResult, error)
}

// JobStatus is the overall status of a job on the backend.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
)

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobRunning, JobCompleted, JobError:
		return true
	}
	return false
}

// Terminal reports whether s ends polling.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// ProgressSnapshot is one response of the progress endpoint. Progress lists
// every transition recorded so far, in backend order, so consecutive snapshots
// repeat earlier events.
type ProgressSnapshot struct {
	Status   JobStatus        `json:"status"`
	Progress []progress.Event `json:"progress"`
}

// AnalysisResult is the final artifact of an analysis run. Section bodies are
// kept raw; only the fields needed for summaries are decoded.
type AnalysisResult struct {
	TechnicalAnalysis  json.RawMessage `json:"technical_analysis,omitempty"`
	SentimentAnalysis  json.RawMessage `json:"sentiment_analysis,omitempty"`
	ReflectionAnalysis json.RawMessage `json:"reflection_analysis,omitempty"`
	TraderAnalysis     *TraderAnalysis `json:"trader_analysis,omitempty"`
	Timestamp          string          `json:"timestamp,omitempty"`

	// Raw is the full response body as received.
	Raw json.RawMessage `json:"-"`
}

// TraderAnalysis holds the decision section of an AnalysisResult.
type TraderAnalysis struct {
	RecommendationSignal string          `json:"recommendation_signal"`
	MarketCondition      string          `json:"market_condition,omitempty"`
	Timestamp            string          `json:"timestamp,omitempty"`
	FinalVerdict         json.RawMessage `json:"final_verdict,omitempty"`
}

// Recommendation returns the trader's signal, or "" when the result has no
// trader section.
func (r *AnalysisResult) Recommendation() string {
	if r == nil || r.TraderAnalysis == nil {
		return ""
	}
	return r.TraderAnalysis.RecommendationSignal
}

// MarketCondition returns the trader's market condition, or "".
func (r *AnalysisResult) MarketCondition() string {
	if r == nil || r.TraderAnalysis == nil {
		return ""
	}
	return r.TraderAnalysis.MarketCondition
}
