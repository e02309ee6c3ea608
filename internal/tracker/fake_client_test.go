package tracker

import (
	"context"
	"net/http"
	"sync"

	"github.com/dusk-indust/jobwatch/internal/backend"
	"github.com/dusk-indust/jobwatch/internal/progress"
)

// pollReply is one scripted answer of the progress endpoint.
type pollReply struct {
	snap *backend.ProgressSnapshot
	err  error
}

func notFound() pollReply {
	return pollReply{err: backend.ErrProgressNotFound}
}

func serverError() pollReply {
	return pollReply{err: &backend.StatusError{Op: "poll progress", StatusCode: http.StatusInternalServerError}}
}

func snapshot(status backend.JobStatus, events ...progress.Event) pollReply {
	return pollReply{snap: &backend.ProgressSnapshot{Status: status, Progress: events}}
}

func ev(step string, status progress.StepStatus) progress.Event {
	return progress.Event{StepID: step, Status: status}
}

// fakeClient is a scripted backend.Client. Poll replies are consumed in
// order; once the script is exhausted the last reply repeats.
type fakeClient struct {
	mu sync.Mutex

	startErr  error
	startGate chan struct{} // when non-nil, StartAnalysis waits for it to close

	polls []pollReply

	latest    *backend.AnalysisResult
	latestErr error

	startJobs   []string
	pollJobs    []string
	latestCalls int

	// trace records forwarded events and result fetches in call order.
	trace []string
}

var _ backend.Client = (*fakeClient)(nil)

func (f *fakeClient) StartAnalysis(ctx context.Context, jobID string) error {
	f.mu.Lock()
	f.startJobs = append(f.startJobs, jobID)
	gate, err := f.startGate, f.startErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeClient) PollProgress(_ context.Context, jobID string) (*backend.ProgressSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pollJobs = append(f.pollJobs, jobID)
	if len(f.polls) == 0 {
		return nil, backend.ErrProgressNotFound
	}
	i := len(f.pollJobs) - 1
	if i >= len(f.polls) {
		i = len(f.polls) - 1
	}
	reply := f.polls[i]
	return reply.snap, reply.err
}

func (f *fakeClient) LatestResult(_ context.Context) (*backend.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latestCalls++
	f.trace = append(f.trace, "latest")
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latest, nil
}

// record is an onProgress callback that appends to the trace.
func (f *fakeClient) record(e progress.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, e.StepID+"/"+string(e.Status))
}

func (f *fakeClient) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pollJobs)
}

func (f *fakeClient) traceCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.trace...)
}
