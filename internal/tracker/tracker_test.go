package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dusk-indust/jobwatch/internal/backend"
	"github.com/dusk-indust/jobwatch/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{Interval: time.Millisecond, MaxPolls: 50, MaxConsecutiveErrors: 5}
}

func testResult() *backend.AnalysisResult {
	return &backend.AnalysisResult{
		TraderAnalysis: &backend.TraderAnalysis{RecommendationSignal: "HOLD"},
		Timestamp:      "2025-01-15T12:00:00Z",
	}
}

func TestRunJob_EndToEnd(t *testing.T) {
	client := &fakeClient{
		polls: []pollReply{
			notFound(),
			snapshot(backend.JobRunning, ev("fetch", progress.StatusRunning)),
			snapshot(backend.JobCompleted, ev("fetch", progress.StatusCompleted)),
		},
		latest: testResult(),
	}
	tr := New(client, WithPolicy(fastPolicy()))

	result, err := tr.RunJob(context.Background(), Job{ID: "job_42"}, client.record)

	require.NoError(t, err)
	assert.Same(t, client.latest, result)
	assert.Equal(t, []string{"fetch/running", "fetch/completed", "latest"}, client.traceCopy())
	assert.Equal(t, []string{"job_42"}, client.startJobs)
	assert.Equal(t, []string{"job_42", "job_42", "job_42"}, client.pollJobs)
	assert.Equal(t, 1, client.latestCalls)
}

func TestRunJob_EventsForwardedOnceThenResolved(t *testing.T) {
	fetchRunning := ev("fetch", progress.StatusRunning)
	fetchDone := ev("fetch", progress.StatusCompleted)
	stage1 := ev("stage1", progress.StatusRunning)

	client := &fakeClient{
		polls: []pollReply{
			snapshot(backend.JobRunning, fetchRunning),
			snapshot(backend.JobRunning, fetchRunning),
			snapshot(backend.JobRunning, fetchRunning, fetchDone),
			snapshot(backend.JobRunning, fetchRunning, fetchDone, stage1),
			snapshot(backend.JobCompleted, fetchRunning, fetchDone, stage1),
		},
		latest: testResult(),
	}
	tr := New(client, WithPolicy(fastPolicy()))

	_, err := tr.Run(context.Background(), client.record)

	require.NoError(t, err)
	assert.Equal(t, []string{"fetch/running", "fetch/completed", "stage1/running", "latest"}, client.traceCopy())
	assert.Equal(t, 1, client.latestCalls)
}

func TestRunJob_SameStatusDifferentMessageIsNoop(t *testing.T) {
	client := &fakeClient{
		polls: []pollReply{
			snapshot(backend.JobRunning, progress.Event{StepID: "trader_agent", Status: progress.StatusRunning, Message: "thinking"}),
			snapshot(backend.JobCompleted, progress.Event{StepID: "trader_agent", Status: progress.StatusRunning, Message: "still thinking"}),
		},
		latest: testResult(),
	}
	tr := New(client, WithPolicy(fastPolicy()))

	var got []progress.Event
	_, err := tr.Run(context.Background(), func(e progress.Event) { got = append(got, e) })

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "thinking", got[0].Message)
}

func TestPollOnce_NotFoundIsNotAnError(t *testing.T) {
	client := &fakeClient{
		polls: []pollReply{
			notFound(), notFound(), notFound(), notFound(), notFound(), notFound(), notFound(),
			snapshot(backend.JobRunning, ev("refresh_data", progress.StatusRunning)),
		},
	}
	p := NewPoller(client, time.Millisecond, zeroLogger())
	s := NewSession(Policy{MaxConsecutiveErrors: 5})
	job := Job{ID: "job_1"}

	for i := 0; i < 8; i++ {
		done, err := p.pollOnce(context.Background(), job, s, nil)
		require.NoError(t, err)
		assert.False(t, done)
		assert.Equal(t, 0, s.ConsecutiveErrors, "poll %d", i+1)
	}
	assert.Equal(t, 8, s.PollCount)
	assert.True(t, s.Seen.Has(ev("refresh_data", progress.StatusRunning)))
}

func TestPollOnce_NotFoundResetsStreak(t *testing.T) {
	client := &fakeClient{
		polls: []pollReply{serverError(), serverError(), notFound()},
	}
	p := NewPoller(client, time.Millisecond, zeroLogger())
	s := NewSession(Policy{MaxConsecutiveErrors: 5})

	for i := 0; i < 2; i++ {
		_, err := p.pollOnce(context.Background(), Job{ID: "job_1"}, s, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, s.ConsecutiveErrors)

	_, err := p.pollOnce(context.Background(), Job{ID: "job_1"}, s, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.ConsecutiveErrors)
}

func TestRunJob_LongNotFoundThenCompletes(t *testing.T) {
	var polls []pollReply
	for i := 0; i < 12; i++ {
		polls = append(polls, notFound())
	}
	polls = append(polls, snapshot(backend.JobCompleted, ev("complete", progress.StatusCompleted)))

	client := &fakeClient{polls: polls, latest: testResult()}
	tr := New(client, WithPolicy(fastPolicy()))

	_, err := tr.Run(context.Background(), client.record)

	require.NoError(t, err)
	assert.Equal(t, 13, client.pollCount())
}

func TestRunJob_ConnectivityFailure(t *testing.T) {
	client := &fakeClient{
		polls:     []pollReply{serverError()},
		startGate: make(chan struct{}),
	}
	defer close(client.startGate)
	tr := New(client, WithPolicy(fastPolicy()))

	result, err := tr.Run(context.Background(), client.record)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.NotErrorIs(t, err, ErrTimeout)
	var statusErr *backend.StatusError
	assert.ErrorAs(t, err, &statusErr, "last cause is kept")
	assert.Equal(t, "connectivity", Kind(err))

	assert.Equal(t, 5, client.pollCount())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 5, client.pollCount(), "no polls after rejection")
	assert.Zero(t, client.latestCalls)
}

func TestRunJob_InterleavedNotFoundDoesNotTrip(t *testing.T) {
	client := &fakeClient{
		polls: []pollReply{
			serverError(), serverError(), serverError(), serverError(),
			notFound(),
			serverError(), serverError(), serverError(), serverError(),
			snapshot(backend.JobCompleted),
		},
		latest: testResult(),
	}
	tr := New(client, WithPolicy(fastPolicy()))

	_, err := tr.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 10, client.pollCount())
}

func TestRunJob_MalformedCountsTowardBreaker(t *testing.T) {
	malformed := pollReply{err: fmt.Errorf("%w: poll progress: unexpected EOF", backend.ErrMalformedResponse)}
	client := &fakeClient{polls: []pollReply{malformed}}
	tr := New(client, WithPolicy(Policy{Interval: time.Millisecond, MaxPolls: 50, MaxConsecutiveErrors: 2}))

	_, err := tr.Run(context.Background(), nil)

	assert.ErrorIs(t, err, ErrConnectivity)
	assert.ErrorIs(t, err, backend.ErrMalformedResponse)
	assert.Equal(t, 2, client.pollCount())
}

func TestRunJob_NullProgressBodyTripsBreaker(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sol/analyse", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET /api/sol/analyse/progress/{id}", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		_, _ = w.Write([]byte(`null`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	tr := New(backend.NewHTTPClient(ts.URL),
		WithPolicy(Policy{Interval: time.Millisecond, MaxPolls: 20, MaxConsecutiveErrors: 3}))

	_, err := tr.Run(context.Background(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.ErrorIs(t, err, backend.ErrMalformedResponse)
	assert.Equal(t, "connectivity", Kind(err))
	assert.EqualValues(t, 3, polls.Load())
}

func TestPollOnce_SnapshotWithoutStatusIsFailure(t *testing.T) {
	client := &fakeClient{polls: []pollReply{{}, snapshot(""), snapshot("queued")}}
	p := NewPoller(client, time.Millisecond, zeroLogger())
	s := NewSession(fastPolicy())

	for i := 1; i <= 3; i++ {
		done, err := p.pollOnce(context.Background(), Job{ID: "job_42"}, s, nil)
		require.NoError(t, err)
		assert.False(t, done)
		assert.Equal(t, i, s.ConsecutiveErrors)
	}
}

func TestRunJob_Timeout(t *testing.T) {
	client := &fakeClient{
		polls: []pollReply{snapshot(backend.JobRunning, ev("technical_agent", progress.StatusRunning))},
	}
	tr := New(client, WithPolicy(Policy{Interval: time.Millisecond, MaxPolls: 3}))

	_, err := tr.Run(context.Background(), client.record)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "timeout", Kind(err))
	assert.Equal(t, 3, client.pollCount())
	assert.Equal(t, []string{"technical_agent/running"}, client.traceCopy())
}

func TestRunJob_SubmissionFailsWithoutWaitingForPolls(t *testing.T) {
	client := &fakeClient{
		startErr: &backend.StatusError{Op: "start analysis", StatusCode: 500},
		polls:    []pollReply{snapshot(backend.JobCompleted)},
		latest:   testResult(),
	}
	tr := New(client, WithPolicy(Policy{Interval: time.Hour}))

	start := time.Now()
	_, err := tr.Run(context.Background(), client.record)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, ErrSubmission)
	assert.Equal(t, "submission", Kind(err))
	assert.Equal(t, "failed to start analysis - server returned error", Message(err))
	assert.Zero(t, client.pollCount())
	assert.Zero(t, client.latestCalls)
}

func TestRunJob_BackendReportsError(t *testing.T) {
	client := &fakeClient{
		polls: []pollReply{
			snapshot(backend.JobRunning, ev("refresh_data", progress.StatusCompleted), ev("technical_agent", progress.StatusRunning)),
			snapshot(backend.JobError, ev("technical_agent", progress.StatusError)),
		},
		startGate: make(chan struct{}),
	}
	defer close(client.startGate)
	tr := New(client, WithPolicy(fastPolicy()))

	_, err := tr.Run(context.Background(), client.record)

	assert.ErrorIs(t, err, ErrBackendFailed)
	assert.Equal(t, "analysis failed on backend", Message(err))
	assert.Equal(t, []string{"refresh_data/completed", "technical_agent/running", "technical_agent/error"}, client.traceCopy())
	assert.Zero(t, client.latestCalls)
}

func TestRunJob_ResultFetchFailure(t *testing.T) {
	client := &fakeClient{
		polls:     []pollReply{snapshot(backend.JobCompleted, ev("complete", progress.StatusCompleted))},
		latestErr: &backend.StatusError{Op: "latest result", StatusCode: 502},
	}
	tr := New(client, WithPolicy(fastPolicy()))

	result, err := tr.Run(context.Background(), client.record)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrResultFetch)
	assert.Equal(t, "result", Kind(err))
	assert.Equal(t, 1, client.latestCalls)
}

func TestRunJob_WaitsForSubmission(t *testing.T) {
	client := &fakeClient{
		polls:     []pollReply{snapshot(backend.JobCompleted)},
		latest:    testResult(),
		startGate: make(chan struct{}),
	}
	tr := New(client, WithPolicy(fastPolicy()))

	done := make(chan error, 1)
	go func() {
		_, err := tr.Run(context.Background(), nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.latestCalls == 1
	}, time.Second, time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Run returned before submission finished: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(client.startGate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after submission finished")
	}
}

func TestRunJob_ContextCanceled(t *testing.T) {
	client := &fakeClient{
		polls:     []pollReply{snapshot(backend.JobRunning)},
		startGate: make(chan struct{}),
	}
	defer close(client.startGate)
	tr := New(client, WithPolicy(Policy{Interval: time.Millisecond, MaxPolls: 100000}))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := tr.Run(ctx, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", Kind(err))
}

func TestTrack_Success(t *testing.T) {
	client := &fakeClient{
		polls: []pollReply{
			snapshot(backend.JobRunning, ev("refresh_data", progress.StatusRunning)),
			snapshot(backend.JobCompleted,
				ev("refresh_data", progress.StatusRunning),
				ev("refresh_data", progress.StatusCompleted),
				ev("trader_agent", progress.StatusWarning),
				ev("complete", progress.StatusCompleted),
			),
		},
		latest: testResult(),
	}
	tr := New(client, WithPolicy(fastPolicy()), WithClock(func() time.Time {
		return time.UnixMilli(1700000000000)
	}))

	reg := progress.NewDefaultRegistry()
	reg.Apply(ev("sentiment_agent", progress.StatusError))

	var seen int
	out, err := tr.Track(context.Background(), reg, func(progress.Event) { seen++ })

	require.NoError(t, err)
	assert.Equal(t, 4, seen)
	assert.Same(t, client.latest, out.Result)
	assert.Regexp(t, `^job_1700000000000_[0-9a-f]{9}$`, out.Job.ID)

	byID := map[string]progress.Step{}
	for _, st := range out.Steps {
		byID[st.ID] = st
	}
	assert.Equal(t, progress.StatusCompleted, byID["refresh_data"].Status)
	assert.Equal(t, progress.StatusPending, byID["sentiment_agent"].Status, "registry is reset per job")
	assert.Equal(t, progress.StatusWarning, byID["trader_agent"].Status)
	assert.Equal(t, progress.StatusCompleted, byID["complete"].Status)
}

func TestTrack_FailureStopsSpinners(t *testing.T) {
	client := &fakeClient{
		polls: []pollReply{
			snapshot(backend.JobRunning,
				ev("refresh_data", progress.StatusCompleted),
				ev("technical_agent", progress.StatusRunning),
				ev("sentiment_agent", progress.StatusRunning),
			),
		},
	}
	tr := New(client, WithPolicy(Policy{Interval: time.Millisecond, MaxPolls: 2}))

	reg := progress.NewDefaultRegistry()
	out, err := tr.Track(context.Background(), reg, nil)

	require.ErrorIs(t, err, ErrTimeout)
	assert.Nil(t, out.Result)
	assert.Equal(t, reg.Snapshot(), out.Steps)
	for _, st := range out.Steps {
		assert.NotEqual(t, progress.StatusRunning, st.Status, st.ID)
	}
	assert.Equal(t, progress.StatusError, out.Steps[1].Status)
	assert.Equal(t, FailedStepMessage, out.Steps[1].Message)
	assert.Equal(t, progress.StatusCompleted, out.Steps[0].Status)
}

func TestKindAndMessage(t *testing.T) {
	tests := []struct {
		err     error
		kind    string
		message string
	}{
		{nil, "", ""},
		{fmt.Errorf("x: %w", ErrSubmission), "submission", ErrSubmission.Error()},
		{fmt.Errorf("x: %w", ErrBackendFailed), "backend", ErrBackendFailed.Error()},
		{fmt.Errorf("x: %w", ErrTimeout), "timeout", ErrTimeout.Error()},
		{fmt.Errorf("x: %w: %w", ErrConnectivity, &backend.StatusError{StatusCode: 502}), "connectivity", ErrConnectivity.Error()},
		{fmt.Errorf("x: %w: %w", ErrConnectivity, errors.New("dial tcp: connection refused")), "connectivity", "backend connection lost - please check if server is running"},
		{fmt.Errorf("x: %w: %w", ErrConnectivity, backend.ErrMalformedResponse), "connectivity", "backend connection lost - please check if server is running"},
		{fmt.Errorf("x: %w", ErrResultFetch), "result", ErrResultFetch.Error()},
		{context.DeadlineExceeded, "canceled", context.DeadlineExceeded.Error()},
		{errors.New("boom"), "unknown", "boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Kind(tt.err))
		assert.Equal(t, tt.message, Message(tt.err))
	}
}
