package tracker

import (
	"context"
	"time"

	"github.com/dusk-indust/jobwatch/internal/backend"
	"github.com/dusk-indust/jobwatch/internal/progress"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// FailedStepMessage is attached to steps forced from running to error when a
// tracked job fails.
const FailedStepMessage = "Failed"

// Tracker starts analysis jobs and follows them to completion.
type Tracker struct {
	client backend.Client
	policy Policy
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPolicy sets the polling policy. Zero fields keep their defaults.
func WithPolicy(p Policy) Option {
	return func(t *Tracker) {
		t.policy = p.withDefaults()
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithClock sets the clock used to stamp new jobs.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a Tracker talking to client.
func New(client backend.Client, opts ...Option) *Tracker {
	t := &Tracker{
		client: client,
		policy: DefaultPolicy(),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Policy returns the effective polling policy.
func (t *Tracker) Policy() Policy {
	return t.policy
}

// NewJob creates a Job stamped with the tracker's clock.
func (t *Tracker) NewJob() Job {
	return NewJob(t.now())
}

// Run starts a new job and waits for its result.
func (t *Tracker) Run(ctx context.Context, onProgress ProgressFunc) (*backend.AnalysisResult, error) {
	return t.RunJob(ctx, t.NewJob(), onProgress)
}

// RunJob submits job and polls its progress concurrently. It returns the
// latest result once the submission has succeeded and polling has observed
// completion. The first failure on either side cancels the other and is
// returned.
//
// onProgress is called from the polling goroutine only.
func (t *Tracker) RunJob(ctx context.Context, job Job, onProgress ProgressFunc) (*backend.AnalysisResult, error) {
	logger := t.logger.With().Str("job", job.ID).Logger()
	submitter := NewSubmitter(t.client, t.logger)
	poller := NewPoller(t.client, t.policy.Interval, t.logger)
	resolver := NewResolver(t.client, t.logger)
	session := NewSession(t.policy)

	var result *backend.AnalysisResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return submitter.Submit(gctx, job)
	})

	g.Go(func() error {
		if err := poller.Poll(gctx, job, session, onProgress); err != nil {
			return err
		}
		r, err := resolver.Resolve(gctx, job)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Int("polls", session.PollCount).Msg("analysis failed")
		return nil, err
	}
	logger.Info().Int("polls", session.PollCount).Msg("analysis finished")
	return result, nil
}

// Outcome is the end state of a tracked job.
type Outcome struct {
	Job    Job
	Result *backend.AnalysisResult
	Steps  []progress.Step
}

// Track runs a new job against reg. The registry is reset first, then every
// forwarded event is applied to it before listener sees the event. If the job
// fails, steps still running are moved to error so no step is left spinning.
func (t *Tracker) Track(ctx context.Context, reg *progress.Registry, listener ProgressFunc) (Outcome, error) {
	return t.TrackJob(ctx, t.NewJob(), reg, listener)
}

// TrackJob is Track for a caller-created job.
func (t *Tracker) TrackJob(ctx context.Context, job Job, reg *progress.Registry, listener ProgressFunc) (Outcome, error) {
	reg.Reset()

	result, err := t.RunJob(ctx, job, func(ev progress.Event) {
		if !reg.Apply(ev) {
			t.logger.Debug().Str("job", job.ID).Str("step", ev.StepID).Msg("event for unknown step")
		}
		if listener != nil {
			listener(ev)
		}
	})
	if err != nil {
		reg.FailRunning(FailedStepMessage)
	}
	return Outcome{Job: job, Result: result, Steps: reg.Snapshot()}, err
}
