package tracker

import (
	"context"
	"fmt"

	"github.com/dusk-indust/jobwatch/internal/backend"
	"github.com/rs/zerolog"
)

// Submitter issues the one-shot request that starts a job. It never retries.
type Submitter struct {
	client backend.Client
	logger zerolog.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(client backend.Client, logger zerolog.Logger) *Submitter {
	return &Submitter{client: client, logger: logger}
}

// Submit starts job on the backend. Any failure is wrapped in ErrSubmission.
func (s *Submitter) Submit(ctx context.Context, job Job) error {
	s.logger.Info().Str("job", job.ID).Msg("starting analysis")
	if err := s.client.StartAnalysis(ctx, job.ID); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error().Err(err).Str("job", job.ID).Msg("start request failed")
		return fmt.Errorf("tracker: %w: %w", ErrSubmission, err)
	}
	s.logger.Debug().Str("job", job.ID).Msg("start request returned")
	return nil
}

// Resolver fetches the final artifact once polling has observed completion.
// The progress stream says that the work finished; the result comes from the
// latest-result endpoint.
type Resolver struct {
	client backend.Client
	logger zerolog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(client backend.Client, logger zerolog.Logger) *Resolver {
	return &Resolver{client: client, logger: logger}
}

// Resolve performs a single latest-result fetch. A failure is wrapped in
// ErrResultFetch and is not retried, even though the job itself succeeded.
func (r *Resolver) Resolve(ctx context.Context, job Job) (*backend.AnalysisResult, error) {
	result, err := r.client.LatestResult(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Error().Err(err).Str("job", job.ID).Msg("latest result fetch failed")
		return nil, fmt.Errorf("tracker: %w: %w", ErrResultFetch, err)
	}
	r.logger.Info().Str("job", job.ID).Str("recommendation", result.Recommendation()).Msg("result resolved")
	return result, nil
}
