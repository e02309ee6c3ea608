package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dusk-indust/jobwatch/internal/backend"
	"github.com/dusk-indust/jobwatch/internal/progress"
	"github.com/rs/zerolog"
)

// ProgressFunc receives each distinct step transition of a job exactly once,
// in the order the backend lists them.
type ProgressFunc func(progress.Event)

// Poller repeatedly queries the progress endpoint of a job until it reaches a
// terminal status, the poll budget runs out, or the backend becomes
// unreachable.
type Poller struct {
	client   backend.Client
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a Poller that polls every interval.
func NewPoller(client backend.Client, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{client: client, interval: interval, logger: logger}
}

// Poll runs the loop for job using session s. It returns nil once the backend
// reports completion, ErrBackendFailed, ErrTimeout or ErrConnectivity on the
// corresponding exit, or the context error if ctx ends first. The ticker is
// stopped on every exit path.
func (p *Poller) Poll(ctx context.Context, job Job, s *Session, onProgress ProgressFunc) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if s.exhausted() {
			p.logger.Warn().Str("job", job.ID).Int("polls", s.PollCount).Msg("poll budget exhausted")
			return fmt.Errorf("tracker: %w after %d polls", ErrTimeout, s.PollCount)
		}

		done, err := p.pollOnce(ctx, job, s, onProgress)
		if err != nil || done {
			return err
		}
	}
}

// pollOnce performs one poll cycle and reports whether the job completed.
func (p *Poller) pollOnce(ctx context.Context, job Job, s *Session, onProgress ProgressFunc) (bool, error) {
	s.PollCount++
	log := p.logger.With().Str("job", job.ID).Int("poll", s.PollCount).Logger()

	snap, err := p.client.PollProgress(ctx, job.ID)
	if err == nil && (snap == nil || !snap.Status.Valid()) {
		err = fmt.Errorf("%w: poll progress: snapshot without a known job status", backend.ErrMalformedResponse)
	}
	switch {
	case errors.Is(err, backend.ErrProgressNotFound):
		s.recordSuccess()
		log.Debug().Msg("progress record not created yet")
		return false, nil

	case err != nil:
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		tripped := s.recordFailure()
		log.Warn().Err(err).Int("consecutive_errors", s.ConsecutiveErrors).Msg("poll failed")
		if tripped {
			return false, fmt.Errorf("tracker: %w after %d consecutive failures: %w",
				ErrConnectivity, s.ConsecutiveErrors, err)
		}
		return false, nil
	}

	s.recordSuccess()
	for _, ev := range snap.Progress {
		if !s.Seen.Add(ev) {
			continue
		}
		log.Debug().Str("step", ev.StepID).Str("status", string(ev.Status)).Msg("progress")
		if onProgress != nil {
			onProgress(ev)
		}
	}

	switch snap.Status {
	case backend.JobCompleted:
		log.Info().Msg("job completed on backend")
		return true, nil
	case backend.JobError:
		log.Warn().Msg("job failed on backend")
		return false, fmt.Errorf("tracker: job %s: %w", job.ID, ErrBackendFailed)
	default:
		return false, nil
	}
}
