package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/jobwatch/internal/progress"
	"github.com/google/uuid"
)

// Default polling policy.
const (
	DefaultInterval             = time.Second
	DefaultMaxPolls             = 600
	DefaultMaxConsecutiveErrors = 5
)

// Job is one client-initiated analysis run.
type Job struct {
	ID        string
	CreatedAt time.Time
}

// NewJob creates a Job with an id of the form job_<unix-ms>_<9 hex chars>.
func NewJob(now time.Time) Job {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return Job{
		ID:        fmt.Sprintf("job_%d_%s", now.UnixMilli(), suffix),
		CreatedAt: now,
	}
}

// Policy bounds one polling loop.
type Policy struct {
	// Interval is the delay between polls.
	Interval time.Duration

	// MaxPolls is the number of polls allowed before giving up with ErrTimeout.
	MaxPolls int

	// MaxConsecutiveErrors is the failure streak that trips ErrConnectivity.
	MaxConsecutiveErrors int
}

// DefaultPolicy returns the default policy: 1s interval, 600 polls, 5 errors.
func DefaultPolicy() Policy {
	return Policy{
		Interval:             DefaultInterval,
		MaxPolls:             DefaultMaxPolls,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.MaxPolls <= 0 {
		p.MaxPolls = DefaultMaxPolls
	}
	if p.MaxConsecutiveErrors <= 0 {
		p.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	return p
}

// Session is the state of one polling loop. It is created fresh for every job
// and owned by the goroutine running the loop.
type Session struct {
	Seen                 progress.Seen
	PollCount            int
	MaxPolls             int
	ConsecutiveErrors    int
	MaxConsecutiveErrors int
}

// NewSession creates an empty Session bounded by p.
func NewSession(p Policy) *Session {
	p = p.withDefaults()
	return &Session{
		Seen:                 progress.NewSeen(),
		MaxPolls:             p.MaxPolls,
		MaxConsecutiveErrors: p.MaxConsecutiveErrors,
	}
}

// exhausted reports whether the poll budget is spent.
func (s *Session) exhausted() bool {
	return s.PollCount >= s.MaxPolls
}

// recordFailure counts a failed poll and reports whether the streak reached
// the threshold.
func (s *Session) recordFailure() bool {
	s.ConsecutiveErrors++
	return s.ConsecutiveErrors >= s.MaxConsecutiveErrors
}

// recordSuccess ends the failure streak.
func (s *Session) recordSuccess() {
	s.ConsecutiveErrors = 0
}
