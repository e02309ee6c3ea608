package tracker

import (
	"context"
	"errors"

	"github.com/dusk-indust/jobwatch/internal/backend"
)

// Failure classes of a tracked job. Each is returned wrapped with its cause;
// test with errors.Is.
var (
	ErrSubmission    = errors.New("failed to start analysis - server returned error")
	ErrBackendFailed = errors.New("analysis failed on backend")
	ErrTimeout       = errors.New("analysis timeout - exceeded maximum wait time")
	ErrConnectivity  = errors.New("backend connection failed - please check if server is running")
	ErrResultFetch   = errors.New("failed to fetch latest analysis result")
)

// connectionLost is shown instead of ErrConnectivity's text when the last
// failure never produced an HTTP status: transport errors and unreadable bodies.
const connectionLost = "backend connection lost - please check if server is running"

// Kind names the failure class of err for hosts that only carry strings.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSubmission):
		return "submission"
	case errors.Is(err, ErrBackendFailed):
		return "backend"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, ErrResultFetch):
		return "result"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// Message returns the user-facing text for err: the class description when it
// has one, err.Error() otherwise.
func Message(err error) string {
	var statusErr *backend.StatusError
	if errors.Is(err, ErrConnectivity) && !errors.As(err, &statusErr) {
		return connectionLost
	}
	for _, class := range []error{ErrSubmission, ErrBackendFailed, ErrTimeout, ErrConnectivity, ErrResultFetch} {
		if errors.Is(err, class) {
			return class.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
