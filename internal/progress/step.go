package progress

import "sync"

// StepStatus is the state of one pipeline step as reported by the backend.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
	StatusError     StepStatus = "error"
	StatusWarning   StepStatus = "warning"
)

// Valid reports whether s is one of the known step statuses.
func (s StepStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusError, StatusWarning:
		return true
	default:
		return false
	}
}

// Terminal reports whether s ends the step. Only StatusError also ends the job,
// and that decision belongs to the backend's overall status, not to the step.
func (s StepStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusWarning
}

// Step is one named stage of the remote analysis pipeline.
type Step struct {
	ID      string     `json:"id"`
	Label   string     `json:"label"`
	Status  StepStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// DefaultSteps returns the stages of the analysis pipeline in execution order.
func DefaultSteps() []Step {
	return []Step{
		{ID: "refresh_data", Label: "Fetching Real-Time Market Data"},
		{ID: "technical_agent", Label: "Technical Agent"},
		{ID: "sentiment_agent", Label: "Sentiment Agent"},
		{ID: "reflection_agent", Label: "Reflection Agent"},
		{ID: "trader_agent", Label: "Trader Agent"},
		{ID: "complete", Label: "Finalising Results"},
	}
}

// Summary counts steps by coarse state.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Running   int `json:"running"`
	Failed    int `json:"failed"`
}

// Registry holds the fixed, ordered step sequence of one job. The sequence
// never grows or shrinks; only Status and Message change.
//
// A Registry is written by a single tracking session but may be read
// concurrently through Snapshot and Summary.
type Registry struct {
	mu    sync.RWMutex
	defs  []Step
	steps []Step
	index map[string]int
}

// NewRegistry creates a Registry over defs. Statuses and messages in defs are
// ignored: every step starts pending.
func NewRegistry(defs []Step) *Registry {
	r := &Registry{
		defs:  make([]Step, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		r.defs[i] = Step{ID: d.ID, Label: d.Label, Status: StatusPending}
		r.index[d.ID] = i
	}
	r.steps = make([]Step, len(r.defs))
	copy(r.steps, r.defs)
	return r
}

// NewDefaultRegistry creates a Registry over DefaultSteps.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultSteps())
}

// Reset restores the initial all-pending sequence.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy(r.steps, r.defs)
}

// Apply records ev on the matching step and reports whether a step matched.
// Transitions are not validated: a backend that moves a step backwards is
// taken at its word.
func (r *Registry) Apply(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[ev.StepID]
	if !ok {
		return false
	}
	r.steps[i].Status = ev.Status
	r.steps[i].Message = ev.Message
	return true
}

// FailRunning moves every running step to error with message and returns the
// ids it changed.
func (r *Registry) FailRunning(message string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed []string
	for i := range r.steps {
		if r.steps[i].Status == StatusRunning {
			r.steps[i].Status = StatusError
			r.steps[i].Message = message
			changed = append(changed, r.steps[i].ID)
		}
	}
	return changed
}

// Snapshot returns a copy of the steps in order.
func (r *Registry) Snapshot() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Summary counts the current steps.
func (r *Registry) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{Total: len(r.steps)}
	for _, st := range r.steps {
		switch st.Status {
		case StatusCompleted:
			s.Completed++
		case StatusRunning:
			s.Running++
		case StatusError:
			s.Failed++
		}
	}
	return s
}
