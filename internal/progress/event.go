package progress

// Event is one step transition reported by the backend.
type Event struct {
	StepID  string     `json:"step"`
	Status  StepStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// eventKey is the identity of an event for deduplication. A step reporting
// the same status twice has the same key; a different status is a new key.
type eventKey struct {
	step   string
	status StepStatus
}

func keyOf(ev Event) eventKey {
	return eventKey{step: ev.StepID, status: ev.Status}
}

// Seen is the set of (step, status) pairs already forwarded in one session.
type Seen map[eventKey]struct{}

// NewSeen returns an empty set.
func NewSeen() Seen {
	return make(Seen)
}

// Add inserts ev's identity and reports whether it was new.
func (s Seen) Add(ev Event) bool {
	k := keyOf(ev)
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = struct{}{}
	return true
}

// Has reports whether ev's identity has been forwarded.
func (s Seen) Has(ev Event) bool {
	_, ok := s[keyOf(ev)]
	return ok
}

// Dedupe decides whether ev should be emitted given seen. When it should, the
// returned set contains ev's identity and seen is left untouched; otherwise
// seen itself is returned.
func Dedupe(seen Seen, ev Event) (bool, Seen) {
	if seen.Has(ev) {
		return false, seen
	}
	next := make(Seen, len(seen)+1)
	for k := range seen {
		next[k] = struct{}{}
	}
	next[keyOf(ev)] = struct{}{}
	return true, next
}
