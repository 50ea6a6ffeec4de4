package listeners

import (
	"sync"
	"time"
)

// Observation is what one listener invocation saw.
type Observation struct {
	Listener    string    `json:"listener"`
	ExecutionID string    `json:"execution_id"`
	Record      string    `json:"record"`
	Count       int       `json:"count"` // -1 when the listener failed before counting
	Started     time.Time `json:"started"`
	Ended       time.Time `json:"ended"`
	Err         string    `json:"error,omitempty"`
}

// Recorder collects observations from concurrent listener invocations.
// A nil Recorder discards everything.
type Recorder struct {
	mu  sync.Mutex
	obs []Observation
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) observe(o Observation) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, o)
}

// Observations returns a copy of everything recorded, in invocation order.
func (r *Recorder) Observations() []Observation {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Observation, len(r.obs))
	copy(out, r.obs)
	return out
}

// ForExecution returns the observations made on behalf of one execution.
func (r *Recorder) ForExecution(executionID string) []Observation {
	var out []Observation
	for _, o := range r.Observations() {
		if o.ExecutionID == executionID {
			out = append(out, o)
		}
	}
	return out
}

// Order returns listener names in invocation order.
func (r *Recorder) Order() []string {
	all := r.Observations()
	names := make([]string, len(all))
	for i, o := range all {
		names[i] = o.Listener
	}
	return names
}

// Reset discards all observations.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = nil
}
