package harness

// TraceEvent records one step: which execution ran it, what each listener
// observed, and how the scope closed.
type TraceEvent struct {
	Step        int             `json:"step"`
	ExecutionID string          `json:"execution_id"`
	Name        string          `json:"name"`
	Explicit    bool            `json:"explicit"`
	Listeners   []ListenerTrace `json:"listeners"`
	Status      string          `json:"status"`
	RecordID    string          `json:"record_id,omitempty"`
	Seq         int64           `json:"seq,omitempty"`
	CountAfter  int             `json:"count_after"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ListenerTrace is one listener invocation inside a step.
type ListenerTrace struct {
	Listener string `json:"listener"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success: every expect clause and
	// assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// FinalCount is the committed count for the scenario kind after the
	// last step.
	FinalCount int `json:"final_count"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
