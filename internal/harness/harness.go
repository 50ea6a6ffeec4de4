package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/txsignal/internal/dispatch"
	"github.com/roach88/txsignal/internal/entry"
	"github.com/roach88/txsignal/internal/listeners"
	"github.com/roach88/txsignal/internal/record"
	"github.com/roach88/txsignal/internal/records"
	"github.com/roach88/txsignal/internal/store"
	"github.com/roach88/txsignal/internal/testutil"
	"github.com/roach88/txsignal/internal/txn"
)

// Harness is the test execution engine for one scenario run.
type Harness struct {
	store    *store.Store
	service  *entry.Service
	recorder *listeners.Recorder
	readers  map[string]*records.Reader
	kind     string
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Register the scenario's listeners
//  3. Execute steps sequentially with expect validation
//  4. Evaluate assertions against the trace and the database
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithIDGenerator(testutil.NewSequentialIDs("id")))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	h.executeSteps(ctx, scenario.Steps, result)

	n, err := h.reader(scenario.Kind).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("final count: %w", err)
	}
	result.FinalCount = n

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		Readers: h.reader,
		Kind:    scenario.Kind,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	cfgs, err := scenario.ListenerConfigs()
	if err != nil {
		return nil, fmt.Errorf("listeners: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewStepClock(testutil.Epoch, time.Millisecond)

	h := &Harness{
		store:    st,
		recorder: listeners.NewRecorder(),
		readers:  make(map[string]*records.Reader),
		kind:     scenario.Kind,
	}

	// Delays advance the wall clock instead of blocking.
	sleeper := func(_ context.Context, d time.Duration) error {
		clock.Advance(d)
		return nil
	}

	b := dispatch.NewBuilder()
	err = listeners.Register(b, cfgs, func(kind string) listeners.Counter { return h.reader(kind) },
		listeners.WithSleeper(sleeper),
		listeners.WithNow(clock.Now),
		listeners.WithRecorder(h.recorder),
		listeners.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("listeners: %w", err)
	}

	d := dispatch.NewDispatcher(b.Build(), dispatch.WithLogger(logger))
	rs := records.New(st, d,
		records.WithKind(scenario.Kind),
		records.WithClock(record.NewClock()),
		records.WithIDGenerator(testutil.NewSequentialIDs("rec")),
		records.WithNow(clock.Now),
		records.WithLogger(logger),
	)
	txm := txn.NewManager(st,
		txn.WithIDGenerator(testutil.NewSequentialIDs("scope")),
		txn.WithLogger(logger),
	)
	h.service = entry.NewService(txm, rs,
		entry.WithExecutionIDs(testutil.NewSequentialIDs("exec")),
		entry.WithNow(clock.Now),
		entry.WithLogger(logger),
	)

	return h, nil
}

// reader returns the cached Reader for kind.
func (h *Harness) reader(kind string) *records.Reader {
	r, ok := h.readers[kind]
	if !ok {
		r = records.NewReader(h.store, kind)
		h.readers[kind] = r
	}
	return r
}

// executeSteps runs every step and records it in the trace. Failures of the
// entry point are part of the trace, not errors of the run.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		var out entry.Outcome
		if step.Explicit {
			out = h.service.TriggerCreateInExplicitTransaction(ctx, step.Create)
		} else {
			out = h.service.TriggerCreate(ctx, step.Create)
		}

		ev := TraceEvent{
			Step:        i + 1,
			ExecutionID: out.ExecutionID,
			Name:        out.Name,
			Explicit:    out.Explicit,
			Listeners:   []ListenerTrace{},
			Status:      string(out.Status),
			CountAfter:  out.CountAfter,
			ErrorKind:   entry.Classify(out.Err),
			Error:       out.Error,
		}
		if out.Record != nil {
			ev.RecordID = out.Record.ID
			ev.Seq = out.Record.Seq
		}
		for _, obs := range h.recorder.ForExecution(out.ExecutionID) {
			ev.Listeners = append(ev.Listeners, ListenerTrace{
				Listener: obs.Listener,
				Count:    obs.Count,
				Error:    obs.Err,
			})
		}
		result.Trace = append(result.Trace, ev)

		if step.Expect != nil {
			for _, msg := range checkExpect(i, step.Expect, ev) {
				result.AddError(msg)
			}
		}
	}
}

func checkExpect(index int, want *Expect, got TraceEvent) []string {
	var errs []string
	if want.Status != got.Status {
		errs = append(errs, fmt.Sprintf("step %d (%s): expected status %s, got %s (%s)",
			index+1, got.Name, want.Status, got.Status, got.Error))
	}
	if want.Error != "" && want.Error != got.ErrorKind {
		errs = append(errs, fmt.Sprintf("step %d (%s): expected error %s, got %q",
			index+1, got.Name, want.Error, got.ErrorKind))
	}
	if want.CountAfter != nil && *want.CountAfter != got.CountAfter {
		errs = append(errs, fmt.Sprintf("step %d (%s): expected count_after %d, got %d",
			index+1, got.Name, *want.CountAfter, got.CountAfter))
	}
	return errs
}
