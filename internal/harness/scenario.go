package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/txsignal/internal/config"
	"github.com/roach88/txsignal/internal/entry"
	"github.com/roach88/txsignal/internal/record"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Kind is the entity kind the steps create. Defaults to MyModel.
	Kind string `yaml:"kind,omitempty"`

	// Listeners are registered in order before any step runs.
	Listeners []ListenerSpec `yaml:"listeners,omitempty"`

	// Steps run sequentially, each in its own execution context.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final durable state.
	Assertions []Assertion `yaml:"assertions"`
}

// ListenerSpec is the YAML form of config.Listener.
type ListenerSpec struct {
	Name      string   `yaml:"name"`
	Event     string   `yaml:"event,omitempty"`
	Source    string   `yaml:"source,omitempty"`
	CountKind string   `yaml:"count_kind,omitempty"`
	Delay     string   `yaml:"delay,omitempty"`
	FailOn    []string `yaml:"fail_on,omitempty"`
}

// Step invokes one entry point.
type Step struct {
	// Create is the record name passed to the entry point.
	Create string `yaml:"create"`

	// Explicit selects TriggerCreateInExplicitTransaction.
	Explicit bool `yaml:"explicit,omitempty"`

	// Expect validates the outcome. If nil, any outcome is accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Status is "committed" or "rolled_back".
	Status string `yaml:"status"`

	// Error is the expected entry.Classify kind. Empty means no check.
	Error string `yaml:"error,omitempty"`

	// CountAfter is the expected committed count once the scope closed.
	CountAfter *int `yaml:"count_after,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type selects the assertion; see the Assert* constants.
	Type string `yaml:"type"`

	// Listener is used by invocation_count and listener_saw.
	Listener string `yaml:"listener,omitempty"`

	// Listeners is the expected order (dispatch_order).
	Listeners []string `yaml:"listeners,omitempty"`

	// Record is the record name a listener handled (listener_saw).
	Record string `yaml:"record,omitempty"`

	// Count is used by invocation_count, listener_saw and final_count.
	Count int `yaml:"count"`

	// Kind overrides the scenario kind (final_count).
	Kind string `yaml:"kind,omitempty"`

	// Table, Where and Expect are used by final_state. Where must match
	// exactly one row; Expect is a subset match on its columns.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertDispatchOrder   = "dispatch_order"
	AssertInvocationCount = "invocation_count"
	AssertListenerSaw     = "listener_saw"
	AssertFinalCount      = "final_count"
	AssertFinalState      = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Kind == "" {
		scenario.Kind = record.DefaultKind
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// ListenerConfigs converts the scenario's listeners to configuration
// entries, applying the same defaults as the CUE schema.
func (s *Scenario) ListenerConfigs() ([]config.Listener, error) {
	out := make([]config.Listener, 0, len(s.Listeners))
	for i, l := range s.Listeners {
		c := config.Listener{
			Name:      l.Name,
			Event:     l.Event,
			Source:    l.Source,
			CountKind: l.CountKind,
			FailOn:    l.FailOn,
		}
		if c.Event == "" {
			c.Event = "created"
		}
		if c.Source == "" {
			c.Source = s.Kind
		}
		if c.CountKind == "" {
			c.CountKind = c.Source
		}
		if l.Delay != "" {
			d, err := time.ParseDuration(l.Delay)
			if err != nil {
				return nil, fmt.Errorf("listeners[%d]: delay: %w", i, err)
			}
			c.Delay = d
		}
		out = append(out, c)
	}

	cfg := config.Config{Kind: s.Kind, Listeners: out}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}

	if s.Description == "" {
		return errors.New("description is required")
	}

	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	for i, l := range s.Listeners {
		if l.Name == "" {
			return fmt.Errorf("listeners[%d]: name is required", i)
		}
		if l.Event != "" && l.Event != "created" {
			return fmt.Errorf("listeners[%d]: unknown event %q", i, l.Event)
		}
	}
	if _, err := s.ListenerConfigs(); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if step.Expect == nil {
			continue
		}
		switch entry.Status(step.Expect.Status) {
		case entry.StatusCommitted, entry.StatusRolledBack:
		default:
			return fmt.Errorf("steps[%d].expect: status must be %q or %q", i, entry.StatusCommitted, entry.StatusRolledBack)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDispatchOrder:
		if len(a.Listeners) == 0 {
			return fmt.Errorf("assertions[%d]: listeners list is required for dispatch_order", index)
		}
	case AssertInvocationCount:
		if a.Listener == "" {
			return fmt.Errorf("assertions[%d]: listener is required for invocation_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for invocation_count", index)
		}
	case AssertListenerSaw:
		if a.Listener == "" || a.Record == "" {
			return fmt.Errorf("assertions[%d]: listener and record are required for listener_saw", index)
		}
	case AssertFinalCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for final_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
