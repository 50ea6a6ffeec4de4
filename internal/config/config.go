// Package config loads txsignal configuration from CUE.
//
// A configuration names the entity kind the entry points create, the default
// database path, and the ordered listener set. Every document is unified with
// an embedded schema before it is read, so defaults and constraints live in
// CUE rather than in Go.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE []byte

//go:embed default.cue
var defaultCUE []byte

// Config is the application configuration.
type Config struct {
	Kind      string
	Database  string
	Listeners []Listener

	// FanoutLimit caps concurrent fan-out executions. 0 is unbounded.
	FanoutLimit int
}

// Listener configures one Demo listener.
type Listener struct {
	Name   string
	Event  string
	Source string

	// CountKind is the kind whose visible count the listener reports.
	// Defaults to Source.
	CountKind string

	Delay  time.Duration
	FailOn []string
}

// LoadError is a configuration error with its CUE position, when known.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	return Parse(defaultCUE, "default.cue")
}

// Load reads and parses a CUE configuration file.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, path)
}

// Parse compiles src against the schema and extracts the configuration.
func Parse(src []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	doc := ctx.CompileBytes(src, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("compile: %v", err)}
	}

	value := schema.Unify(doc)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("validate: %v", err)}
	}

	cfg := &Config{}
	var err error
	if cfg.Kind, err = lookupString(value, "kind"); err != nil {
		return nil, err
	}
	if cfg.Database, err = lookupString(value, "database"); err != nil {
		return nil, err
	}
	limit, err := value.LookupPath(cue.ParsePath("fanout_limit")).Int64()
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("fanout_limit: %v", err)}
	}
	cfg.FanoutLimit = int(limit)

	iter, err := value.LookupPath(cue.ParsePath("listeners")).List()
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("listeners: %v", err)}
	}
	for iter.Next() {
		l, err := extractListener(iter.Value())
		if err != nil {
			return nil, err
		}
		cfg.Listeners = append(cfg.Listeners, l)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func extractListener(v cue.Value) (Listener, error) {
	var l Listener
	var err error

	if l.Name, err = lookupString(v, "name"); err != nil {
		return l, err
	}
	if l.Event, err = lookupString(v, "event"); err != nil {
		return l, err
	}
	if l.Source, err = lookupString(v, "source"); err != nil {
		return l, err
	}

	l.CountKind = l.Source
	if ck := v.LookupPath(cue.ParsePath("count_kind")); ck.Exists() {
		if l.CountKind, err = ck.String(); err != nil {
			return l, &LoadError{Message: fmt.Sprintf("count_kind: %v", err), Pos: ck.Pos()}
		}
	}

	delay, err := lookupString(v, "delay")
	if err != nil {
		return l, err
	}
	if l.Delay, err = time.ParseDuration(delay); err != nil {
		return l, &LoadError{
			Message: fmt.Sprintf("listener %q: delay: %v", l.Name, err),
			Pos:     v.LookupPath(cue.ParsePath("delay")).Pos(),
		}
	}

	failOn := v.LookupPath(cue.ParsePath("fail_on"))
	iter, err := failOn.List()
	if err != nil {
		return l, &LoadError{Message: fmt.Sprintf("fail_on: %v", err), Pos: failOn.Pos()}
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return l, &LoadError{Message: fmt.Sprintf("fail_on: %v", err), Pos: iter.Value().Pos()}
		}
		l.FailOn = append(l.FailOn, s)
	}

	return l, nil
}

func lookupString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", &LoadError{Message: fmt.Sprintf("missing field %q", path), Pos: v.Pos()}
	}
	s, err := f.String()
	if err != nil {
		return "", &LoadError{Message: fmt.Sprintf("%s: %v", path, err), Pos: f.Pos()}
	}
	return s, nil
}

// Validate checks constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Kind == "" {
		return &LoadError{Message: "kind must not be empty"}
	}
	if c.FanoutLimit < 0 {
		return &LoadError{Message: fmt.Sprintf("negative fanout limit %d", c.FanoutLimit)}
	}

	seen := make(map[string]bool, len(c.Listeners))
	for _, l := range c.Listeners {
		if seen[l.Name] {
			return &LoadError{Message: fmt.Sprintf("duplicate listener %q", l.Name)}
		}
		seen[l.Name] = true

		if l.Delay < 0 {
			return &LoadError{Message: fmt.Sprintf("listener %q: negative delay %s", l.Name, l.Delay)}
		}
		if l.Source == "" || l.CountKind == "" {
			return &LoadError{Message: fmt.Sprintf("listener %q: source and count kind must not be empty", l.Name)}
		}
	}
	return nil
}
