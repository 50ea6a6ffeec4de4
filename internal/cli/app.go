package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/txsignal/internal/config"
	"github.com/roach88/txsignal/internal/dispatch"
	"github.com/roach88/txsignal/internal/entry"
	"github.com/roach88/txsignal/internal/listeners"
	"github.com/roach88/txsignal/internal/metrics"
	"github.com/roach88/txsignal/internal/record"
	"github.com/roach88/txsignal/internal/records"
	"github.com/roach88/txsignal/internal/store"
	"github.com/roach88/txsignal/internal/txn"
)

// app is the fully wired stack behind the record commands.
type app struct {
	opts     *RootOptions
	cfg      *config.Config
	dbPath   string
	logger   *slog.Logger
	store    *store.Store
	reader   *records.Reader
	service  *entry.Service
	recorder *listeners.Recorder
	registry *prometheus.Registry
	stderr   io.Writer
}

// loadConfig reads --config or falls back to the built-in configuration,
// then applies --delay.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.Config != "" {
		cfg, err = config.Load(opts.Config)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if opts.DelaySet {
		for i := range cfg.Listeners {
			cfg.Listeners[i].Delay = opts.Delay
		}
	}
	return cfg, nil
}

// newLogger builds the text logger on stderr. Debug level with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp opens the database and wires store, scopes, dispatcher, listeners
// and entry points. Callers must call close.
func openApp(ctx context.Context, opts *RootOptions, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger := newLogger(opts, stderr)

	dbPath := cfg.Database
	if opts.Database != "" {
		dbPath = opts.Database
	}

	logger.Debug("opening database", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	// Resume the logical clock after the highest committed seq.
	maxSeq, err := st.MaxSeq(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read database", err)
	}

	a := &app{
		opts:     opts,
		cfg:      cfg,
		dbPath:   dbPath,
		logger:   logger,
		store:    st,
		reader:   records.NewReader(st, cfg.Kind),
		recorder: listeners.NewRecorder(),
		registry: prometheus.NewRegistry(),
		stderr:   stderr,
	}
	m := metrics.New(a.registry)

	readers := map[string]*records.Reader{cfg.Kind: a.reader}
	counterFor := func(kind string) listeners.Counter {
		r, ok := readers[kind]
		if !ok {
			r = records.NewReader(st, kind)
			readers[kind] = r
		}
		return r
	}

	b := dispatch.NewBuilder()
	if err := listeners.Register(b, cfg.Listeners, counterFor,
		listeners.WithLogger(logger),
		listeners.WithRecorder(a.recorder),
	); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to register listeners", err)
	}
	registry := b.Build()
	logger.Debug("listeners registered", "count", registry.Len())

	d := dispatch.NewDispatcher(registry, dispatch.WithLogger(logger), dispatch.WithMetrics(m))
	rs := records.New(st, d,
		records.WithKind(cfg.Kind),
		records.WithClock(record.NewClockAt(maxSeq)),
		records.WithLogger(logger),
	)
	txm := txn.NewManager(st, txn.WithLogger(logger), txn.WithMetrics(m))
	a.service = entry.NewService(txm, rs,
		entry.WithLogger(logger),
		entry.WithFanoutLimit(cfg.FanoutLimit),
	)

	return a, nil
}

// close releases the database and prints metrics when requested.
func (a *app) close() {
	if a.opts.Metrics {
		if err := writeMetrics(a.stderr, a.registry); err != nil {
			a.logger.Error("error writing metrics", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// writeMetrics renders every gathered family in the Prometheus text format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
