package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"stowage/internal/blob"
	"stowage/internal/config"
	"stowage/internal/core"
	"stowage/internal/events"
	"stowage/internal/logging"
	"stowage/internal/metrics"
)

// globalFlags are accepted by every command.
type globalFlags struct {
	configPath string
	user       string
	trace      bool
}

func newFlagSet(name, usage string) (*flag.FlagSet, *globalFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	g := &globalFlags{}
	fs.StringVar(&g.configPath, "config", os.Getenv("STOWAGE_CONFIG"), "Path to configuration file")
	fs.StringVar(&g.user, "user", "", "Acting user recorded on events (default: system)")
	fs.BoolVar(&g.trace, "trace", false, "Write JSON trace spans to stderr")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: stowage %s [options]\n\n%s\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs, g
}

// station bundles the service with the backends a command needs.
type station struct {
	cfg      *config.Config
	logger   *zap.Logger
	svc      *core.Service
	store    core.PersistentStore
	sink     events.Sink
	registry *prometheus.Registry
	expvar   *core.ExpvarRecorder
	closers  []func() error
}

func openStation(ctx context.Context, g *globalFlags) (*station, context.Context, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, ctx, err
	}
	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return nil, ctx, err
	}
	st := &station{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	st.closers = append(st.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	engine := cfg.EngineConfig()
	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine(engine.WasteZones...), cfg.StorageOptions())
	if err != nil {
		st.Close()
		return nil, ctx, fmt.Errorf("open storage: %w", err)
	}
	st.store = store
	if c, ok := store.(io.Closer); ok {
		st.closers = append(st.closers, c.Close)
	}

	if st.sink, err = st.openSink(); err != nil {
		st.Close()
		return nil, ctx, err
	}

	opts := []core.ServiceOption{
		core.WithLogger(logging.NewCore(logger)),
		core.WithMetricsRecorder(st.metricsRecorder()),
		core.WithEventSink(st.sink),
		core.WithEngineConfig(engine),
	}
	if g.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(os.Stderr)))
	}
	st.svc = core.NewService(store, opts...)
	if g.user != "" {
		ctx = core.WithUserID(ctx, g.user)
	}
	return st, ctx, nil
}

func (st *station) metricsRecorder() core.MetricsRecorder {
	obs := st.cfg.Observability
	if obs.Metrics == config.MetricsExpvar {
		st.expvar = core.NewExpvarRecorder(obs.MetricsNamespace)
		return st.expvar
	}
	return metrics.NewPrometheusRecorder(st.registry, obs.MetricsNamespace)
}

func (st *station) writeMetrics(path string) error {
	if st.expvar == nil {
		return metrics.WriteTextfile(path, st.registry)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := st.expvar.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (st *station) openSink() (events.Sink, error) {
	switch st.cfg.Events.Driver {
	case config.EventsMemory:
		return events.NewMemory(), nil
	case config.EventsNATS:
		sink, err := events.DialNATS(st.cfg.NATSConfig())
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, sink.Close)
		return events.Multi{sink, events.NewLogSink(st.logger)}, nil
	default:
		return events.NewLogSink(st.logger), nil
	}
}

func (st *station) openBlob(ctx context.Context) (blob.Store, error) {
	return blob.Open(ctx, st.cfg.BlobConfig())
}

// Close flushes metrics and releases backends in reverse order.
func (st *station) Close() error {
	var errs []error
	if path := st.cfg.Observability.MetricsFile; path != "" {
		if err := st.writeMetrics(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	st.closers = nil
	return errors.Join(errs...)
}

// withStation opens the station, runs fn and closes it, keeping the first
// error.
func withStation(ctx context.Context, g *globalFlags, fn func(context.Context, *station) error) (err error) {
	st, ctx, err := openStation(ctx, g)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, st)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
