// Package effigy runs a set of shell commands side by side under a tabbed
// terminal UI and shuts them all down together when the session ends.
package effigy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/inflatable-cookie/effigy-sub000/internal/config"
	"github.com/inflatable-cookie/effigy-sub000/internal/env"
	"github.com/inflatable-cookie/effigy-sub000/internal/history/factory"
	"github.com/inflatable-cookie/effigy-sub000/internal/logger"
	"github.com/inflatable-cookie/effigy-sub000/internal/metrics"
	"github.com/inflatable-cookie/effigy-sub000/internal/process"
	"github.com/inflatable-cookie/effigy-sub000/internal/server"
	"github.com/inflatable-cookie/effigy-sub000/internal/session"
)

// Re-exported so callers never import internal packages.
type (
	Spec      = process.Spec
	Outcome   = session.Outcome
	Failure   = session.Failure
	Toggles   = config.Toggles
	LogConfig = logger.Config
)

// TraceFile is the log file used when diagnostics are on and no log file is
// configured.
var TraceFile = filepath.Join(os.TempDir(), "effigy-tui-trace.log")

// Options configure one session.
type Options struct {
	TabOrder          []string
	DismissOnComplete bool
	ShellTab          string
	ShutdownTimeout   time.Duration
	// Env is applied to every child as KEY=VALUE pairs.
	Env     []string
	Toggles Toggles
	Log     LogConfig

	HistoryDSN    string
	MetricsListen string

	// Summary receives the final report; nil selects stdout.
	Summary io.Writer
	// Screen overrides the terminal; nil opens the controlling terminal.
	Screen tcell.Screen
}

// OptionsFromConfig maps a loaded session file onto Options.
func OptionsFromConfig(c *config.Config, t config.Toggles) Options {
	return Options{
		TabOrder:          c.TabOrder,
		DismissOnComplete: c.DismissOnComplete,
		ShellTab:          c.ShellTab,
		ShutdownTimeout:   c.ShutdownTimeout,
		Env:               c.Env,
		Toggles:           t,
		Log:               c.Log,
		HistoryDSN:        c.HistoryDSN,
		MetricsListen:     c.MetricsListen,
	}
}

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

func metricsRegistry() (*prometheus.Registry, error) {
	var err error
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		err = metrics.Register(registry)
	})
	return registry, err
}

// Run spawns specs relative to root and drives the session until it ends.
// Errors before the terminal is taken over (bad spec, unreachable journal,
// failed spawn) are returned with an empty Outcome.
func Run(ctx context.Context, root string, specs []Spec, opts Options) (Outcome, error) {
	logCfg := opts.Log
	if opts.Toggles.Diagnostics {
		if logCfg.File == "" {
			logCfg.File = TraceFile
		}
		logCfg.Level = "debug"
	}
	log, closer := logger.New(logCfg)
	defer func() { _ = closer.Close() }()

	var gatherer prometheus.Gatherer
	if opts.Toggles.Diagnostics || opts.MetricsListen != "" {
		reg, err := metricsRegistry()
		if err != nil {
			return Outcome{}, fmt.Errorf("register metrics: %w", err)
		}
		gatherer = reg
	}

	scr := opts.Screen
	if scr == nil {
		var err error
		if scr, err = tcell.NewScreen(); err != nil {
			return Outcome{}, fmt.Errorf("open terminal: %w", err)
		}
	}

	supOpts := []process.Option{process.WithLogger(log), process.WithEnv(sessionEnv(opts.Env))}
	if opts.HistoryDSN != "" {
		sink, err := factory.NewSinkFromDSN(opts.HistoryDSN)
		if err != nil {
			return Outcome{}, fmt.Errorf("open history %s: %w", redact(opts.HistoryDSN), err)
		}
		supOpts = append(supOpts, process.WithHistory(sink))
	}

	log.Info("session starting", "root", root, "processes", len(specs), "diagnostics", opts.Toggles.Diagnostics)
	sup, err := process.Spawn(root, specs, supOpts...)
	if err != nil {
		return Outcome{}, err
	}
	defer sup.Close()

	if opts.MetricsListen != "" {
		srv, err := server.NewServer(opts.MetricsListen, "", sup, gatherer, log)
		if err != nil {
			sup.TerminateAllGracefulWithProgress(opts.ShutdownTimeout, nil)
			return Outcome{}, fmt.Errorf("listen %s: %w", opts.MetricsListen, err)
		}
		log.Info("diagnostics endpoint listening", "addr", srv.Addr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	return session.Run(ctx, sup, scr, specs, session.Options{
		TabOrder:          opts.TabOrder,
		DismissOnComplete: opts.DismissOnComplete,
		ShellTab:          opts.ShellTab,
		ShutdownTimeout:   opts.ShutdownTimeout,
		Diagnostics:       opts.Toggles.Diagnostics,
		DisableEmulation:  opts.Toggles.DisableVT100,
		Logger:            log,
		Summary:           opts.Summary,
		Gatherer:          gatherer,
	})
}

func sessionEnv(kvs []string) *env.Env {
	e := env.New()
	e.FromOS()
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			e.Set(k, v)
		}
	}
	return e
}

// redact hides the userinfo part of a DSN.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://***@" + rest[at+1:]
	}
	return dsn
}
