package metrics

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "effigy"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful process spawns.",
		}, []string{"name"},
	)
	processRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Number of user-triggered restarts.",
		}, []string{"name"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of stops, labelled by whether SIGKILL was needed.",
		}, []string{"name", "forced"},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Observed process exits by diagnostic.",
		}, []string{"name", "diagnostic"},
	)

	sessionCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Render loop counters (frames, keypresses, chunks, lines, exits, emulator resets).",
		}, []string{"counter"},
	)
)

// Session counter names.
const (
	Frames         = "frames"
	Keypresses     = "keypresses"
	Chunks         = "chunks"
	Lines          = "lines"
	ExitEvents     = "exit_events"
	EmulatorResets = "emulator_resets"
	StaleExits     = "stale_exits"
	StaleOutput    = "stale_output"
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{processStarts, processRestarts, processStops, processExits, sessionCounters}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Enabled reports whether Register has succeeded.
func Enabled() bool { return regOK.Load() }

// Handler returns an http.Handler serving the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		processRestarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string, forced bool) {
	if regOK.Load() {
		f := "false"
		if forced {
			f = "true"
		}
		processStops.WithLabelValues(name, f).Inc()
	}
}

func IncExit(name, diagnostic string) {
	if regOK.Load() {
		processExits.WithLabelValues(name, diagnostic).Inc()
	}
}

// Inc bumps one of the session counters.
func Inc(counter string) {
	if regOK.Load() {
		sessionCounters.WithLabelValues(counter).Inc()
	}
}

// Add adds n to one of the session counters.
func Add(counter string, n int) {
	if regOK.Load() && n > 0 {
		sessionCounters.WithLabelValues(counter).Add(float64(n))
	}
}

// SessionSnapshot gathers the session counters from g keyed by counter name.
func SessionSnapshot(g prometheus.Gatherer) (map[string]float64, error) {
	mfs, err := g.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range mfs {
		if mf.GetName() != namespace+"_session_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "counter" {
					out[lp.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	return out, nil
}

// FormatSnapshot renders a snapshot as "k=v" pairs in a stable order.
func FormatSnapshot(s map[string]float64) string {
	order := []string{Frames, Keypresses, Chunks, Lines, ExitEvents, EmulatorResets, StaleExits, StaleOutput}
	seen := make(map[string]bool, len(order))
	parts := make([]string, 0, len(s))
	for _, k := range order {
		seen[k] = true
		parts = append(parts, k+"="+formatCount(s[k]))
	}
	var extra []string
	for k := range s {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		parts = append(parts, k+"="+formatCount(s[k]))
	}
	return strings.Join(parts, " ")
}

func formatCount(v float64) string {
	return strconv.FormatInt(int64(v), 10)
}
