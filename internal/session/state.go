package session

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inflatable-cookie/effigy-sub000/internal/metrics"
	"github.com/inflatable-cookie/effigy-sub000/internal/process"
)

// DefaultShellTab names the tab that accepts shell capture.
const DefaultShellTab = "shell"

// DefaultShutdownTimeout bounds the graceful phase of shutdown.
const DefaultShutdownTimeout = 3 * time.Second

// Options are fixed for the lifetime of a session.
type Options struct {
	// TabOrder lists tab names first; remaining processes follow in spawn order.
	TabOrder []string
	// DismissOnComplete lets Enter or Esc end the session once every process exited.
	DismissOnComplete bool
	ShellTab          string
	ShutdownTimeout   time.Duration
	// Diagnostics enables trace logging and the counter report.
	Diagnostics bool
	// DisableEmulation keeps every tab on the line path.
	DisableEmulation bool
	Logger           *slog.Logger
	// Summary receives the final report after the terminal is restored.
	// Nil selects stdout.
	Summary io.Writer
	// Gatherer supplies the counter report when Diagnostics is on.
	Gatherer prometheus.Gatherer
}

func (o Options) withDefaults() Options {
	if o.ShellTab == "" {
		o.ShellTab = DefaultShellTab
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Summary == nil {
		o.Summary = os.Stdout
	}
	return o
}

// Mode is the input routing mode.
type Mode int

const (
	ModeCommand Mode = iota
	ModeInsert
	ModeShellCapture
)

func (m Mode) String() string {
	switch m {
	case ModeCommand:
		return "COMMAND"
	case ModeInsert:
		return "INSERT"
	case ModeShellCapture:
		return "SHELL"
	default:
		return "?"
	}
}

// Overlay is a modal panel drawn over the output pane.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayHelp
	OverlayOptions
)

// State is everything the render loop mutates between frames.
type State struct {
	opts Options
	tabs []*tab
	// index into tabs by process name
	byName map[string]int
	active int

	mode      Mode
	overlay   Overlay
	optionSel int
	input     []rune

	quit bool
	live []Failure
}

// newState lays out tabs for specs honoring opts.TabOrder.
func newState(specs []process.Spec, opts Options, now time.Time) *State {
	opts = opts.withDefaults()
	s := &State{opts: opts, byName: make(map[string]int, len(specs))}

	bySpec := make(map[string]process.Spec, len(specs))
	for _, sp := range specs {
		bySpec[sp.Name] = sp
	}
	add := func(sp process.Spec) {
		if _, ok := s.byName[sp.Name]; ok {
			return
		}
		s.byName[sp.Name] = len(s.tabs)
		s.tabs = append(s.tabs, newTab(sp.Name, sp.PTY, now))
	}
	for _, name := range opts.TabOrder {
		if sp, ok := bySpec[name]; ok {
			add(sp)
		}
	}
	for _, sp := range specs {
		add(sp)
	}
	return s
}

func (s *State) current() *tab {
	if len(s.tabs) == 0 {
		return nil
	}
	return s.tabs[s.active]
}

func (s *State) onShellTab() bool {
	t := s.current()
	return t != nil && t.name == s.opts.ShellTab
}

func (s *State) allExited() bool {
	for _, t := range s.tabs {
		if !t.exited() {
			return false
		}
	}
	return len(s.tabs) > 0
}

// Ingest routes one supervisor event to its tab. cols and rows size a newly
// created emulator.
func (s *State) Ingest(ev process.Event, cols, rows int) {
	i, ok := s.byName[ev.Process]
	if !ok {
		return
	}
	t := s.tabs[i]
	if t.stale(ev.Instance) {
		counter := metrics.StaleOutput
		if ev.Kind == process.Exit {
			counter = metrics.StaleExits
		}
		metrics.Inc(counter)
		if s.opts.Diagnostics {
			s.opts.Logger.Debug("dropped event from replaced instance", "process", t.name,
				"kind", ev.Kind.String(), "instance", ev.Instance, "current", t.instance)
		}
		return
	}
	switch ev.Kind {
	case process.StdoutChunk, process.StderrChunk:
		metrics.Inc(metrics.Chunks)
		created := t.emu == nil
		if t.ingestChunk(ev.Chunk, s.opts.DisableEmulation, cols, rows) && created && s.opts.Diagnostics {
			s.opts.Logger.Debug("emulator attached", "process", t.name)
		}
	case process.Stdout, process.Stderr:
		metrics.Inc(metrics.Lines)
		if t.path == pathEmulator {
			return
		}
		kind := EntryStdout
		if ev.Kind == process.Stderr {
			kind = EntryStderr
		}
		t.ingestLine(kind, ev.Payload)
	case process.Exit:
		metrics.Inc(metrics.ExitEvents)
		if t.ingestExit(ev.Payload) {
			metrics.Inc(metrics.StaleExits)
			if s.opts.Diagnostics {
				s.opts.Logger.Debug("dropped stale exit", "process", t.name, "diagnostic", ev.Payload)
			}
			return
		}
		if IsFailure(ev.Payload) {
			s.live = append(s.live, Failure{Name: t.name, Diagnostic: ev.Payload})
		}
	}
}

func (s *State) setMode(m Mode) {
	if s.mode == m {
		return
	}
	if s.opts.Diagnostics {
		s.opts.Logger.Debug("mode change", "from", s.mode.String(), "to", m.String())
	}
	s.mode = m
	if m != ModeInsert {
		s.input = s.input[:0]
	}
}

func (s *State) selectTab(i int) {
	if i < 0 || i >= len(s.tabs) || i == s.active {
		return
	}
	s.active = i
	if s.mode == ModeShellCapture && !s.onShellTab() {
		s.setMode(ModeCommand)
	}
}
