package session

import (
	"strings"
	"time"

	"github.com/inflatable-cookie/effigy-sub000/internal/ansi"
	"github.com/inflatable-cookie/effigy-sub000/internal/metrics"
	"github.com/inflatable-cookie/effigy-sub000/internal/vt"
)

// MaxLogEntries caps each tab's line buffer.
const MaxLogEntries = 2000

// EntryKind is the origin of a stored log line.
type EntryKind int

const (
	EntryStdout EntryKind = iota
	EntryStderr
	EntryExit
)

// LogEntry is one stored output line.
type LogEntry struct {
	Kind EntryKind
	Text string
	// Notice marks lines written by the session itself (errors, restarts).
	Notice bool
}

// ExitState is the terminal state of a tab's current process instance.
type ExitState int

const (
	Running ExitState = iota
	Succeeded
	Stopped
	Failed
)

func (s ExitState) String() string {
	switch s {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func classify(diag string) ExitState {
	switch {
	case IsSuccess(diag):
		return Succeeded
	case IsExpectedShutdown(diag):
		return Stopped
	default:
		return Failed
	}
}

// renderPath selects how a tab's output is drawn. It starts as pathLines and
// moves to pathEmulator at most once.
type renderPath int

const (
	pathLines renderPath = iota
	pathEmulator
)

// tab is the UI state of one managed process.
type tab struct {
	name string
	pty  bool

	log     []LogEntry
	offset  int
	follow  bool
	lastMax int // max offset of the last built frame

	outputSeen bool
	// instance is the run whose events the tab accepts; 0 when the
	// controller does not number runs.
	instance int
	// restartPending marks an unnumbered restart whose predecessor's exit
	// has not arrived yet.
	restartPending bool
	startedAt      time.Time
	restarts       int
	exit           ExitState
	exitDiag       string

	path renderPath
	emu  *vt.Emulator
	// last size pushed to the child's pty
	ptyCols, ptyRows int
}

func newTab(name string, pty bool, now time.Time) *tab {
	return &tab{name: name, pty: pty, follow: true, startedAt: now}
}

func (t *tab) push(e LogEntry) {
	t.log = append(t.log, e)
	if over := len(t.log) - MaxLogEntries; over > 0 {
		t.log = append(t.log[:0:0], t.log[over:]...)
		t.offset -= over
		if t.offset < 0 {
			t.offset = 0
		}
	}
}

// replaceLast rewrites the newest entry of kind, or appends when none exists.
func (t *tab) replaceLast(kind EntryKind, text string) {
	for i := len(t.log) - 1; i >= 0; i-- {
		if t.log[i].Kind == kind && !t.log[i].Notice {
			t.log[i].Text = text
			return
		}
	}
	t.push(LogEntry{Kind: kind, Text: text})
}

// ingestLine applies one line event to the line buffer. Live-update output is
// approximated: an unterminated carriage-return rewrite or a leading cursor-up
// replaces the previous entry of the same kind instead of appending.
func (t *tab) ingestLine(kind EntryKind, payload string) {
	t.markOutput()
	terminated := strings.HasSuffix(payload, "\n")
	text := strings.TrimSuffix(payload, "\n")
	text = strings.TrimSuffix(text, "\r")
	text = ansi.Sanitize(text)

	if rest, ok := ansi.LeadingCursorUp(text); ok {
		t.replaceLast(kind, render(rest))
		return
	}
	if !terminated && strings.Contains(text, "\r") {
		t.replaceLast(kind, render(text))
		return
	}
	t.push(LogEntry{Kind: kind, Text: render(text)})
}

// render reduces raw line text to what the line path stores: carriage
// returns collapsed and non-SGR sequences stripped.
func render(s string) string {
	return ansi.StripCursorSequences(ansi.CollapseCR(s))
}

// ingestChunk feeds raw bytes to the emulator, switching the tab to the
// emulator path on first use. It reports whether the chunk was consumed.
func (t *tab) ingestChunk(b []byte, disableEmulation bool, cols, rows int) bool {
	if disableEmulation || !t.pty {
		return false
	}
	t.markOutput()
	if t.path == pathLines {
		t.path = pathEmulator
	}
	if t.emu == nil {
		t.emu = vt.New(cols, rows, vt.DefaultHistory)
	}
	t.emu.Write(b)
	return true
}

// ingestExit records an exit diagnostic. It reports discarded=true when the
// exit belongs to an instance replaced by a restart. Without run numbers the
// first exit after a restart is taken to be the old instance's.
func (t *tab) ingestExit(diag string) (discarded bool) {
	if t.restartPending {
		t.restartPending = false
		if IsSuccess(diag) || IsExpectedShutdown(diag) {
			return true
		}
	}
	if t.exit == Running {
		t.exit = classify(diag)
		t.exitDiag = diag
	}
	t.push(LogEntry{Kind: EntryExit, Text: "process exited (" + diag + ")"})
	return false
}

func (t *tab) markOutput() { t.outputSeen = true }

// stale reports whether an event stamped with instance comes from a run the
// tab has already moved past.
func (t *tab) stale(instance int) bool {
	return instance > 0 && instance < t.instance
}

// restarted resets per-instance state after a successful restart. instance is
// the new run number, or 0 when runs are not numbered; then an exit still
// owed by the old run is expected only if the tab never saw it.
func (t *tab) restarted(now time.Time, instance int) {
	t.restartPending = instance == 0 && t.exit == Running
	t.instance = instance
	t.exit = Running
	t.exitDiag = ""
	t.outputSeen = false
	t.restarts++
	t.startedAt = now
	if t.emu != nil {
		cols, rows := t.emu.Size()
		t.emu = vt.New(cols, rows, vt.DefaultHistory)
		metrics.Inc(metrics.EmulatorResets)
	}
	t.push(LogEntry{Kind: EntryExit, Text: "restarted", Notice: true})
}

func (t *tab) notice(text string) {
	t.push(LogEntry{Kind: EntryStderr, Text: text, Notice: true})
}

func (t *tab) exited() bool { return t.exit != Running }
