package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inflatable-cookie/effigy-sub000/internal/env"
	"github.com/inflatable-cookie/effigy-sub000/internal/history"
	"github.com/inflatable-cookie/effigy-sub000/internal/metrics"
)

const (
	eventBuffer     = 4096
	readBufferSize  = 4096
	exitPollEvery   = 40 * time.Millisecond
	termPollEvery   = 20 * time.Millisecond
	termGrace       = 800 * time.Millisecond
	killGrace       = 500 * time.Millisecond
	shutdownPollFor = 50 * time.Millisecond
)

// Supervisor owns a set of child processes and multiplexes their output and
// exits onto a single event queue.
//
// Lock order: Supervisor.mu before child.mu. Neither is held while sending on
// the event queue.
type Supervisor struct {
	root    string
	log     *slog.Logger
	env     *env.Env
	history []history.Sink

	mu       sync.Mutex
	children map[string]*child
	order    []string

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger routes supervisor diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHistory journals lifecycle events to the given sinks.
func WithHistory(sinks ...history.Sink) Option {
	return func(s *Supervisor) {
		s.history = append([]history.Sink(nil), sinks...)
	}
}

// WithEnv replaces the environment base used for children.
func WithEnv(e *env.Env) Option {
	return func(s *Supervisor) {
		if e != nil {
			s.env = e
		}
	}
}

// Spawn starts every spec in order, honoring each StartDelay relative to the
// moment Spawn was called. If any spec fails to start, the processes already
// started are terminated and a *SpawnError is returned.
func Spawn(root string, specs []Spec, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		root:     root,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		children: make(map[string]*child, len(specs)),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.env == nil {
		s.env = env.New()
		s.env.FromOS()
	}

	if err := validateNames(specs); err != nil {
		s.Close()
		return nil, err
	}

	begin := time.Now()
	for _, sp := range specs {
		if sp.StartDelay > 0 {
			if wait := time.Until(begin.Add(sp.StartDelay)); wait > 0 {
				time.Sleep(wait)
			}
		}
		c, err := s.start(sp, 1)
		if err != nil {
			s.abort()
			return nil, &SpawnError{Name: sp.Name, Command: sp.Command, Err: err}
		}
		s.mu.Lock()
		s.children[sp.Name] = c
		s.order = append(s.order, sp.Name)
		s.mu.Unlock()
		s.record(history.EventStart, c, "")
	}
	return s, nil
}

func validateNames(specs []Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, sp := range specs {
		if strings.TrimSpace(sp.Name) == "" {
			return &SpawnError{Name: sp.Name, Command: sp.Command, Err: errors.New("empty process name")}
		}
		if _, dup := seen[sp.Name]; dup {
			return &SpawnError{Name: sp.Name, Command: sp.Command, Err: ErrDuplicateName}
		}
		seen[sp.Name] = struct{}{}
	}
	return nil
}

// abort tears down whatever Spawn managed to start.
func (s *Supervisor) abort() {
	s.mu.Lock()
	kids := make([]*child, 0, len(s.children))
	for _, c := range s.children {
		kids = append(kids, c)
	}
	s.mu.Unlock()
	for _, c := range kids {
		_ = c.signal(sigTerm)
	}
	for _, c := range kids {
		if !c.waitExit(termGrace, termPollEvery) {
			_ = c.signal(sigKill)
			c.waitExit(killGrace, termPollEvery)
		}
	}
	s.Close()
}

func (s *Supervisor) start(sp Spec, instance int) (*child, error) {
	cmd := sp.BuildCommand()
	dir := sp.ResolveDir(s.root)
	cmd.Dir = dir
	cmd.Env = s.env.Merge(dir, sp.Env)

	c := &child{spec: sp, instance: instance, cmd: cmd}
	if sp.PTY {
		ptmx, err := startPTY(cmd)
		if err == nil {
			c.pid = cmd.Process.Pid
			c.ptmx = ptmx
			c.stdin = ptmx
			c.usesPTY = true
			c.startedAt = time.Now()
			s.log.Info("process started", "process", sp.Name, "pid", c.pid, "pty", true)
			metrics.IncStart(sp.Name)
			go s.readStream(c, ptmx, Stdout, StdoutChunk, c.closePTY)
			go s.watch(c)
			return c, nil
		}
		s.log.Warn("pty unavailable, falling back to pipes", "process", sp.Name, "error", err)
		// rebuild: the failed attempt left tty stdio on cmd
		cmd = sp.BuildCommand()
		cmd.Dir = dir
		cmd.Env = s.env.Merge(dir, sp.Env)
		c.cmd = cmd
	}

	configureSysProcAttr(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	c.pid = cmd.Process.Pid
	c.stdin = stdin
	c.startedAt = time.Now()
	s.log.Info("process started", "process", sp.Name, "pid", c.pid, "pty", false)
	metrics.IncStart(sp.Name)

	go s.readStream(c, stdout, Stdout, StdoutChunk, nil)
	go s.readStream(c, stderr, Stderr, StderrChunk, nil)
	go s.watch(c)
	return c, nil
}

// readStream forwards r as a chunk event per read followed by one line event
// per completed line. A trailing partial line is flushed at EOF.
func (s *Supervisor) readStream(c *child, r io.Reader, lineKind, chunkKind EventKind, onEOF func()) {
	if onEOF != nil {
		defer onEOF()
	}
	name, inst := c.spec.Name, c.instance
	buf := make([]byte, readBufferSize)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if !s.emit(Event{Process: name, Instance: inst, Kind: chunkKind, Chunk: data}) {
				return
			}
			pending = append(pending, data...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := string(pending[:i+1])
				pending = pending[i+1:]
				if !s.emit(Event{Process: name, Instance: inst, Kind: lineKind, Payload: line}) {
					return
				}
			}
			if len(pending) == 0 {
				pending = nil
			}
		}
		if err != nil {
			if len(pending) > 0 {
				s.emit(Event{Process: name, Instance: inst, Kind: lineKind, Payload: string(pending)})
			}
			return
		}
	}
}

// watch polls c until it exits and then emits its Exit event.
func (s *Supervisor) watch(c *child) {
	t := time.NewTicker(exitPollEvery)
	defer t.Stop()
	for {
		if done, diag := c.poll(); done {
			s.log.Info("process exited", "process", c.spec.Name, "pid", c.pid, "diagnostic", diag,
				"uptime", time.Since(c.startedAt).Round(time.Millisecond))
			metrics.IncExit(c.spec.Name, diag)
			s.record(history.EventExit, c, diag)
			s.emit(Event{Process: c.spec.Name, Instance: c.instance, Kind: Exit, Payload: diag})
			return
		}
		select {
		case <-t.C:
		case <-s.done:
			return
		}
	}
}

// emit queues e, giving up once the supervisor is closed.
func (s *Supervisor) emit(e Event) bool {
	select {
	case s.events <- e:
		return true
	case <-s.done:
		return false
	}
}

func (s *Supervisor) record(t history.EventType, c *child, diag string) {
	if len(s.history) == 0 {
		return
	}
	ev := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			Name:       c.spec.Name,
			PID:        c.pid,
			Command:    c.spec.Command,
			PTY:        c.usesPTY,
			Diagnostic: diag,
		},
	}
	for _, h := range s.history {
		if err := h.Send(context.Background(), ev); err != nil {
			s.log.Warn("history send failed", "process", c.spec.Name, "type", string(t), "error", err)
		}
	}
}

func (s *Supervisor) lookup(name string) *child {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.children[name]
}

// Instance returns the run number of the named process, or 0 when it is
// unknown. Events from earlier runs carry a smaller Instance.
func (s *Supervisor) Instance(name string) int {
	if c := s.lookup(name); c != nil {
		return c.instance
	}
	return 0
}

// Names returns the managed process names in spawn order.
func (s *Supervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Events exposes the raw event queue.
func (s *Supervisor) Events() <-chan Event { return s.events }

// NextEventTimeout waits up to d for the next event. A non-positive d polls
// without blocking.
func (s *Supervisor) NextEventTimeout(d time.Duration) (Event, bool) {
	if d <= 0 {
		select {
		case e := <-s.events:
			return e, true
		default:
			return Event{}, false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case e := <-s.events:
		return e, true
	case <-t.C:
		return Event{}, false
	}
}

// SendInput writes text to the stdin of the named process. Unknown names are
// ignored.
func (s *Supervisor) SendInput(name, text string) error {
	c := s.lookup(name)
	if c == nil {
		return nil
	}
	return c.write([]byte(text))
}

// Resize updates the pseudo-terminal size of the named process. Pipe-backed
// and unknown processes are ignored.
func (s *Supervisor) Resize(name string, cols, rows int) error {
	c := s.lookup(name)
	if c == nil {
		return nil
	}
	if err := c.resize(cols, rows); err != nil {
		return fmt.Errorf("resize %s: %w", name, err)
	}
	return nil
}

// TerminateProcess stops the named process group with TERM, escalating to
// KILL when it has not exited within the grace period.
func (s *Supervisor) TerminateProcess(name string) error {
	c := s.lookup(name)
	if c == nil {
		return fmt.Errorf("%s: %w", name, ErrUnknownProcess)
	}
	forced, err := s.terminate(c)
	metrics.IncStop(name, forced)
	s.record(history.EventStop, c, "")
	return err
}

func (s *Supervisor) terminate(c *child) (forced bool, err error) {
	if !c.running() {
		return false, nil
	}
	if err := c.signal(sigTerm); err != nil {
		return false, fmt.Errorf("terminate %s: %w", c.spec.Name, err)
	}
	if c.waitExit(termGrace, termPollEvery) {
		return false, nil
	}
	s.log.Warn("process ignored TERM, killing", "process", c.spec.Name, "pid", c.pid)
	if err := c.signal(sigKill); err != nil {
		return true, fmt.Errorf("kill %s: %w", c.spec.Name, err)
	}
	c.waitExit(killGrace, termPollEvery)
	return true, nil
}

// RestartProcess terminates the named process and starts its spec again
// without any start delay.
func (s *Supervisor) RestartProcess(name string) error {
	old := s.lookup(name)
	if old == nil {
		return fmt.Errorf("%s: %w", name, ErrUnknownProcess)
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if _, err := s.terminate(old); err != nil {
		return err
	}
	sp := old.spec
	sp.StartDelay = 0
	c, err := s.start(sp, old.instance+1)
	if err != nil {
		return fmt.Errorf("restart %s: %w", name, err)
	}
	s.mu.Lock()
	s.children[name] = c
	s.mu.Unlock()
	metrics.IncRestart(name)
	s.record(history.EventRestart, c, "")
	return nil
}

// ShutdownPhase labels a step of a graceful shutdown.
type ShutdownPhase int

const (
	PhaseSendingTerm ShutdownPhase = iota
	PhaseWaiting
	PhaseForceKilling
	PhaseComplete
)

func (p ShutdownPhase) String() string {
	switch p {
	case PhaseSendingTerm:
		return "sending-term"
	case PhaseWaiting:
		return "waiting"
	case PhaseForceKilling:
		return "force-killing"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ShutdownProgress is reported while TerminateAllGracefulWithProgress runs.
type ShutdownProgress struct {
	Phase     ShutdownPhase
	Total     int
	Remaining int
	Forced    int
	Elapsed   time.Duration
}

// ShutdownResult summarizes a graceful shutdown.
type ShutdownResult struct {
	Total  int
	Forced int
}

// Graceful is the number of processes that exited without KILL.
func (r ShutdownResult) Graceful() int { return r.Total - r.Forced }

// TerminateAllGracefulWithProgress sends TERM to every running group, waits
// up to timeout for them to exit, and then kills the rest. progress may be nil.
func (s *Supervisor) TerminateAllGracefulWithProgress(timeout time.Duration, progress func(ShutdownProgress)) ShutdownResult {
	report := func(p ShutdownProgress) {
		if progress != nil {
			progress(p)
		}
	}
	begin := time.Now()

	s.mu.Lock()
	kids := make([]*child, 0, len(s.order))
	for _, name := range s.order {
		if c := s.children[name]; c != nil {
			kids = append(kids, c)
		}
	}
	s.mu.Unlock()
	// reaping takes child locks; poll outside s.mu
	alive := stillRunning(kids)
	total := len(alive)

	report(ShutdownProgress{Phase: PhaseSendingTerm, Total: total, Remaining: total})
	for _, c := range alive {
		if err := c.signal(sigTerm); err != nil {
			s.log.Warn("send TERM failed", "process", c.spec.Name, "error", err)
		}
	}

	remaining := alive
	deadline := begin.Add(timeout)
	for len(remaining) > 0 && time.Now().Before(deadline) {
		remaining = stillRunning(remaining)
		report(ShutdownProgress{Phase: PhaseWaiting, Total: total, Remaining: len(remaining), Elapsed: time.Since(begin)})
		if len(remaining) == 0 {
			break
		}
		time.Sleep(shutdownPollFor)
	}
	remaining = stillRunning(remaining)

	forced := len(remaining)
	if forced > 0 {
		report(ShutdownProgress{Phase: PhaseForceKilling, Total: total, Remaining: forced, Forced: forced, Elapsed: time.Since(begin)})
		for _, c := range remaining {
			s.log.Warn("force killing process", "process", c.spec.Name, "pid", c.pid)
			_ = c.signal(sigKill)
		}
		for _, c := range remaining {
			c.waitExit(killGrace, termPollEvery)
		}
	}
	for _, c := range alive {
		metrics.IncStop(c.spec.Name, containsChild(remaining, c))
		s.record(history.EventStop, c, "")
	}
	report(ShutdownProgress{Phase: PhaseComplete, Total: total, Forced: forced, Elapsed: time.Since(begin)})
	return ShutdownResult{Total: total, Forced: forced}
}

func stillRunning(cs []*child) []*child {
	out := cs[:0:0]
	for _, c := range cs {
		if c.running() {
			out = append(out, c)
		}
	}
	return out
}

func containsChild(cs []*child, c *child) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

// Diagnostic is the final state of one process.
type Diagnostic struct {
	Name       string
	Diagnostic string
}

// ExitDiagnostics returns one entry per process sorted by name. Processes that
// are still alive report "running".
func (s *Supervisor) ExitDiagnostics() []Diagnostic {
	s.mu.Lock()
	kids := make([]*child, 0, len(s.children))
	for _, c := range s.children {
		kids = append(kids, c)
	}
	s.mu.Unlock()

	out := make([]Diagnostic, 0, len(kids))
	for _, c := range kids {
		diag := "running"
		if done, d := c.poll(); done {
			diag = d
		}
		out = append(out, Diagnostic{Name: c.spec.Name, Diagnostic: diag})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close stops event delivery and releases the history sinks. It does not
// signal children.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		for _, h := range s.history {
			_ = h.Close()
		}
	})
}
