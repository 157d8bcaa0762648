package session

import (
	"sync"
	"time"

	"github.com/inflatable-cookie/effigy-sub000/internal/process"
)

// fakeController records calls and replays queued events.
type fakeController struct {
	mu         sync.Mutex
	events     []process.Event
	inputs     []string
	restarts   []string
	instances  map[string]int
	stops      []string
	resizes    map[string][2]int
	restartErr error
	shutdowns  int
	diags      []process.Diagnostic
	result     process.ShutdownResult
}

func newFake(evs ...process.Event) *fakeController {
	return &fakeController{events: evs, resizes: map[string][2]int{}, instances: map[string]int{}}
}

func (f *fakeController) push(evs ...process.Event) {
	f.mu.Lock()
	f.events = append(f.events, evs...)
	f.mu.Unlock()
}

func (f *fakeController) NextEventTimeout(time.Duration) (process.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return process.Event{}, false
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, true
}

func (f *fakeController) SendInput(name, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, name+":"+text)
	return nil
}

func (f *fakeController) TerminateProcess(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, name)
	return nil
}

func (f *fakeController) RestartProcess(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restartErr != nil {
		return f.restartErr
	}
	f.restarts = append(f.restarts, name)
	if n, ok := f.instances[name]; ok {
		f.instances[name] = n + 1
	}
	return nil
}

// tag makes name report instance numbers, starting at 1.
func (f *fakeController) tag(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances[name] = 1
}

func (f *fakeController) Instance(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instances[name]
}

func (f *fakeController) Resize(name string, cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes[name] = [2]int{cols, rows}
	return nil
}

func (f *fakeController) TerminateAllGracefulWithProgress(_ time.Duration, progress func(process.ShutdownProgress)) process.ShutdownResult {
	f.mu.Lock()
	f.shutdowns++
	res := f.result
	f.mu.Unlock()
	if progress != nil {
		progress(process.ShutdownProgress{Phase: process.PhaseSendingTerm, Total: res.Total, Remaining: res.Total})
		progress(process.ShutdownProgress{Phase: process.PhaseComplete, Total: res.Total, Forced: res.Forced})
	}
	return res
}

func (f *fakeController) ExitDiagnostics() []process.Diagnostic {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.Diagnostic(nil), f.diags...)
}

func line(name, text string) process.Event {
	return process.Event{Process: name, Kind: process.Stdout, Payload: text}
}

func exit(name, diag string) process.Event {
	return process.Event{Process: name, Kind: process.Exit, Payload: diag}
}

// of stamps ev with a run number.
func of(ev process.Event, instance int) process.Event {
	ev.Instance = instance
	return ev
}

func chunk(name, text string) process.Event {
	return process.Event{Process: name, Kind: process.StdoutChunk, Chunk: []byte(text)}
}
