package process

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// collect drains events until stop returns true or d elapses.
func collect(t *testing.T, s *Supervisor, d time.Duration, stop func([]Event) bool) []Event {
	t.Helper()
	var out []Event
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if e, ok := s.NextEventTimeout(20 * time.Millisecond); ok {
			out = append(out, e)
			if stop(out) {
				return out
			}
		}
	}
	return out
}

func exitsOf(evs []Event) map[string]string {
	m := map[string]string{}
	for _, e := range evs {
		if e.Kind == Exit {
			m[e.Process] = e.Payload
		}
	}
	return m
}

func linesOf(evs []Event, name string, kind EventKind) []string {
	var out []string
	for _, e := range evs {
		if e.Process == name && e.Kind == kind {
			out = append(out, e.Payload)
		}
	}
	return out
}

func TestSpawnStdoutStderrAndExit(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{
		{Name: "a", Command: "printf 'hello\\n'"},
		{Name: "b", Command: "printf 'oops\\n' 1>&2"},
	})
	require.NoError(t, err)
	defer s.Close()

	evs := collect(t, s, 5*time.Second, func(evs []Event) bool { return len(exitsOf(evs)) == 2 })
	exits := exitsOf(evs)
	assert.Equal(t, "exit=0", exits["a"])
	assert.Equal(t, "exit=0", exits["b"])
	assert.Equal(t, []string{"hello\n"}, linesOf(evs, "a", Stdout))
	assert.Equal(t, []string{"oops\n"}, linesOf(evs, "b", Stderr))

	var sawChunk bool
	for _, e := range evs {
		if e.Process == "a" && e.Kind == StdoutChunk {
			sawChunk = true
			assert.Equal(t, "hello\n", string(e.Chunk))
		}
	}
	assert.True(t, sawChunk, "expected a stdout chunk event")
}

func TestPartialLineFlushedAtEOF(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "p", Command: "printf 'one\\ntwo'"}})
	require.NoError(t, err)
	defer s.Close()

	evs := collect(t, s, 5*time.Second, func(evs []Event) bool {
		return len(exitsOf(evs)) == 1 && len(linesOf(evs, "p", Stdout)) == 2
	})
	assert.Equal(t, []string{"one\n", "two"}, linesOf(evs, "p", Stdout))
}

func TestNonZeroExitDiagnostic(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "bad", Command: "exit 3"}})
	require.NoError(t, err)
	defer s.Close()

	evs := collect(t, s, 5*time.Second, func(evs []Event) bool { return len(exitsOf(evs)) == 1 })
	assert.Equal(t, "exit=3", exitsOf(evs)["bad"])
}

func TestSendInputEchoes(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "echo", Command: "read line; echo \"seen:$line\""}})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SendInput("echo", "r\n"))
	evs := collect(t, s, 5*time.Second, func(evs []Event) bool { return len(exitsOf(evs)) == 1 })
	assert.Contains(t, linesOf(evs, "echo", Stdout), "seen:r\n")
}

func TestSendInputUnknownIsNoop(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "x", Command: "true"}})
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.SendInput("missing", "hi\n"))
	assert.NoError(t, s.Resize("missing", 80, 24))
}

func TestWorkDirAndEnv(t *testing.T) {
	requireUnix(t)
	root := t.TempDir()
	s, err := Spawn(root, []Spec{{Name: "w", Command: "pwd; echo $GREETING", Env: []string{"GREETING=hi"}}})
	require.NoError(t, err)
	defer s.Close()

	evs := collect(t, s, 5*time.Second, func(evs []Event) bool { return len(exitsOf(evs)) == 1 })
	lines := linesOf(evs, "w", Stdout)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[0]), filepath.Base(root)), lines[0])
	assert.Equal(t, "hi\n", lines[1])
}

func TestTerminateProcess(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "sleep", Command: "sleep 30"}})
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	require.NoError(t, s.TerminateProcess("sleep"))
	assert.Less(t, time.Since(start), 2*time.Second)

	evs := collect(t, s, 3*time.Second, func(evs []Event) bool { return len(exitsOf(evs)) == 1 })
	assert.Equal(t, "signal=15", exitsOf(evs)["sleep"])

	err = s.TerminateProcess("nope")
	assert.True(t, errors.Is(err, ErrUnknownProcess))
}

func TestTerminateEscalatesToKill(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "stubborn", Command: "trap '' TERM; while true; do sleep 0.05; done"}})
	require.NoError(t, err)
	defer s.Close()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, s.TerminateProcess("stubborn"))
	evs := collect(t, s, 3*time.Second, func(evs []Event) bool { return len(exitsOf(evs)) == 1 })
	assert.Equal(t, "signal=9", exitsOf(evs)["stubborn"])
}

func TestRestartProcess(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "svc", Command: "echo up; sleep 30", StartDelay: 10 * time.Millisecond}})
	require.NoError(t, err)
	defer func() {
		s.TerminateAllGracefulWithProgress(time.Second, nil)
		s.Close()
	}()

	collect(t, s, 3*time.Second, func(evs []Event) bool { return len(linesOf(evs, "svc", Stdout)) == 1 })
	require.NoError(t, s.RestartProcess("svc"))

	evs := collect(t, s, 3*time.Second, func(evs []Event) bool {
		return len(linesOf(evs, "svc", Stdout)) == 1 && len(exitsOf(evs)) == 1
	})
	assert.Equal(t, "signal=15", exitsOf(evs)["svc"])
	assert.Equal(t, []string{"up\n"}, linesOf(evs, "svc", Stdout))

	diags := s.ExitDiagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, "running", diags[0].Diagnostic)
}

func TestRestartNumbersInstances(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "svc", Command: "trap 'echo bye; exit 143' TERM; echo hi; while :; do sleep 0.05; done"}})
	require.NoError(t, err)
	defer func() {
		s.TerminateAllGracefulWithProgress(time.Second, nil)
		s.Close()
	}()
	assert.Equal(t, 1, s.Instance("svc"))
	assert.Equal(t, 0, s.Instance("nope"))

	first := collect(t, s, 3*time.Second, func(evs []Event) bool { return len(linesOf(evs, "svc", Stdout)) == 1 })
	for _, e := range first {
		assert.Equal(t, 1, e.Instance, e.Kind.String())
	}

	require.NoError(t, s.RestartProcess("svc"))
	assert.Equal(t, 2, s.Instance("svc"))

	// line or exit payload -> instance that produced it
	seen := func(evs []Event) map[string]int {
		m := map[string]int{}
		for _, e := range evs {
			if e.Kind == Exit || e.Kind == Stdout {
				m[e.Payload] = e.Instance
			}
		}
		return m
	}
	evs := collect(t, s, 3*time.Second, func(evs []Event) bool {
		m := seen(evs)
		_, bye := m["bye\n"]
		_, exited := m["exit=143"]
		_, hi := m["hi\n"]
		return bye && exited && hi
	})
	m := seen(evs)
	assert.Equal(t, 1, m["bye\n"])
	assert.Equal(t, 1, m["exit=143"])
	assert.Equal(t, 2, m["hi\n"])
}

func TestStartDelayIsMeasuredFromSpawn(t *testing.T) {
	requireUnix(t)
	begin := time.Now()
	s, err := Spawn(t.TempDir(), []Spec{
		{Name: "a", Command: "true", StartDelay: 100 * time.Millisecond},
		{Name: "b", Command: "true", StartDelay: 150 * time.Millisecond},
	})
	require.NoError(t, err)
	defer s.Close()
	elapsed := time.Since(begin)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestSpawnRejectsDuplicateNames(t *testing.T) {
	_, err := Spawn(t.TempDir(), []Spec{{Name: "a", Command: "true"}, {Name: "a", Command: "true"}})
	var se *SpawnError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "a", se.Name)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestSpawnFailureCleansUpStartedProcesses(t *testing.T) {
	requireUnix(t)
	start := time.Now()
	_, err := Spawn(t.TempDir(), []Spec{
		{Name: "ok", Command: "sleep 30"},
		{Name: "broken", Command: "true", WorkDir: "/definitely/not/a/dir"},
	})
	var se *SpawnError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "broken", se.Name)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTerminateAllGracefulWithProgress(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{
		{Name: "one", Command: "sleep 30"},
		{Name: "two", Command: "sleep 30"},
		{Name: "done", Command: "true"},
	})
	require.NoError(t, err)
	defer s.Close()
	collect(t, s, 2*time.Second, func(evs []Event) bool { return len(exitsOf(evs)) == 1 })

	var phases []ShutdownPhase
	var last ShutdownProgress
	res := s.TerminateAllGracefulWithProgress(2*time.Second, func(p ShutdownProgress) {
		phases = append(phases, p.Phase)
		last = p
	})
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 0, res.Forced)
	assert.Equal(t, 2, res.Graceful())
	require.NotEmpty(t, phases)
	assert.Equal(t, PhaseSendingTerm, phases[0])
	assert.Equal(t, PhaseComplete, last.Phase)
	assert.NotContains(t, phases, PhaseForceKilling)

	diags := s.ExitDiagnostics()
	require.Len(t, diags, 3)
	assert.Equal(t, []string{"done", "one", "two"}, []string{diags[0].Name, diags[1].Name, diags[2].Name})
	assert.Equal(t, "exit=0", diags[0].Diagnostic)
	assert.Equal(t, "signal=15", diags[1].Diagnostic)
}

func TestTerminateAllForcesStubborn(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "stubborn", Command: "trap '' TERM; while true; do sleep 0.05; done"}})
	require.NoError(t, err)
	defer s.Close()
	time.Sleep(100 * time.Millisecond)

	var sawKill bool
	res := s.TerminateAllGracefulWithProgress(200*time.Millisecond, func(p ShutdownProgress) {
		if p.Phase == PhaseForceKilling {
			sawKill = true
		}
	})
	assert.True(t, sawKill)
	assert.Equal(t, ShutdownResult{Total: 1, Forced: 1}, res)
	assert.Equal(t, "signal=9", s.ExitDiagnostics()[0].Diagnostic)
}

func TestPTYProcessEmitsStdout(t *testing.T) {
	requireUnix(t)
	s, err := Spawn(t.TempDir(), []Spec{{Name: "tty", Command: "test -t 1 && echo tty || echo notty", PTY: true}})
	require.NoError(t, err)
	defer s.Close()

	evs := collect(t, s, 5*time.Second, func(evs []Event) bool { return len(exitsOf(evs)) == 1 })
	assert.Equal(t, "exit=0", exitsOf(evs)["tty"])
	var out strings.Builder
	for _, e := range evs {
		if e.Kind == StdoutChunk {
			out.Write(e.Chunk)
		}
		assert.NotEqual(t, Stderr, e.Kind)
	}
	if out.Len() > 0 {
		assert.Contains(t, out.String(), "tty")
	}
	assert.NoError(t, s.Resize("tty", 100, 30))
}

func TestNextEventTimeoutNonBlocking(t *testing.T) {
	s := &Supervisor{events: make(chan Event, 1), done: make(chan struct{})}
	_, ok := s.NextEventTimeout(0)
	assert.False(t, ok)
	s.events <- Event{Process: "x", Kind: Exit, Payload: "exit=0"}
	e, ok := s.NextEventTimeout(0)
	assert.True(t, ok)
	assert.Equal(t, "x", e.Process)
}
