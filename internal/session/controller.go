package session

import (
	"time"

	"github.com/inflatable-cookie/effigy-sub000/internal/process"
)

// Controller is the process side of a session. *process.Supervisor
// implements it.
type Controller interface {
	NextEventTimeout(d time.Duration) (process.Event, bool)
	SendInput(name, text string) error
	TerminateProcess(name string) error
	RestartProcess(name string) error
	// Instance is the run number stamped on the named process events, or 0.
	Instance(name string) int
	Resize(name string, cols, rows int) error
	TerminateAllGracefulWithProgress(timeout time.Duration, progress func(process.ShutdownProgress)) process.ShutdownResult
	ExitDiagnostics() []process.Diagnostic
}

var _ Controller = (*process.Supervisor)(nil)
