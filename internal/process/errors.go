package process

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStdin is returned when input is sent to a process without a writable stdin.
	ErrNoStdin = errors.New("process has no stdin")
	// ErrUnknownProcess is returned for names the supervisor does not manage.
	ErrUnknownProcess = errors.New("unknown process")
	// ErrDuplicateName rejects two specs sharing a name.
	ErrDuplicateName = errors.New("duplicate process name")
	// ErrClosed is returned once the supervisor has been closed.
	ErrClosed = errors.New("supervisor closed")
)

// SpawnError reports the process that failed to start during Spawn.
type SpawnError struct {
	Name    string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s (%q): %v", e.Name, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
