//go:build !windows

package process

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

const (
	defaultPTYCols = 80
	defaultPTYRows = 24
)

// startPTY starts cmd attached to a new pseudo-terminal. The child becomes a
// session leader, so its pid is also its process group id.
func startPTY(cmd *exec.Cmd) (*os.File, error) {
	return pty.StartWithSize(cmd, &pty.Winsize{Cols: defaultPTYCols, Rows: defaultPTYRows})
}

func resizePTY(f *os.File, cols, rows int) error {
	return pty.Setsize(f, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}
