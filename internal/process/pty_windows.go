//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

var errPTYUnsupported = errors.New("pseudo-terminal not supported on this platform")

func startPTY(*exec.Cmd) (*os.File, error) { return nil, errPTYUnsupported }

func resizePTY(*os.File, int, int) error { return errPTYUnsupported }
