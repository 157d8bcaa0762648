//go:build !windows

package process

import (
	"errors"
	"strconv"
	"syscall"
)

// tryReap performs a non-blocking wait on pid. It returns done=false while the
// child is still running, otherwise the exit diagnostic.
func tryReap(pid int) (done bool, diag string) {
	var ws syscall.WaitStatus
	for {
		wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if err != nil {
			return true, "wait-error=" + err.Error()
		}
		if wpid == 0 {
			return false, ""
		}
		return true, describeWaitStatus(ws)
	}
}

func describeWaitStatus(ws syscall.WaitStatus) string {
	switch {
	case ws.Exited():
		return "exit=" + strconv.Itoa(ws.ExitStatus())
	case ws.Signaled():
		return "signal=" + strconv.Itoa(int(ws.Signal()))
	default:
		return "wait-error=status " + strconv.Itoa(int(ws))
	}
}
