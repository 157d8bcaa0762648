//go:build windows

package process

import (
	"os"
	"strconv"
	"sync"
)

// Windows has no WNOHANG; a helper goroutine blocks in Wait and the watcher
// polls its result.
var (
	waitMu      sync.Mutex
	waitResults = map[int]chan string{}
)

func tryReap(pid int) (bool, string) {
	waitMu.Lock()
	ch, ok := waitResults[pid]
	if !ok {
		ch = make(chan string, 1)
		waitResults[pid] = ch
		go func() {
			p, err := os.FindProcess(pid)
			if err != nil {
				ch <- "wait-error=" + err.Error()
				return
			}
			st, err := p.Wait()
			if err != nil {
				ch <- "wait-error=" + err.Error()
				return
			}
			ch <- "exit=" + strconv.Itoa(st.ExitCode())
		}()
	}
	waitMu.Unlock()

	select {
	case diag := <-ch:
		waitMu.Lock()
		delete(waitResults, pid)
		waitMu.Unlock()
		return true, diag
	default:
		return false, ""
	}
}
