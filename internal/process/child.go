package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// child is one running instance of a Spec.
type child struct {
	mu        sync.Mutex
	spec      Spec
	instance  int
	cmd       *exec.Cmd
	pid       int
	stdin     io.WriteCloser // pipe stdin, or the pty master
	ptmx      *os.File       // nil when running on plain pipes
	usesPTY   bool
	exited    bool
	diag      string
	startedAt time.Time
}

// poll reaps the child without blocking. The first observed exit is cached
// so later callers see the same diagnostic.
func (c *child) poll() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exited {
		return true, c.diag
	}
	done, diag := tryReap(c.pid)
	if !done {
		return false, ""
	}
	c.exited = true
	c.diag = diag
	if c.ptmx == nil && c.stdin != nil {
		_ = c.stdin.Close()
		c.stdin = nil
	}
	return true, diag
}

func (c *child) running() bool {
	done, _ := c.poll()
	return !done
}

func (c *child) signal(sig syscall.Signal) error {
	c.mu.Lock()
	pid, exited := c.pid, c.exited
	c.mu.Unlock()
	if exited {
		return nil
	}
	return signalGroup(pid, sig)
}

func (c *child) write(p []byte) error {
	c.mu.Lock()
	w := c.stdin
	c.mu.Unlock()
	if w == nil {
		return fmt.Errorf("%s: %w", c.spec.Name, ErrNoStdin)
	}
	if _, err := w.Write(p); err != nil {
		return fmt.Errorf("write stdin of %s: %w", c.spec.Name, err)
	}
	return nil
}

func (c *child) resize(cols, rows int) error {
	c.mu.Lock()
	f := c.ptmx
	c.mu.Unlock()
	if f == nil || cols <= 0 || rows <= 0 {
		return nil
	}
	return resizePTY(f, cols, rows)
}

// closePTY releases the pty master once its reader has drained it.
func (c *child) closePTY() {
	c.mu.Lock()
	f := c.ptmx
	c.ptmx = nil
	c.stdin = nil
	c.mu.Unlock()
	if f != nil {
		_ = f.Close()
	}
}

// waitExit polls until the child is reaped or d elapses.
func (c *child) waitExit(d, step time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if !c.running() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(step)
	}
}
