package process

import (
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Spec describes a process to be managed.
type Spec struct {
	Name       string        `json:"name" mapstructure:"name"`
	Command    string        `json:"command" mapstructure:"run"`   // shell command line
	WorkDir    string        `json:"work_dir" mapstructure:"cwd"`  // relative to the session root when not absolute
	StartDelay time.Duration `json:"start_delay" mapstructure:"-"` // honored at initial spawn only
	PTY        bool          `json:"pty" mapstructure:"pty"`       // run under a pseudo-terminal when available
	Env        []string      `json:"env" mapstructure:"env"`       // optional extra env (KEY=VALUE)
}

// ResolveDir returns the working directory of the spec anchored at root.
func (s Spec) ResolveDir(root string) string {
	dir := strings.TrimSpace(s.WorkDir)
	switch {
	case dir == "":
		return root
	case filepath.IsAbs(dir):
		return filepath.Clean(dir)
	default:
		return filepath.Join(root, dir)
	}
}

// BuildCommand constructs the shell invocation for spec.Command.
// An explicit "sh -c <script>" prefix is honored without wrapping it in a second shell.
func (s Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return getTrueCommand()
	}
	if after, ok := parseExplicitShell(cmdStr); ok {
		return getShellCommand(after)
	}
	return getShellCommand(cmdStr)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr and returns the script verbatim with one pair of outer quotes removed.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}
