package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/inflatable-cookie/effigy-sub000/internal/process"
)

// diagnostics produced by the shutdown protocol itself
var expectedShutdown = map[string]struct{}{
	"signal=15": {},
	"signal=9":  {},
	"signal=2":  {},
	"signal=1":  {},
	"exit=130":  {},
	"exit=137":  {},
	"exit=143":  {},
}

// IsSuccess reports a clean zero exit.
func IsSuccess(diag string) bool { return diag == "exit=0" }

// IsExpectedShutdown reports diagnostics caused by terminating a process on
// purpose, which are never failures.
func IsExpectedShutdown(diag string) bool {
	_, ok := expectedShutdown[diag]
	return ok
}

// IsFailure classifies a final diagnostic.
func IsFailure(diag string) bool {
	return diag != "" && diag != "running" && !IsSuccess(diag) && !IsExpectedShutdown(diag)
}

// ShutdownSummary renders the one-line result of a graceful shutdown.
func ShutdownSummary(total, forced int) string {
	return fmt.Sprintf("Shutdown complete (%d/%d graceful, %d forced)", total-forced, total, forced)
}

// Failure is one process whose final state was not a clean, expected exit.
type Failure struct {
	Name       string `json:"name"`
	Diagnostic string `json:"diagnostic"`
}

// Outcome is what a session reports back to its host.
type Outcome struct {
	Failures []Failure              `json:"failures"`
	Shutdown process.ShutdownResult `json:"shutdown"`
}

// OK reports whether no process failed.
func (o Outcome) OK() bool { return len(o.Failures) == 0 }

// buildOutcome merges failures seen live with the final diagnostics sweep.
// A live failure for a name wins over whatever the sweep reports later.
func buildOutcome(live []Failure, sweep []process.Diagnostic, res process.ShutdownResult) Outcome {
	seen := make(map[string]struct{}, len(live))
	out := Outcome{Shutdown: res}
	for _, f := range live {
		if _, dup := seen[f.Name]; dup {
			continue
		}
		seen[f.Name] = struct{}{}
		out.Failures = append(out.Failures, f)
	}
	for _, d := range sweep {
		if _, dup := seen[d.Name]; dup || !IsFailure(d.Diagnostic) {
			continue
		}
		seen[d.Name] = struct{}{}
		out.Failures = append(out.Failures, Failure{Name: d.Name, Diagnostic: d.Diagnostic})
	}
	sort.Slice(out.Failures, func(i, j int) bool { return out.Failures[i].Name < out.Failures[j].Name })
	return out
}

var (
	summaryTitle = lipgloss.NewStyle().Bold(true)
	summaryOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	summaryFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	summaryDim   = lipgloss.NewStyle().Faint(true)
)

// RenderSummary formats the post-session report printed after the terminal
// is restored. counters is the optional diagnostics snapshot.
func RenderSummary(o Outcome, counters string) string {
	var b strings.Builder
	b.WriteString(summaryTitle.Render(ShutdownSummary(o.Shutdown.Total, o.Shutdown.Forced)))
	b.WriteByte('\n')
	if o.OK() {
		b.WriteString(summaryOK.Render("all processes exited cleanly"))
		b.WriteByte('\n')
	} else {
		for _, f := range o.Failures {
			b.WriteString(summaryFail.Render("✗ " + f.Name))
			b.WriteString(" " + f.Diagnostic + "\n")
		}
	}
	if counters != "" {
		b.WriteString(summaryDim.Render("diagnostics: " + counters))
		b.WriteByte('\n')
	}
	return b.String()
}
