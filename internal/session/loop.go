package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/inflatable-cookie/effigy-sub000/internal/metrics"
	"github.com/inflatable-cookie/effigy-sub000/internal/process"
)

const (
	maxEventsPerFrame = 256
	firstEventWait    = 2 * time.Millisecond
	inputWait         = 30 * time.Millisecond
)

// Run drives the terminal session for the processes behind ctrl until the
// user quits, dismisses a completed session, ctx is cancelled, or the
// terminal fails. Whatever ends the loop, every process is shut down and the
// terminal restored before Run returns; the summary is then written to
// opts.Summary.
func Run(ctx context.Context, ctrl Controller, scr tcell.Screen, specs []process.Spec, opts Options) (out Outcome, err error) {
	st := newState(specs, opts, time.Now())
	opts = st.opts

	if err := scr.Init(); err != nil {
		res := ctrl.TerminateAllGracefulWithProgress(opts.ShutdownTimeout, nil)
		return buildOutcome(nil, ctrl.ExitDiagnostics(), res), fmt.Errorf("init terminal: %w", err)
	}
	input := make(chan tcell.Event, 16)
	stopPoll := make(chan struct{})
	go pollInput(scr, input, stopPoll)

	defer func() {
		res := ctrl.TerminateAllGracefulWithProgress(opts.ShutdownTimeout, func(p process.ShutdownProgress) {
			drawShutdown(scr, p)
		})
		close(stopPoll)
		scr.Fini()
		out = buildOutcome(st.live, ctrl.ExitDiagnostics(), res)
		opts.Logger.Info("session ended", "total", res.Total, "forced", res.Forced, "failures", len(out.Failures))
		if werr := writeSummary(opts, out); werr != nil {
			err = errors.Join(err, werr)
		}
	}()

	timer := time.NewTimer(inputWait)
	defer timer.Stop()
	for !st.quit && ctx.Err() == nil {
		w, h := scr.Size()
		l := layoutFor(w, h)
		st.drain(ctrl, l)
		vm := st.buildView(ctrl, l)
		st.draw(scr, l, vm)
		metrics.Inc(metrics.Frames)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(inputWait)
		select {
		case ev := <-input:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				st.HandleKey(ctrl, ev, l.OutputRows)
			case *tcell.EventResize:
				scr.Sync()
			case *tcell.EventError:
				return out, fmt.Errorf("terminal: %w", ev)
			}
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return out, nil
}

func pollInput(scr tcell.Screen, out chan<- tcell.Event, stop <-chan struct{}) {
	for {
		ev := scr.PollEvent()
		if ev == nil {
			return
		}
		select {
		case out <- ev:
		case <-stop:
			return
		}
	}
}

// drain ingests up to maxEventsPerFrame queued events, waiting briefly only
// for the first.
func (s *State) drain(ctrl Controller, l Layout) {
	cols, rows := max(l.Width, 1), max(l.OutputRows, 1)
	wait := firstEventWait
	for i := 0; i < maxEventsPerFrame; i++ {
		ev, ok := ctrl.NextEventTimeout(wait)
		if !ok {
			return
		}
		wait = 0
		s.Ingest(ev, cols, rows)
	}
}

func writeSummary(opts Options, out Outcome) error {
	if opts.Summary == nil {
		return nil
	}
	var counters string
	if opts.Diagnostics && opts.Gatherer != nil {
		snap, err := metrics.SessionSnapshot(opts.Gatherer)
		if err != nil {
			opts.Logger.Warn("diagnostics snapshot failed", "error", err)
		} else {
			counters = metrics.FormatSnapshot(snap)
		}
	}
	if _, err := io.WriteString(opts.Summary, RenderSummary(out, counters)); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
