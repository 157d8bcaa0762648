package main

import (
	"errors"
	"io"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	effigy "github.com/inflatable-cookie/effigy-sub000"
	"github.com/inflatable-cookie/effigy-sub000/internal/config"
)

// errSessionFailed marks a session that ran but had failing processes. The
// summary already reported them.
var errSessionFailed = errors.New("session had failing processes")

// RunFlags holds flags for the run command.
type RunFlags struct {
	DismissOnComplete bool
	LogFile           string
	MetricsListen     string
	HistoryDSN        string

	// test hooks
	screen  tcell.Screen
	summary io.Writer
}

func createRunCommand(global *GlobalFlags, flags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the session described by the config file",
		Long: `Start every process from the session file and attach the tabbed UI.

Keys: h/l or arrows switch tabs, j/k scroll, Tab enters insert mode, o opens
the options menu, ? shows help, q quits and stops every process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, global, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.DismissOnComplete, "dismiss-on-complete", false, "allow Enter/Esc to close the session once every process exited")
	cmd.Flags().StringVar(&flags.LogFile, "log-file", "", "write logs to this file (rotated)")
	cmd.Flags().StringVar(&flags.MetricsListen, "metrics-listen", "", "serve /metrics and /processes on this address")
	cmd.Flags().StringVar(&flags.HistoryDSN, "history-dsn", "", "journal lifecycle events to sqlite, postgres or clickhouse")
	return cmd
}

func runSession(cmd *cobra.Command, global *GlobalFlags, flags *RunFlags) error {
	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		return err
	}

	opts := effigy.OptionsFromConfig(cfg, config.LoadToggles())
	if cmd.Flags().Changed("dismiss-on-complete") {
		opts.DismissOnComplete = flags.DismissOnComplete
	}
	if flags.LogFile != "" {
		opts.Log.File = flags.LogFile
	}
	if global.LogLevel != "" {
		opts.Log.Level = global.LogLevel
	}
	if flags.MetricsListen != "" {
		opts.MetricsListen = flags.MetricsListen
	}
	if flags.HistoryDSN != "" {
		opts.HistoryDSN = flags.HistoryDSN
	}
	opts.Screen = flags.screen
	opts.Summary = flags.summary

	out, err := effigy.Run(cmd.Context(), cfg.Root, cfg.Specs, opts)
	if err != nil {
		return err
	}
	if !out.OK() {
		return errSessionFailed
	}
	return nil
}
