package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inflatable-cookie/effigy-sub000/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot()
	err := root.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if !errors.Is(err, errSessionFailed) {
		logger.NewConsole(os.Stderr, "info").Error(err.Error())
	}
	os.Exit(1)
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(createRunCommand(globalFlags, &RunFlags{}))
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "effigy",
		Short: "Run several commands side by side in a tabbed terminal",
		Long: `Effigy starts every process listed in a session file, shows each one in its
own tab, and stops them all together when you quit.

Examples:
  effigy run --config effigy.toml
  effigy run --config dev.yaml --dismiss-on-complete
  EFFIGY_TUI_DIAGNOSTICS=1 effigy run --config effigy.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "effigy.toml", "path to the session file (TOML, YAML or JSON)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level for the log file (debug, info, warn, error)")
	return root
}
