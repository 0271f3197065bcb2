// clipring: clipboard history daemon and CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipring/internal/inject"
	"go.klb.dev/clipring/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clipring",
		Short: "Clipboard history with global hotkeys",
		Long: `clipring records everything copied to the system clipboard, keeps a
bounded history with pinning, and pastes old entries back into the focused
application from a global hotkey or the command line.

Run "clipring daemon" once per session. The other sub-commands talk to the
running daemon over its Unix socket ($XDG_RUNTIME_DIR/clipring.sock).

Config file search order (first found wins):
  /etc/clipring/clipring.toml
  $HOME/.config/clipring/clipring.toml
  path supplied via --config

All flags can be set via CLIPRING_<FLAG> env vars or config-file keys.
See "clipring daemon --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDaemonCmd(),
		newListCmd(),
		newGetCmd(),
		newPasteCmd(),
		newPinCmd(),
		newUnpinCmd(),
		newDeleteCmd(),
		newClearCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newKeysCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for a paste that set the clipboard but could not type the
// keystroke, 1 for every other failure.
func exitCode(err error) int {
	if errors.Is(err, inject.ErrInjectionFailed) {
		return 2
	}
	return 1
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clipring %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	logging.Setup(logging.ParseFormat(formatStr), logging.Level(levelStr, interactive))
}
