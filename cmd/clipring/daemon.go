package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"go.klb.dev/clipring/internal/clip"
	"go.klb.dev/clipring/internal/config"
	"go.klb.dev/clipring/internal/engine"
	"go.klb.dev/clipring/internal/inject"
	"go.klb.dev/clipring/internal/input"
	"go.klb.dev/clipring/internal/ipc"
	"go.klb.dev/clipring/internal/monitor"
	"go.klb.dev/clipring/internal/rpc"
)

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the clipboard history daemon",
		Long: `Starts the clipring daemon: it watches the clipboard, keeps the history,
listens for global hotkeys and serves the command socket.

Reading keyboards needs read access to /dev/input/event* and pasting needs
write access to /dev/uinput (usually membership of the "input" group). Without
them the daemon keeps running with hotkeys or keystroke injection disabled;
"clipring status" shows what is degraded.

Config file search order:
  /etc/clipring/clipring.toml
  $HOME/.config/clipring/clipring.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPRING_* env vars → flags`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			config.SetDefaults(v)
			return bindViper(cmd, v)
		},
		RunE: func(_ *cobra.Command, _ []string) error { return runDaemon(v) },
	}

	f := cmd.Flags()
	f.Int(config.KeyCapacity, config.DefaultCapacity, "maximum number of non-pinned history entries")
	f.Duration(config.KeyPollInterval, monitor.DefaultPollInterval, "clipboard poll interval when the backend cannot push changes (100ms-5s)")
	f.StringSlice(config.KeyBackends, clip.DefaultBackends, "clipboard backends to try, in order: wayland|x11|xclip|xsel|memory")
	f.String(config.KeyHotkey, config.DefaultHotkey, "chord that opens the history picker (empty disables)")
	f.String(config.KeyNextKey, "", "chord that selects the next entry")
	f.String(config.KeyPrevKey, "", "chord that selects the previous entry")
	f.StringSlice(config.KeyQuickPaste, nil, "chords that paste entry 1, 2, ... directly")
	f.String(config.KeyPasteKeys, config.DefaultPasteKeys, "chord typed to paste, e.g. shift+insert for terminals")
	f.Duration(config.KeySettleDelay, inject.DefaultSettleDelay, "pause between setting the clipboard and typing the paste chord")
	f.Duration(config.KeyInjectTimeout, inject.DefaultTimeout, "upper bound on a clipboard write and on the paste keystroke")
	f.Duration(config.KeySuppressWindow, monitor.DefaultSuppressWindow, "how long our own clipboard writes are ignored by the monitor")
	f.Bool(config.KeySkipSensitive, true, "do not record content flagged by password managers")
	f.Bool(config.KeyNotifySensitive, false, "publish an event when sensitive content is skipped")
	f.String(config.KeyMaxItemSize, config.DefaultMaxItemSize, "largest payload recorded (e.g. 512kb, 16mb)")
	f.String(config.KeySnapshot, config.DefaultSnapshotPath(), "history file (empty keeps history in memory only)")
	f.String(config.KeyInputDir, input.DefaultDir, "directory holding evdev nodes")
	f.String(config.KeyUinputPath, inject.DefaultUinputPath, "uinput device used for the virtual keyboard")
	f.Bool(config.KeyNoHotkeys, false, "do not read keyboards")
	f.Bool(config.KeyNoInject, false, "paste only sets the clipboard, no keystroke")
	addSocketFlag(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runDaemon(v *viper.Viper) error {
	setupLogging(v)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	socket := v.GetString("socket")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Claim the socket first so a second daemon exits before touching the
	// clipboard or the keyboards.
	ln, err := ipc.Listen(socket)
	if err != nil {
		return err
	}

	eng, err := engine.New(ctx, cfg, engine.Options{})
	if err != nil {
		ln.Close()
		return fmt.Errorf("engine: %w", err)
	}

	slog.Info("clipring daemon starting",
		"version", Version,
		"socket", socket,
		"capacity", cfg.Capacity,
		"hotkeys", len(cfg.Bindings),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return rpc.Serve(ctx, ln, rpc.New(eng)) })
	err = g.Wait()
	slog.Info("clipring daemon stopped")
	return err
}
