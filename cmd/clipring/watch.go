package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipring/internal/hub"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events",
		Long: `Prints events from the daemon as they happen: history changes, hotkey
activations, degraded components and skipped sensitive content.

  clipring watch --kind history_changed --json`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runWatch(v) },
	}

	cmd.Flags().StringSlice("kind", nil, "event kinds to show (default all)")
	cmd.Flags().Bool("json", false, "one JSON object per line")
	addSocketFlag(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runWatch(v *viper.Viper) error {
	c, err := dial(v)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var kinds []hub.Kind
	for _, k := range v.GetStringSlice("kind") {
		kinds = append(kinds, hub.Kind(k))
	}
	sub, err := c.Subscribe(ctx, kinds...)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	jsonOut := v.GetBool("json")
	enc := json.NewEncoder(os.Stdout)
	for {
		ev, err := sub.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if jsonOut {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		fmt.Println(formatEvent(ev))
	}
}

func formatEvent(ev hub.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-17s", ev.Time.Local().Format("15:04:05"), ev.Kind)
	switch ev.Kind {
	case hub.HistoryChanged:
		fmt.Fprintf(&b, " %s", ev.Reason)
		if ev.EntryID != 0 {
			fmt.Fprintf(&b, " id=%d", ev.EntryID)
		}
	case hub.HotkeyActivated:
		fmt.Fprintf(&b, " %s", ev.Action)
		if ev.Slot != 0 {
			fmt.Fprintf(&b, " slot=%d id=%d", ev.Slot, ev.EntryID)
		}
	case hub.Degraded:
		if ev.Recovered {
			fmt.Fprintf(&b, " %s recovered", ev.Component)
			break
		}
		fmt.Fprintf(&b, " %s: %s", ev.Component, ev.Message)
	case hub.SensitiveSkipped:
		fmt.Fprintf(&b, " from %s", ev.Source)
	}
	return b.String()
}
