package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipring/internal/engine"
	"go.klb.dev/clipring/internal/rpc"
)

func newStatusCmd() *cobra.Command {
	cmd := clientCmd("status", "Show daemon health", cobra.NoArgs,
		func(_ *cobra.Command, v *viper.Viper, _ []string) error {
			return withClient(v, func(ctx context.Context, c *rpc.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				if v.GetBool("json") {
					enc, _ := json.MarshalIndent(st, "", "  ")
					fmt.Println(string(enc))
					return nil
				}
				printStatus(st, v.GetString("socket"))
				return nil
			})
		})
	cmd.Long = `Displays the clipboard backend, history usage, keyboards being read,
configured hotkeys and any component running degraded.`
	cmd.Flags().Bool("json", false, "output raw JSON")
	return cmd
}

func printStatus(st engine.Status, socket string) {
	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)

	backend := st.Backend
	if backend == "" {
		backend = "none"
	}
	fmt.Fprintf(w, "Socket:\t%s\n", socket)
	fmt.Fprintf(w, "Started:\t%s (%s)\n", st.StartedAt.Local().Format(time.RFC3339), fmtAge(st.StartedAt))
	fmt.Fprintf(w, "Backend:\t%s\n", backend)
	fmt.Fprintf(w, "History:\t%d/%d entries, %d pinned\n", st.Entries, st.Capacity, st.Pinned)
	fmt.Fprintf(w, "Keystrokes:\t%s\n", yesNo(st.Inject))
	fmt.Fprintf(w, "Subscribers:\t%d\n", st.Subscribers)
	if len(st.Devices) > 0 {
		fmt.Fprintf(w, "Keyboards:\t%s\n", strings.Join(st.Devices, ", "))
	} else {
		fmt.Fprintf(w, "Keyboards:\tnone\n")
	}
	fmt.Fprintln(w)
	_ = w.Flush()

	if len(st.Hotkeys) > 0 {
		tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "CHORD\tACTION\n")
		_, _ = fmt.Fprintf(tw, "-----\t------\n")
		for _, h := range st.Hotkeys {
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", h.Chord, h.Action)
		}
		_ = tw.Flush()
		fmt.Println()
	}

	if len(st.Degraded) == 0 {
		fmt.Println("All components healthy.")
		return
	}
	fmt.Println("Degraded:")
	for _, d := range st.Degraded {
		fmt.Printf("  %s: %s\n", d.Component, d.Message)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
