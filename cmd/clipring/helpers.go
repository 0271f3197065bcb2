package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipring/internal/config"
	"go.klb.dev/clipring/internal/inject"
	"go.klb.dev/clipring/internal/ipc"
	"go.klb.dev/clipring/internal/rpc"
)

// requestTimeout bounds every unary command except paste.
const requestTimeout = 5 * time.Second

// pasteTimeout bounds paste. The daemon spends up to inject-timeout on the
// clipboard write and again on the keystroke, after any paste already in
// progress.
func pasteTimeout(v *viper.Viper) time.Duration {
	if d := v.GetDuration("timeout"); d > 0 {
		return d
	}
	step := v.GetDuration(config.KeyInjectTimeout)
	if step <= 0 {
		step = inject.DefaultTimeout
	}
	return 4*step + requestTimeout
}

// clientCmd builds a sub-command that talks to the daemon. Flags common to
// all such commands are added here.
func clientCmd(use, short string, args cobra.PositionalArgs, run func(*cobra.Command, *viper.Viper, []string) error) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Args:    args,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, a []string) error { return run(cmd, v, a) },
	}
	addSocketFlag(cmd)
	addConfigFlag(cmd)
	return cmd
}

// dial returns a client for the daemon named by --socket.
func dial(v *viper.Viper) (*rpc.Client, error) {
	path := v.GetString("socket")
	if !ipc.IsRunning(path) {
		return nil, fmt.Errorf("no clipring daemon listening on %s (start one with \"clipring daemon\")", path)
	}
	return rpc.Dial(path, "clipring-cli")
}

// withClient dials, runs fn with a bounded context and closes the client.
func withClient(v *viper.Viper, fn func(context.Context, *rpc.Client) error) error {
	return withClientTimeout(v, requestTimeout, fn)
}

func withClientTimeout(v *viper.Viper, timeout time.Duration, fn func(context.Context, *rpc.Client) error) error {
	c, err := dial(v)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, c)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid entry id %q", s)
	}
	return id, nil
}

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
	return t.Format("2006-01-02 15:04")
}
