package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipring/internal/inject"
	"go.klb.dev/clipring/internal/rpc"
)

func newListCmd() *cobra.Command {
	cmd := clientCmd("list", "List clipboard history, newest first", cobra.NoArgs,
		func(_ *cobra.Command, v *viper.Viper, _ []string) error {
			return withClient(v, func(ctx context.Context, c *rpc.Client) error {
				entries, err := c.List(ctx)
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				if v.GetBool("json") {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}
				printEntries(entries)
				return nil
			})
		})
	cmd.Flags().Bool("json", false, "output raw JSON")
	return cmd
}

func printEntries(entries []rpc.Entry) {
	if len(entries) == 0 {
		fmt.Println("History is empty.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "SLOT\tID\tPIN\tKIND\tCOPIED\tPREVIEW\n")
	for i, e := range entries {
		pin := ""
		if e.Pinned {
			pin = "*"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", i+1, e.ID, pin, e.Kind, fmtAge(e.CreatedAt), e.Preview)
	}
	_ = tw.Flush()
}

func newGetCmd() *cobra.Command {
	cmd := clientCmd("get <id>", "Write an entry's content to stdout", cobra.ExactArgs(1),
		func(_ *cobra.Command, v *viper.Viper, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(v, func(ctx context.Context, c *rpc.Client) error {
				e, err := c.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("get: %w", err)
				}
				_, err = os.Stdout.Write(e.Data)
				return err
			})
		})
	cmd.Long = `Writes the raw content of a history entry to stdout. Images come out as
their original encoding:

  clipring get 7 > screenshot.png`
	return cmd
}

func newPasteCmd() *cobra.Command {
	cmd := clientCmd("paste <id>", "Paste an entry into the focused application", cobra.ExactArgs(1),
		func(_ *cobra.Command, v *viper.Viper, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClientTimeout(v, pasteTimeout(v), func(ctx context.Context, c *rpc.Client) error {
				res, err := c.Paste(ctx, id, v.GetString("target"))
				if errors.Is(err, inject.ErrInjectionFailed) && res.ClipboardWritten {
					fmt.Fprintf(os.Stderr, "entry %d is on the clipboard, but the paste keystroke failed; paste by hand\n", id)
				}
				if err != nil {
					return fmt.Errorf("paste: %w", err)
				}
				return nil
			})
		})
	cmd.Long = `Puts a history entry on the clipboard and types the paste chord into the
focused application. The entry keeps its place in the history.

Exit status is 2 when the clipboard was set but the keystroke could not be
delivered (for example without write access to /dev/uinput).`
	cmd.Flags().String("target", "", "informational hint naming the target application")
	cmd.Flags().Duration("timeout", 0, "how long to wait for the daemon (default: derived from inject-timeout)")
	return cmd
}

func newPinCmd() *cobra.Command {
	return idCmd("pin <id>", "Protect an entry from eviction", (*rpc.Client).Pin)
}

func newUnpinCmd() *cobra.Command {
	return idCmd("unpin <id>", "Make a pinned entry evictable again", (*rpc.Client).Unpin)
}

func newDeleteCmd() *cobra.Command {
	return idCmd("delete <id>", "Remove an entry from the history", (*rpc.Client).Delete)
}

func idCmd(use, short string, call func(*rpc.Client, context.Context, uint64) error) *cobra.Command {
	return clientCmd(use, short, cobra.ExactArgs(1),
		func(cmd *cobra.Command, v *viper.Viper, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(v, func(ctx context.Context, c *rpc.Client) error {
				if err := call(c, ctx, id); err != nil {
					return fmt.Errorf("%s: %w", cmd.Name(), err)
				}
				return nil
			})
		})
}

func newClearCmd() *cobra.Command {
	cmd := clientCmd("clear", "Remove all history entries", cobra.NoArgs,
		func(_ *cobra.Command, v *viper.Viper, _ []string) error {
			return withClient(v, func(ctx context.Context, c *rpc.Client) error {
				n, err := c.Clear(ctx, v.GetBool("keep-pinned"))
				if err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				fmt.Printf("Removed %d entries.\n", n)
				return nil
			})
		})
	cmd.Flags().Bool("keep-pinned", false, "keep pinned entries")
	return cmd
}
