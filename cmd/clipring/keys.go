package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go.klb.dev/clipring/internal/hotkey"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List key names usable in chords",
		Long: `Lists the key names accepted in chord settings such as --hotkey, joined
with "+" (for example "super+v" or "ctrl+shift+insert"). Keys without a
name can be given by evdev code as "code:<n>".`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			printKeys(hotkey.KeyNames(), hotkey.Aliases())
		},
	}
}

func printKeys(names []string, aliases map[string]string) {
	const perLine = 8
	for i := 0; i < len(names); i += perLine {
		fmt.Println(strings.Join(names[i:min(i+perLine, len(names))], "  "))
	}
	if len(aliases) == 0 {
		return
	}
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ALIAS\tMEANS\n")
	for _, a := range slices.Sorted(maps.Keys(aliases)) {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", a, aliases[a])
	}
	_ = tw.Flush()
}
