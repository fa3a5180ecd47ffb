package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/arbiter/internal/tier"
)

var tiersCmd = &cobra.Command{
	Use:   "tiers [source...]",
	Short: "Show the source tier table, or classify source names",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := initRegistry()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			formatTierTable(os.Stdout, reg.Entries())
			return nil
		}
		formatClassifications(os.Stdout, reg, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tiersCmd)
}

// formatTierTable writes the registry's entries in lookup order.
func formatTierTable(out io.Writer, entries []tier.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tNAME\tTIER\tRELIABILITY\tDESCRIPTION")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d %s\t%d\t%s\n",
			e.Key, e.Name, int(e.Tier), e.Tier.Label(), e.Reliability, e.Description)
	}
	_ = w.Flush()
}

// formatClassifications classifies each source name and explains the match.
func formatClassifications(out io.Writer, reg *tier.Registry, sources []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tTIER\tRELIABILITY\tMATCH")
	for _, s := range sources {
		c := reg.Lookup(s)
		match := "key " + c.Matched
		if c.Matched == "" {
			match = "fallback " + c.Fallback
		}
		_, _ = fmt.Fprintf(w, "%s\t%d %s\t%d\t%s\n", s, int(c.Tier), c.Tier.Label(), c.Reliability, match)
	}
	_ = w.Flush()
}
