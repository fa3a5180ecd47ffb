package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/arbiter/internal/fetcher"
	"github.com/sells-group/arbiter/internal/input"
	"github.com/sells-group/arbiter/internal/model"
	"github.com/sells-group/arbiter/internal/session"
	"github.com/sells-group/arbiter/internal/store"
)

var (
	runSave      bool
	runFetch     bool
	runMinQuorum int
	runFormat    string
)

// runOutput is what `run` prints.
type runOutput struct {
	SessionID string `json:"session_id,omitempty"`
	*session.EnrichResult
}

var runCmd = &cobra.Command{
	Use:   "run <request-file>",
	Short: "Arbitrate one property from a request file",
	Long:  "Reads a YAML or JSON request (property_id plus source batches), arbitrates every field and prints the result. Use - to read standard input.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil {
			return err
		}
		if runFormat != "json" && runFormat != "table" {
			return eris.Errorf("unsupported format: %s", runFormat)
		}

		req, err := input.Load(args[0])
		if err != nil {
			return err
		}
		if runMinQuorum > 0 {
			req.MinQuorum = runMinQuorum
		}

		enricher, err := initEnricher(nil)
		if err != nil {
			return err
		}

		sources := fetcher.FromBatches(req.Batches)
		if runFetch {
			sources = append(sources, configuredSources()...)
		}

		res, err := enricher.Enrich(ctx, req.Property(), sources, req.MinQuorum)
		if err != nil {
			return eris.Wrap(err, "arbitrate")
		}

		out := runOutput{EnrichResult: res}
		if runSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			sess := store.NewSession(req.PropertyID, res.Result)
			if err := st.SaveSession(ctx, sess); err != nil {
				return eris.Wrap(err, "save session")
			}
			out.SessionID = sess.ID
			zap.L().Info("session saved", zap.String("session_id", sess.ID))
		}

		return writeRunOutput(os.Stdout, out, runFormat)
	},
}

func writeRunOutput(w io.Writer, out runOutput, format string) error {
	if format == "table" {
		if out.SessionID != "" {
			_, _ = fmt.Fprintf(w, "Session: %s\n", out.SessionID)
		}
		formatFields(w, out.Result)
		failed := make([]string, 0, len(out.SourceErrors))
		for src := range out.SourceErrors {
			failed = append(failed, src)
		}
		slices.Sort(failed)
		for _, src := range failed {
			_, _ = fmt.Fprintf(w, "source %s failed: %s\n", src, out.SourceErrors[src])
		}
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// formatFields writes the final field values of res as a table, sorted by
// field key, followed by conflict and warning counts.
func formatFields(out io.Writer, res *model.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tVALUE\tSOURCE\tTIER\tCONFIDENCE\tSTATUS")
	_, _ = fmt.Fprintln(w, "-----\t-----\t------\t----\t----------\t------")

	keys := make([]string, 0, len(res.Fields))
	for k := range res.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		f := res.Fields[k]
		value := f.Value.String()
		if len(value) > 40 {
			value = value[:37] + "..."
		}
		status := string(f.ValidationStatus)
		if f.HasConflict {
			status += " (conflict)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d %s\t%s\t%s\n",
			k, value, f.Source, int(f.Tier), f.Tier.Label(), f.Confidence, status)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d fields, %d conflicts, %d validation failures, %d quorum fields, %d single-source warnings\n",
		len(res.Fields), len(res.Conflicts), len(res.ValidationFailures),
		len(res.LLMQuorumFields), len(res.SingleSourceWarnings))
}

func init() {
	runCmd.Flags().BoolVar(&runSave, "save", false, "persist the session to the configured store")
	runCmd.Flags().BoolVar(&runFetch, "fetch", false, "also fetch the property from the configured HTTP sources")
	runCmd.Flags().IntVar(&runMinQuorum, "min-quorum", 0, "minimum LLM agreement for quorum (default from request or config)")
	runCmd.Flags().StringVar(&runFormat, "format", "json", "output format: json or table")
	rootCmd.AddCommand(runCmd)
}
