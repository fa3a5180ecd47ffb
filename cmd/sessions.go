package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/arbiter/internal/model"
	"github.com/sells-group/arbiter/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect saved arbitration sessions",
	Long:  "Commands for listing, viewing, auditing, and pruning saved sessions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("sessions")
	},
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		property, _ := cmd.Flags().GetString("property")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		since, _ := cmd.Flags().GetDuration("since")

		filter := store.SessionFilter{PropertyID: property, Limit: limit, Offset: offset}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		sessions, err := st.ListSessions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}

		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		formatSessionsList(os.Stdout, sessions)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's full result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}

		if table, _ := cmd.Flags().GetBool("table"); table {
			formatFields(os.Stdout, sess.Result)
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

// -- sessions audit --

var sessionsAuditCmd = &cobra.Command{
	Use:   "audit <session-id>",
	Short: "Show a session's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		field, _ := cmd.Flags().GetString("field")
		entries, err := st.ListAudit(ctx, args[0], field)
		if err != nil {
			return eris.Wrap(err, "sessions audit")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No audit entries found.")
			return nil
		}

		formatAudit(os.Stdout, entries)
		return nil
	},
}

// -- sessions prune --

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete sessions older than the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			olderThan = time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour
		}
		if olderThan <= 0 {
			return eris.New("sessions prune: no retention window (set --older-than or store.retention_days)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cutoff := time.Now().Add(-olderThan)
		n, err := st.PruneSessions(ctx, cutoff)
		if err != nil {
			return eris.Wrap(err, "sessions prune")
		}

		zap.L().Info("sessions pruned", zap.Int("deleted", n), zap.Time("cutoff", cutoff))
		fmt.Fprintf(os.Stdout, "Deleted %d sessions created before %s.\n", n, cutoff.UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().String("property", "", "filter by property ID")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")
	sessionsListCmd.Flags().Int("offset", 0, "number of sessions to skip")
	sessionsListCmd.Flags().Duration("since", 0, "only sessions newer than this (e.g. 24h, 168h)")

	sessionsShowCmd.Flags().Bool("table", false, "print the final fields as a table instead of JSON")

	sessionsAuditCmd.Flags().String("field", "", "only entries for this field")

	sessionsPruneCmd.Flags().Duration("older-than", 0, "delete sessions older than this (default store.retention_days)")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsAuditCmd)
	sessionsCmd.AddCommand(sessionsPruneCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// formatSessionsList writes a tabular list of sessions to w.
func formatSessionsList(out io.Writer, sessions []model.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROPERTY\tFIELDS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t-------")

	for _, s := range sessions {
		property := s.PropertyID
		if len(property) > 30 {
			property = property[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			truncateID(s.ID),
			property,
			s.FieldCount,
			s.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatAudit writes audit entries in decision order to w.
func formatAudit(out io.Writer, entries []model.AuditEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tFIELD\tACTION\tSOURCE\tTIER\tVALUE\tPREVIOUS\tREASON")

	for _, e := range entries {
		prev := ""
		if e.PreviousSource != "" {
			prev = fmt.Sprintf("%s (%s)", e.PreviousValue.String(), e.PreviousSource)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			e.Timestamp.Format("15:04:05.000"),
			e.Field,
			e.Action,
			e.Source,
			int(e.Tier),
			e.Value.String(),
			prev,
			e.Reason,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
