package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/guias-cli/internal/model"
	"github.com/sells-group/guias-cli/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the inbox and conflict backlog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		collector := monitoring.NewCollector(cfg.Paths.Inbox, cfg.Paths.Conflicts)
		snap, err := collector.Collect(ctx, cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			return err
		}
		alerts := monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*monitoring.MetricsSnapshot
				Alerts []monitoring.Alert `json:"alerts"`
			}{snap, alerts})
		}

		formatStatus(os.Stdout, snap, alerts)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes the backlog summary to out.
func formatStatus(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Inbox:\t%d\n", snap.InboxDepth)
	if snap.InboxDepth > 0 {
		_, _ = fmt.Fprintf(w, "  Oldest:\t%s\n", (time.Duration(snap.OldestInboxAge) * time.Second).String())
	}
	_, _ = fmt.Fprintf(w, "Conflicts:\t%d\n", snap.ConflictTotal)
	for _, r := range []model.ConflictReason{
		model.ConflictUnregisteredEntity,
		model.ConflictUnsupportedType,
		model.ConflictProcessingError,
		model.ConflictDuplicate,
	} {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\t(%d in last %dh)\n", r, snap.Conflicts[r], snap.RecentConflicts[r], snap.LookbackHours)
	}
	_ = w.Flush()

	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", a.Severity, a.Message)
	}
}
