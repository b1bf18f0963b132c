package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/guias-cli/internal/extract"
	"github.com/sells-group/guias-cli/internal/ledger"
	"github.com/sells-group/guias-cli/internal/model"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and maintain per-company ledgers",
	Long:  "Commands for listing, exporting and correcting the guides recorded for a company.",
}

// openLedger opens the existing ledger of a CNPJ. It never creates one.
func openLedger(ctx context.Context, taxID string) (*ledger.Registry, ledger.Ledger, error) {
	if err := cfg.Validate("ledger"); err != nil {
		return nil, nil, err
	}
	reg := ledger.NewRegistry(cfg.Paths.Ledgers)
	if !reg.Exists(taxID) {
		return nil, nil, eris.Errorf("no ledger for %s", taxID)
	}
	l, err := reg.Get(ctx, taxID)
	if err != nil {
		return nil, nil, err
	}
	return reg, l, nil
}

// -- ledger list --

var ledgerListCmd = &cobra.Command{
	Use:   "list <cnpj>",
	Short: "List the guides recorded for a company, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, l, err := openLedger(ctx, args[0])
		if err != nil {
			return err
		}
		defer reg.Close() //nolint:errcheck

		recs, err := l.ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "ledger list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No guides recorded.")
			return nil
		}
		formatRecords(os.Stdout, recs)
		return nil
	},
}

// -- ledger export --

var ledgerExportCmd = &cobra.Command{
	Use:   "export <cnpj>",
	Short: "Export a company ledger to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, l, err := openLedger(ctx, args[0])
		if err != nil {
			return err
		}
		defer reg.Close() //nolint:errcheck

		recs, err := l.ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "ledger export")
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = model.NormalizeTaxID(args[0]) + ".xlsx"
		}
		if err := ledger.ExportXLSX(recs, "guias", out); err != nil {
			return err
		}
		zap.L().Info("ledger exported", zap.String("path", out), zap.Int("records", len(recs)))
		return nil
	},
}

// -- ledger mv --

var ledgerMvCmd = &cobra.Command{
	Use:   "mv <cnpj> <old-path> <new-path>",
	Short: "Move an archived guide and update its record",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, l, err := openLedger(ctx, args[0])
		if err != nil {
			return err
		}
		defer reg.Close() //nolint:errcheck

		recordOnly, _ := cmd.Flags().GetBool("record-only")
		return moveRecord(ctx, l, args[1], args[2], recordOnly)
	},
}

// moveRecord relocates the file at oldPath and then points its record at
// newPath. The file is moved back if the record cannot be updated.
func moveRecord(ctx context.Context, l ledger.Ledger, oldPath, newPath string, recordOnly bool) error {
	ok, err := l.HasPath(ctx, oldPath)
	if err != nil {
		return eris.Wrap(err, "ledger mv")
	}
	if !ok {
		return eris.Errorf("ledger mv: %s is not recorded", oldPath)
	}

	if !recordOnly {
		if _, err := os.Stat(newPath); err == nil {
			return eris.Errorf("ledger mv: %s already exists", newPath)
		}
		if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
			return eris.Wrap(err, "ledger mv: create dir")
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			return eris.Wrap(err, "ledger mv: move file")
		}
	}

	if err := l.UpdatePath(ctx, oldPath, newPath); err != nil {
		if !recordOnly {
			if rbErr := os.Rename(newPath, oldPath); rbErr != nil {
				zap.L().Error("ledger mv: restore file failed", zap.String("path", newPath), zap.Error(rbErr))
			}
		}
		return eris.Wrap(err, "ledger mv: update record")
	}
	zap.L().Info("ledger record moved", zap.String("from", oldPath), zap.String("to", newPath))
	return nil
}

// -- ledger rm --

var ledgerRmCmd = &cobra.Command{
	Use:   "rm <cnpj> <path>",
	Short: "Remove a guide record; the file itself is kept",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, l, err := openLedger(ctx, args[0])
		if err != nil {
			return err
		}
		defer reg.Close() //nolint:errcheck

		if err := l.Remove(ctx, args[1]); err != nil {
			return eris.Wrap(err, "ledger rm")
		}
		zap.L().Info("ledger record removed", zap.String("path", args[1]))
		return nil
	},
}

func init() {
	ledgerExportCmd.Flags().String("out", "", "output workbook path (default <cnpj>.xlsx)")
	ledgerMvCmd.Flags().Bool("record-only", false, "only update the record; the file was already moved")

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)
	ledgerCmd.AddCommand(ledgerMvCmd)
	ledgerCmd.AddCommand(ledgerRmCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// formatRecords writes a tabular list of ledger records to out.
func formatRecords(out io.Writer, recs []model.LedgerRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tPERIOD\tDUE\tAMOUNT\tRECALC\tDOCUMENT\tPROCESSED\tPATH")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t---\t------\t------\t--------\t---------\t----")
	for _, r := range recs {
		recalc := ""
		if r.Recalculated {
			recalc = "yes"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.DocType,
			r.ReferencePeriod,
			r.DueDate,
			extract.FormatAmount(r.Amount),
			recalc,
			r.DocumentNumber,
			r.ProcessedAt.Format("2006-01-02 15:04"),
			r.SourcePath,
		)
	}
	_ = w.Flush()
}
