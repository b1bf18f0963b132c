package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/guias-cli/internal/entity"
	"github.com/sells-group/guias-cli/internal/ledger"
	"github.com/sells-group/guias-cli/internal/model"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List the registered companies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, err := entity.Load(cfg.Paths.Entities)
		if err != nil {
			return err
		}
		reg := ledger.NewRegistry(cfg.Paths.Ledgers)
		formatEntities(os.Stdout, dir.All(), reg.Exists)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
}

// formatEntities writes the entity table to out. hasLedger reports whether
// an entity already has a ledger file.
func formatEntities(out io.Writer, entities []model.LegalEntity, hasLedger func(string) bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CNPJ\tLEGAL NAME\tTRADE NAME\tFOLDER\tLEDGER")
	_, _ = fmt.Fprintln(w, "----\t----------\t----------\t------\t------")
	for _, e := range entities {
		ledgerState := "-"
		if hasLedger(e.TaxID) {
			ledgerState = "yes"
		}
		name := e.LegalName
		if len(e.PriorNames) > 0 {
			name += " (formerly " + strings.Join(e.PriorNames, ", ") + ")"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", formatTaxID(e.TaxID), name, e.TradeName, e.Folder, ledgerState)
	}
	_ = w.Flush()
}

// formatTaxID renders a 14-digit CNPJ as 00.000.000/0000-00.
func formatTaxID(id string) string {
	if len(id) != 14 {
		return id
	}
	return id[0:2] + "." + id[2:5] + "." + id[5:8] + "/" + id[8:12] + "-" + id[12:14]
}
