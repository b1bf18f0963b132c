package ledger

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/guias-cli/internal/extract"
	"github.com/sells-group/guias-cli/internal/model"
)

var exportHeader = []string{
	"id", "doc_type", "reference_period", "due_date", "due_date_declared",
	"amount", "document_number", "recalculated", "source_path", "processed_at",
}

// ExportXLSX writes records to a single-sheet workbook at path.
func ExportXLSX(records []model.LedgerRecord, sheetName, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %q", sheetName)
	}

	writeRow(sheet, exportHeader)
	for _, rec := range records {
		writeRow(sheet, []string{
			strconv.FormatInt(rec.ID, 10),
			string(rec.DocType),
			rec.ReferencePeriod,
			rec.DueDate,
			rec.DueDateDeclared,
			extract.FormatAmount(rec.Amount),
			rec.DocumentNumber,
			strconv.FormatBool(rec.Recalculated),
			rec.SourcePath,
			rec.ProcessedAt.UTC().Format(timeLayout),
		})
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func writeRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
