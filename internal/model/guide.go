package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocType identifies the kind of payment document.
type DocType string

const (
	DocTypeUnknown DocType = "unknown"
	DocTypeDARF    DocType = "darf"    // Documento de Arrecadação de Receitas Federais
	DocTypeESocial DocType = "esocial" // Documento de Arrecadação do eSocial
	DocTypeFGTS    DocType = "fgts"    // Guia do FGTS Digital (layout not parsed)
)

// Supported reports whether the extractor knows how to parse the type.
func (t DocType) Supported() bool {
	return t == DocTypeDARF || t == DocTypeESocial
}

// Layout is the text layout the extractor committed to.
type Layout string

const (
	LayoutNormal  Layout = "normal"  // "PA:<period> Vencimento:<date>" on one line
	LayoutESocial Layout = "esocial" // period and due date in separate blocks
)

// Guide is the metadata extracted from a single payment document.
type Guide struct {
	DocType         DocType         `json:"doc_type"`
	Layout          Layout          `json:"layout"`
	TaxID           string          `json:"tax_id"`
	EntityName      string          `json:"entity_name"`
	ReferencePeriod string          `json:"reference_period"`
	DueDateDeclared string          `json:"due_date_declared"`
	PayUntil        string          `json:"pay_until"`
	DueDateStated   string          `json:"due_date_stated"`
	Amount          decimal.Decimal `json:"amount"`
	DocumentNumber  string          `json:"document_number"`
	Recalculated    bool            `json:"recalculated"`
	SourcePath      string          `json:"source_path"`
	ProcessedAt     time.Time       `json:"processed_at"`
}

// LedgerRecord is a guide persisted in an entity ledger.
type LedgerRecord struct {
	ID              int64           `json:"id"`
	DocType         DocType         `json:"doc_type"`
	ReferencePeriod string          `json:"reference_period"`
	DueDate         string          `json:"due_date"`
	DueDateDeclared string          `json:"due_date_declared"`
	Amount          decimal.Decimal `json:"amount"`
	DocumentNumber  string          `json:"document_number"`
	Recalculated    bool            `json:"recalculated"`
	SourcePath      string          `json:"source_path"`
	ProcessedAt     time.Time       `json:"processed_at"`
}

// NewLedgerRecord builds the record for a guide archived at path.
func NewLedgerRecord(g *Guide, path string) *LedgerRecord {
	return &LedgerRecord{
		DocType:         g.DocType,
		ReferencePeriod: g.ReferencePeriod,
		DueDate:         g.DueDateStated,
		DueDateDeclared: g.DueDateDeclared,
		Amount:          g.Amount,
		DocumentNumber:  g.DocumentNumber,
		Recalculated:    g.Recalculated,
		SourcePath:      path,
		ProcessedAt:     g.ProcessedAt,
	}
}
