// Package ledger persists the guides archived for each legal entity. Every
// entity owns an independent SQLite file named after its CNPJ.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/sells-group/guias-cli/internal/model"
)

var (
	// ErrDuplicatePath is returned when a record with the same source path
	// is already in the ledger.
	ErrDuplicatePath = errors.New("ledger: source path already recorded")

	// ErrNotFound is returned when no record matches the given path or id.
	ErrNotFound = errors.New("ledger: record not found")
)

// Ledger is the record store of one entity.
type Ledger interface {
	// Insert appends rec and sets rec.ID.
	Insert(ctx context.Context, rec *model.LedgerRecord) error

	// FindMatching returns the most recently processed record with the given
	// period, due date and amount, or nil.
	FindMatching(ctx context.Context, period, dueDate string, amount decimal.Decimal) (*model.LedgerRecord, error)

	// ListAll returns every record, most recent first.
	ListAll(ctx context.Context) ([]model.LedgerRecord, error)

	HasPath(ctx context.Context, path string) (bool, error)
	UpdatePath(ctx context.Context, oldPath, newPath string) error
	Remove(ctx context.Context, path string) error

	// Supersede removes the record oldID and inserts rec in one transaction.
	Supersede(ctx context.Context, oldID int64, rec *model.LedgerRecord) error

	Close() error
}
