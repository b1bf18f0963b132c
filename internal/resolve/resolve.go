// Package resolve decides whether an extracted guide is new, a duplicate of
// a guide already on file, or a recalculation that supersedes one.
package resolve

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/guias-cli/internal/model"
)

// Kind is the resolver verdict.
type Kind string

const (
	Accept    Kind = "accept"
	Reject    Kind = "reject"
	Supersede Kind = "supersede"
)

// Decision is the outcome of Resolve. Existing is the matched record for
// Reject and Supersede.
type Decision struct {
	Kind     Kind
	Existing *model.LedgerRecord
}

// Matcher looks up the latest record for a (period, due date, amount) triple.
type Matcher interface {
	FindMatching(ctx context.Context, period, dueDate string, amount decimal.Decimal) (*model.LedgerRecord, error)
}

// Resolve compares g against the entity ledger. The match key is the
// reference period, the original due date and the amount; the document
// number is not part of it.
func Resolve(ctx context.Context, g *model.Guide, m Matcher) (Decision, error) {
	existing, err := m.FindMatching(ctx, g.ReferencePeriod, g.DueDateStated, g.Amount)
	if err != nil {
		return Decision{}, eris.Wrap(err, "resolve: find matching guide")
	}

	switch {
	case existing == nil:
		return Decision{Kind: Accept}, nil
	case !g.Recalculated:
		return Decision{Kind: Reject, Existing: existing}, nil
	case existing.DocumentNumber == g.DocumentNumber:
		// The same recalculated document submitted again.
		return Decision{Kind: Reject, Existing: existing}, nil
	default:
		return Decision{Kind: Supersede, Existing: existing}, nil
	}
}
