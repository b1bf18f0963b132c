package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/guias-cli/internal/ledger"
	"github.com/sells-group/guias-cli/internal/model"
)

type mockMatcher struct {
	mock.Mock
}

func (m *mockMatcher) FindMatching(ctx context.Context, period, dueDate string, amount decimal.Decimal) (*model.LedgerRecord, error) {
	args := m.Called(ctx, period, dueDate, amount)
	rec, _ := args.Get(0).(*model.LedgerRecord)
	return rec, args.Error(1)
}

func guide(declared string, recalculated bool) *model.Guide {
	return &model.Guide{
		DocType:         model.DocTypeDARF,
		TaxID:           "12345678000190",
		ReferencePeriod: "01/2024",
		DueDateDeclared: declared,
		PayUntil:        declared,
		DueDateStated:   "20/02/2024",
		Amount:          decimal.RequireFromString("1234.56"),
		DocumentNumber:  "DOC-" + declared,
		Recalculated:    recalculated,
		ProcessedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newLedger(t *testing.T) *ledger.SQLiteLedger {
	t.Helper()
	l, err := ledger.NewSQLite(filepath.Join(t.TempDir(), "resolve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() }) //nolint:errcheck
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func TestResolve_AcceptNew(t *testing.T) {
	l := newLedger(t)

	d, err := Resolve(context.Background(), guide("20/02/2024", false), l)
	require.NoError(t, err)
	assert.Equal(t, Accept, d.Kind)
	assert.Nil(t, d.Existing)
}

func TestResolve_RejectDuplicate(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	stored := model.NewLedgerRecord(guide("20/02/2024", false), "/store/a.pdf")
	require.NoError(t, l.Insert(ctx, stored))

	d, err := Resolve(ctx, guide("20/02/2024", false), l)
	require.NoError(t, err)
	assert.Equal(t, Reject, d.Kind)
	require.NotNil(t, d.Existing)
	assert.Equal(t, stored.ID, d.Existing.ID)
}

func TestResolve_SupersedeRecalculated(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	stored := model.NewLedgerRecord(guide("20/02/2024", false), "/store/a.pdf")
	require.NoError(t, l.Insert(ctx, stored))

	d, err := Resolve(ctx, guide("28/03/2024", true), l)
	require.NoError(t, err)
	assert.Equal(t, Supersede, d.Kind)
	require.NotNil(t, d.Existing)
	assert.Equal(t, "/store/a.pdf", d.Existing.SourcePath)
}

func TestResolve_RecalculatedWithoutPriorIsAccepted(t *testing.T) {
	l := newLedger(t)

	d, err := Resolve(context.Background(), guide("28/03/2024", true), l)
	require.NoError(t, err)
	assert.Equal(t, Accept, d.Kind)
}

func TestResolve_SameRecalculatedDocumentTwice(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	recalc := guide("28/03/2024", true)
	require.NoError(t, l.Insert(ctx, model.NewLedgerRecord(recalc, "/store/recalc.pdf")))

	d, err := Resolve(ctx, guide("28/03/2024", true), l)
	require.NoError(t, err)
	assert.Equal(t, Reject, d.Kind)
}

func TestResolve_DifferentAmountIsNew(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx, model.NewLedgerRecord(guide("20/02/2024", false), "/store/a.pdf")))

	g := guide("20/02/2024", false)
	g.Amount = decimal.RequireFromString("1234.57")
	d, err := Resolve(ctx, g, l)
	require.NoError(t, err)
	assert.Equal(t, Accept, d.Kind)
}

func TestResolve_QueriesStatedDueDate(t *testing.T) {
	m := &mockMatcher{}
	g := guide("28/03/2024", true)
	m.On("FindMatching", mock.Anything, "01/2024", "20/02/2024", g.Amount).Return(nil, nil)

	d, err := Resolve(context.Background(), g, m)
	require.NoError(t, err)
	assert.Equal(t, Accept, d.Kind)
	m.AssertExpectations(t)
}

func TestResolve_MatcherError(t *testing.T) {
	m := &mockMatcher{}
	m.On("FindMatching", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("database is locked"))

	_, err := Resolve(context.Background(), guide("20/02/2024", false), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find matching guide")
}
