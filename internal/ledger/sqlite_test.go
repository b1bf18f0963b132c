package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/guias-cli/internal/model"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() }) //nolint:errcheck
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func testRecord(path string, processedAt time.Time) *model.LedgerRecord {
	return &model.LedgerRecord{
		DocType:         model.DocTypeDARF,
		ReferencePeriod: "01/2024",
		DueDate:         "20/02/2024",
		DueDateDeclared: "20/02/2024",
		Amount:          decimal.RequireFromString("1234.56"),
		DocumentNumber:  "07.18.24045.1234567-8",
		SourcePath:      path,
		ProcessedAt:     processedAt,
	}
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSQLite_InsertAndList(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	first := testRecord("/a/first.pdf", t0)
	require.NoError(t, l.Insert(ctx, first))
	assert.NotZero(t, first.ID)

	second := testRecord("/a/second.pdf", t0.Add(time.Hour))
	second.Recalculated = true
	require.NoError(t, l.Insert(ctx, second))

	all, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "/a/second.pdf", all[0].SourcePath)
	assert.True(t, all[0].Recalculated)
	assert.Equal(t, "/a/first.pdf", all[1].SourcePath)
	assert.True(t, all[1].Amount.Equal(decimal.RequireFromString("1234.56")))
	assert.Equal(t, t0, all[1].ProcessedAt)
	assert.Equal(t, model.DocTypeDARF, all[1].DocType)
}

func TestSQLite_InsertDuplicatePath(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx, testRecord("/a/guide.pdf", t0)))

	again := testRecord("/a/guide.pdf", t0.Add(time.Minute))
	again.DocumentNumber = "other"
	err := l.Insert(ctx, again)
	assert.ErrorIs(t, err, ErrDuplicatePath)

	all, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "07.18.24045.1234567-8", all[0].DocumentNumber)
}

func TestSQLite_FindMatching(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx, testRecord("/a/old.pdf", t0)))
	require.NoError(t, l.Insert(ctx, testRecord("/a/new.pdf", t0.Add(time.Hour))))

	other := testRecord("/a/other.pdf", t0.Add(2*time.Hour))
	other.ReferencePeriod = "02/2024"
	require.NoError(t, l.Insert(ctx, other))

	rec, err := l.FindMatching(ctx, "01/2024", "20/02/2024", decimal.RequireFromString("1234.560"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/a/new.pdf", rec.SourcePath)
}

func TestSQLite_FindMatching_TieBreakByID(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx, testRecord("/a/one.pdf", t0)))
	require.NoError(t, l.Insert(ctx, testRecord("/a/two.pdf", t0)))

	rec, err := l.FindMatching(ctx, "01/2024", "20/02/2024", decimal.RequireFromString("1234.56"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/a/two.pdf", rec.SourcePath)
}

func TestSQLite_FindMatching_None(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx, testRecord("/a/guide.pdf", t0)))

	for _, tc := range []struct {
		period, due, amount string
	}{
		{"02/2024", "20/02/2024", "1234.56"},
		{"01/2024", "21/02/2024", "1234.56"},
		{"01/2024", "20/02/2024", "1234.57"},
	} {
		rec, err := l.FindMatching(ctx, tc.period, tc.due, decimal.RequireFromString(tc.amount))
		require.NoError(t, err)
		assert.Nil(t, rec)
	}
}

func TestSQLite_UpdatePath(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx, testRecord("/a/old.pdf", t0)))
	require.NoError(t, l.Insert(ctx, testRecord("/a/taken.pdf", t0)))

	require.NoError(t, l.UpdatePath(ctx, "/a/old.pdf", "/b/new.pdf"))

	ok, err := l.HasPath(ctx, "/b/new.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.HasPath(ctx, "/a/old.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, l.UpdatePath(ctx, "/missing.pdf", "/x.pdf"), ErrNotFound)
	assert.ErrorIs(t, l.UpdatePath(ctx, "/b/new.pdf", "/a/taken.pdf"), ErrDuplicatePath)
}

func TestSQLite_Remove(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx, testRecord("/a/guide.pdf", t0)))
	require.NoError(t, l.Remove(ctx, "/a/guide.pdf"))
	assert.ErrorIs(t, l.Remove(ctx, "/a/guide.pdf"), ErrNotFound)

	all, err := l.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLite_Supersede(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	old := testRecord("/a/old.pdf", t0)
	require.NoError(t, l.Insert(ctx, old))

	repl := testRecord("/a/recalc.pdf", t0.Add(time.Hour))
	repl.DueDateDeclared = "28/03/2024"
	repl.Recalculated = true
	require.NoError(t, l.Supersede(ctx, old.ID, repl))
	assert.NotZero(t, repl.ID)

	all, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/a/recalc.pdf", all[0].SourcePath)
	assert.Equal(t, "28/03/2024", all[0].DueDateDeclared)
}

func TestSQLite_SupersedeRollsBack(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	old := testRecord("/a/old.pdf", t0)
	require.NoError(t, l.Insert(ctx, old))
	require.NoError(t, l.Insert(ctx, testRecord("/a/taken.pdf", t0)))

	err := l.Supersede(ctx, old.ID, testRecord("/a/taken.pdf", t0.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrDuplicatePath)

	ok, err := l.HasPath(ctx, "/a/old.pdf")
	require.NoError(t, err)
	assert.True(t, ok, "old record must survive a failed supersede")

	err = l.Supersede(ctx, 9999, testRecord("/a/new.pdf", t0))
	assert.ErrorIs(t, err, ErrNotFound)
}
