package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/guias-cli/internal/extract"
	"github.com/sells-group/guias-cli/internal/model"
)

// timeLayout keeps processed_at sortable as text at second precision.
const timeLayout = "2006-01-02 15:04:05"

// SQLiteLedger implements Ledger using modernc.org/sqlite.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

var _ Ledger = (*SQLiteLedger)(nil)

// NewSQLite opens a SQLite ledger at the given path and configures WAL mode.
func NewSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db, path: path}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS guides (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_type          TEXT NOT NULL,
	reference_period  TEXT NOT NULL,
	due_date          TEXT NOT NULL,
	due_date_declared TEXT NOT NULL,
	amount            TEXT NOT NULL,
	document_number   TEXT NOT NULL,
	recalculated      INTEGER NOT NULL DEFAULT 0,
	source_path       TEXT NOT NULL UNIQUE,
	processed_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_guides_reference_period ON guides(reference_period);
CREATE INDEX IF NOT EXISTS idx_guides_due_date ON guides(due_date);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Path returns the database file location.
func (s *SQLiteLedger) Path() string {
	return s.path
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

const insertGuide = `INSERT INTO guides
	(doc_type, reference_period, due_date, due_date_declared, amount, document_number, recalculated, source_path, processed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_path) DO NOTHING`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec *model.LedgerRecord) error {
	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	processedAt = processedAt.UTC().Truncate(time.Second)

	res, err := db.ExecContext(ctx, insertGuide,
		string(rec.DocType), rec.ReferencePeriod, rec.DueDate, rec.DueDateDeclared,
		extract.FormatAmount(rec.Amount), rec.DocumentNumber, rec.Recalculated,
		rec.SourcePath, processedAt.Format(timeLayout),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert guide %s", rec.SourcePath)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrDuplicatePath
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: last insert id")
	}
	rec.ID = id
	rec.ProcessedAt = processedAt
	return nil
}

func (s *SQLiteLedger) Insert(ctx context.Context, rec *model.LedgerRecord) error {
	return insertRecord(ctx, s.db, rec)
}

const selectGuide = `SELECT id, doc_type, reference_period, due_date, due_date_declared, amount,
	document_number, recalculated, source_path, processed_at FROM guides`

func (s *SQLiteLedger) FindMatching(ctx context.Context, period, dueDate string, amount decimal.Decimal) (*model.LedgerRecord, error) {
	row := s.db.QueryRowContext(ctx,
		selectGuide+` WHERE reference_period = ? AND due_date = ? AND amount = ?
		 ORDER BY processed_at DESC, id DESC LIMIT 1`,
		period, dueDate, extract.FormatAmount(amount),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find matching guide")
	}
	return rec, nil
}

func (s *SQLiteLedger) ListAll(ctx context.Context) ([]model.LedgerRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectGuide+` ORDER BY processed_at DESC, id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list guides")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LedgerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan guide")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list guides iterate")
}

func (s *SQLiteLedger) HasPath(ctx context.Context, path string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guides WHERE source_path = ?`, path).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: lookup path %s", path)
	}
	return n > 0, nil
}

func (s *SQLiteLedger) UpdatePath(ctx context.Context, oldPath, newPath string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE guides SET source_path = ? WHERE source_path = ?`, newPath, oldPath)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePath
		}
		return eris.Wrapf(err, "sqlite: update path %s", oldPath)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteLedger) Remove(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM guides WHERE source_path = ?`, path)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete guide %s", path)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteLedger) Supersede(ctx context.Context, oldID int64, rec *model.LedgerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin supersede")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM guides WHERE id = ?`, oldID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete superseded guide %d", oldID)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if err := insertRecord(ctx, tx, rec); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit supersede")
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.LedgerRecord, error) {
	var (
		rec         model.LedgerRecord
		docType     string
		amount      string
		processedAt string
	)
	err := row.Scan(&rec.ID, &docType, &rec.ReferencePeriod, &rec.DueDate, &rec.DueDateDeclared,
		&amount, &rec.DocumentNumber, &rec.Recalculated, &rec.SourcePath, &processedAt)
	if err != nil {
		return nil, err
	}
	rec.DocType = model.DocType(docType)
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse amount %q", amount)
	}
	if rec.ProcessedAt, err = time.ParseInLocation(timeLayout, processedAt, time.UTC); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse processed_at %q", processedAt)
	}
	return &rec, nil
}
