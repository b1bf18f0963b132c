package ledger

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/guias-cli/internal/model"
)

// Registry opens and caches one ledger per entity under a root directory.
// A ledger that fails to open only affects its own entity.
type Registry struct {
	dir string

	mu      sync.Mutex
	ledgers map[string]*SQLiteLedger
}

// NewRegistry creates a registry rooted at dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, ledgers: make(map[string]*SQLiteLedger)}
}

// Path returns the database file for a tax id.
func (r *Registry) Path(taxID string) string {
	return filepath.Join(r.dir, model.NormalizeTaxID(taxID)+".db")
}

// Exists reports whether a ledger file has been created for taxID.
func (r *Registry) Exists(taxID string) bool {
	_, err := os.Stat(r.Path(taxID))
	return err == nil
}

// Get returns the ledger for taxID, creating and migrating it on first use.
func (r *Registry) Get(ctx context.Context, taxID string) (Ledger, error) {
	id := model.NormalizeTaxID(taxID)
	if id == "" {
		return nil, eris.Errorf("ledger: empty tax id %q", taxID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.ledgers[id]; ok {
		return l, nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ledger: create dir %s", r.dir)
	}
	l, err := NewSQLite(r.Path(id))
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: open %s", id)
	}
	if err := l.Migrate(ctx); err != nil {
		l.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "ledger: migrate %s", id)
	}
	r.ledgers[id] = l
	zap.L().Debug("ledger opened", zap.String("tax_id", id), zap.String("path", l.Path()))
	return l, nil
}

// Close closes every opened ledger.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, l := range r.ledgers {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = eris.Wrapf(err, "ledger: close %s", id)
		}
		delete(r.ledgers, id)
	}
	return firstErr
}
