// Package pipeline drives each guide file from the inbox to its entity
// folder or to the conflict area.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/guias-cli/internal/archive"
	"github.com/sells-group/guias-cli/internal/entity"
	"github.com/sells-group/guias-cli/internal/extract"
	"github.com/sells-group/guias-cli/internal/ledger"
	"github.com/sells-group/guias-cli/internal/metrics"
	"github.com/sells-group/guias-cli/internal/model"
	"github.com/sells-group/guias-cli/internal/ocr"
	"github.com/sells-group/guias-cli/internal/resilience"
	"github.com/sells-group/guias-cli/internal/resolve"
)

// LedgerSource returns the ledger of an entity.
type LedgerSource interface {
	Get(ctx context.Context, taxID string) (ledger.Ledger, error)
}

// Result is the terminal outcome of processing one file.
type Result struct {
	Path       string
	State      model.State
	Guide      *model.Guide
	Entity     *model.LegalEntity
	StoredPath string
	Superseded *model.LedgerRecord
	Conflict   *model.ConflictEntry
	Err        error
}

// Pipeline processes guide files. It is safe for concurrent use; work on
// the same entity is serialized through the Locker.
type Pipeline struct {
	ocr      ocr.Extractor
	entities *entity.Directory
	ledgers  LedgerSource
	archive  *archive.Archiver
	locker   Locker
	metrics  *metrics.Metrics
	retry    resilience.RetryConfig
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLocker replaces the default in-process locker.
func WithLocker(l Locker) Option {
	return func(p *Pipeline) { p.locker = l }
}

// WithMetrics records outcomes and latencies on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRetry sets the backoff used for transient text extraction failures
// and for ledger writes that hit a busy database.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *Pipeline) { p.retry = cfg }
}

// WithClock overrides the processing timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline.
func New(extractor ocr.Extractor, entities *entity.Directory, ledgers LedgerSource, arch *archive.Archiver, opts ...Option) *Pipeline {
	p := &Pipeline{
		ocr:      extractor,
		entities: entities,
		ledgers:  ledgers,
		archive:  arch,
		locker:   NewLocalLocker(),
		retry:    resilience.DefaultRetryConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one file through the state machine. Every failure ends in a
// conflict routing; the file is never deleted. When ctx is cancelled before
// the entity lock is taken the file is left in place.
func (p *Pipeline) Process(ctx context.Context, path string) Result {
	start := time.Now()
	p.metrics.IncInFlight()
	defer p.metrics.DecInFlight()

	log := zap.L().With(zap.String("file", filepath.Base(path)))
	res := Result{Path: path, State: model.StateReceived}

	defer func() {
		docType := string(model.DocTypeUnknown)
		if res.Guide != nil {
			docType = string(res.Guide.DocType)
		}
		p.metrics.IncrementDocument(string(res.State), docType)
		p.metrics.ObserveProcess(time.Since(start))
	}()

	if ctx.Err() != nil {
		return p.skip(log, res, "shutdown requested")
	}
	if _, err := os.Stat(path); err != nil {
		return p.skip(log, res, "file no longer in inbox")
	}

	// Text and classification.
	stageStart := time.Now()
	ocrRetry := p.retry
	ocrRetry.OnRetry = resilience.RetryLogger("ocr", path)
	text, err := resilience.DoVal(ctx, ocrRetry, func(ctx context.Context) (string, error) {
		return p.ocr.ExtractText(ctx, path)
	})
	p.metrics.ObserveStage("ocr", time.Since(stageStart))
	if err != nil {
		if ctx.Err() != nil {
			return p.skip(log, res, "shutdown during text extraction")
		}
		return p.conflict(ctx, log, res, model.ConflictProcessingError, "", err)
	}

	stageStart = time.Now()
	g, err := extract.Extract(text, path, p.now())
	p.metrics.ObserveStage("extract", time.Since(stageStart))
	if err != nil {
		var skip *extract.SkipError
		if errors.As(err, &skip) {
			res.Guide = &model.Guide{DocType: skip.DocType, SourcePath: path}
			return p.conflict(ctx, log, res, model.ConflictUnsupportedType, "", err)
		}
		return p.conflict(ctx, log, res, model.ConflictProcessingError, "", err)
	}
	res.Guide = g
	res.State = model.StateClassified
	log = log.With(zap.String("doc_type", string(g.DocType)), zap.String("tax_id", g.TaxID))

	// Entity.
	e, ok := p.entities.Resolve(g.TaxID)
	if !ok {
		return p.conflict(ctx, log, res, model.ConflictUnregisteredEntity, g.TaxID,
			eris.Errorf("pipeline: no entity registered for %s", g.TaxID))
	}
	res.Entity = &e
	res.State = model.StateEntityResolved
	if !entity.KnownName(e, g.EntityName) {
		log.Info("pipeline: extracted name differs from registered names",
			zap.String("extracted", g.EntityName),
			zap.String("legal_name", e.LegalName),
		)
	}

	held, unlock, err := p.locker.Lock(ctx, e.TaxID)
	if err != nil {
		if ctx.Err() != nil {
			return p.skip(log, res, "shutdown while waiting for entity lock")
		}
		return p.conflict(ctx, log, res, model.ConflictProcessingError, e.TaxID, err)
	}
	defer unlock()

	// Inside the locked section the work completes even if shutdown is
	// requested; held is only cancelled when the lock is lost.
	return p.store(held, log, res, e, g)
}

func (p *Pipeline) store(ctx context.Context, log *zap.Logger, res Result, e model.LegalEntity, g *model.Guide) Result {
	if ctx.Err() != nil {
		log.Warn("pipeline: entity lock lost before storing", zap.Error(context.Cause(ctx)))
		return p.skip(log, res, "entity lock lost")
	}

	stageStart := time.Now()
	l, err := p.ledgers.Get(ctx, e.TaxID)
	if err != nil {
		return p.conflict(ctx, log, res, model.ConflictProcessingError, e.TaxID, err)
	}

	decision, err := resolve.Resolve(ctx, g, l)
	p.metrics.ObserveStage("resolve", time.Since(stageStart))
	if err != nil {
		return p.conflict(ctx, log, res, model.ConflictProcessingError, e.TaxID, err)
	}
	res.State = model.StateResolverDecided

	if decision.Kind == resolve.Reject {
		return p.conflict(ctx, log, res, model.ConflictDuplicate, e.TaxID,
			eris.Errorf("pipeline: duplicate of %s (record %d)", decision.Existing.SourcePath, decision.Existing.ID))
	}

	stageStart = time.Now()
	defer func() { p.metrics.ObserveStage("store", time.Since(stageStart)) }()

	// A recorded path whose file was moved away by hand stays reserved so
	// the insert cannot collide with it.
	dest, err := p.archive.Store(ctx, res.Path, p.archive.Destination(e, g), func(path string) (bool, error) {
		return l.HasPath(ctx, path)
	})
	if err != nil {
		return p.conflict(ctx, log, res, model.ConflictProcessingError, e.TaxID, err)
	}

	if ctx.Err() != nil {
		// Lock lost after the move: the ledger may have another writer.
		return p.conflictFrom(ctx, log, res, dest, model.ConflictProcessingError, e.TaxID, context.Cause(ctx))
	}

	rec := model.NewLedgerRecord(g, dest)
	retry := p.retry
	retry.OnRetry = resilience.RetryLogger("ledger_write", e.TaxID)
	err = resilience.Do(ctx, retry, func(ctx context.Context) error {
		if decision.Kind == resolve.Supersede {
			return l.Supersede(ctx, decision.Existing.ID, rec)
		}
		return l.Insert(ctx, rec)
	})
	if err != nil {
		// The file was already archived; move it on to the conflict area.
		reason := model.ConflictProcessingError
		if errors.Is(err, ledger.ErrDuplicatePath) {
			reason = model.ConflictDuplicate
		}
		return p.conflictFrom(ctx, log, res, dest, reason, e.TaxID, err)
	}

	if decision.Kind == resolve.Supersede {
		res.Superseded = decision.Existing
		p.retire(ctx, log, e, decision.Existing)
	}

	res.State = model.StateStored
	res.StoredPath = dest
	log.Info("pipeline: guide stored",
		zap.String("entity", e.LegalName),
		zap.String("period", g.ReferencePeriod),
		zap.String("due_date", g.DueDateStated),
		zap.String("amount", extract.FormatAmount(g.Amount)),
		zap.Bool("recalculated", g.Recalculated),
		zap.String("path", dest),
	)
	return res
}

// retire moves the file of a superseded record out of the active folder.
func (p *Pipeline) retire(ctx context.Context, log *zap.Logger, e model.LegalEntity, old *model.LedgerRecord) {
	fields := []zap.Field{
		zap.Int64("record_id", old.ID),
		zap.String("period", old.ReferencePeriod),
		zap.String("due_date", old.DueDate),
		zap.String("amount", extract.FormatAmount(old.Amount)),
		zap.String("document_number", old.DocumentNumber),
		zap.String("path", old.SourcePath),
	}
	if _, err := os.Stat(old.SourcePath); err != nil {
		log.Warn("pipeline: superseded guide file missing", append(fields, zap.Error(err))...)
		return
	}
	retired, err := p.archive.Retire(ctx, e, old.SourcePath)
	if err != nil {
		log.Warn("pipeline: retire superseded guide failed", append(fields, zap.Error(err))...)
		return
	}
	log.Info("pipeline: guide superseded", append(fields, zap.String("retired_to", retired))...)
}

func (p *Pipeline) skip(log *zap.Logger, res Result, why string) Result {
	res.State = model.StateSkipped
	log.Debug("pipeline: file left in inbox", zap.String("reason", why))
	return res
}

func (p *Pipeline) conflict(ctx context.Context, log *zap.Logger, res Result, reason model.ConflictReason, taxID string, cause error) Result {
	return p.conflictFrom(ctx, log, res, res.Path, reason, taxID, cause)
}

// conflictFrom relocates src into the conflict area and logs the outcome at
// the level of its reason.
func (p *Pipeline) conflictFrom(ctx context.Context, log *zap.Logger, res Result, src string, reason model.ConflictReason, taxID string, cause error) Result {
	ctx = context.WithoutCancel(ctx)
	res.State = model.ConflictState(reason)
	res.Err = cause

	entry := model.ConflictEntry{Reason: reason, OriginalPath: res.Path, TaxID: taxID}
	if cause != nil {
		entry.Error = cause.Error()
	}
	moved, err := p.archive.Conflict(ctx, src, entry)
	if err != nil {
		res.State = model.StateConflictError
		res.Err = eris.Wrapf(err, "pipeline: route %s to conflicts", src)
		log.Error("pipeline: conflict routing failed, file left in place",
			zap.String("reason", string(reason)),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return res
	}
	res.Conflict = moved

	fields := []zap.Field{
		zap.String("reason", string(reason)),
		zap.String("conflict_path", moved.Path),
		zap.Error(cause),
	}
	switch reason {
	case model.ConflictProcessingError:
		log.Error("pipeline: guide routed to conflicts", fields...)
	default:
		log.Warn("pipeline: guide routed to conflicts", fields...)
	}
	return res
}
