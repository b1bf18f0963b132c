package main

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/guias-cli/internal/archive"
	"github.com/sells-group/guias-cli/internal/entity"
	"github.com/sells-group/guias-cli/internal/ledger"
	"github.com/sells-group/guias-cli/internal/metrics"
	"github.com/sells-group/guias-cli/internal/ocr"
	"github.com/sells-group/guias-cli/internal/pipeline"
	"github.com/sells-group/guias-cli/internal/resilience"
)

// pipelineEnv holds everything the watch and process commands need.
type pipelineEnv struct {
	Entities *entity.Directory
	Ledgers  *ledger.Registry
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Redis    *redis.Client // nil unless lock.backend is redis
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Ledgers != nil {
		if err := pe.Ledgers.Close(); err != nil {
			zap.L().Warn("close ledgers", zap.Error(err))
		}
	}
	if pe.Redis != nil {
		_ = pe.Redis.Close()
	}
}

// initPipeline loads the entity directory, prepares the output folders and
// builds the Pipeline. Any failure here aborts the command. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	entities, err := entity.Load(cfg.Paths.Entities)
	if err != nil {
		return nil, eris.Wrap(err, "load entities")
	}
	zap.L().Info("entities loaded", zap.Int("count", entities.Len()))

	for _, dir := range []string{cfg.Paths.Inbox, cfg.Paths.Processed, cfg.Paths.Conflicts, cfg.Paths.Ledgers} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "create dir %s", dir)
		}
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return nil, eris.Wrap(err, "init text extractor")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	env := &pipelineEnv{
		Entities: entities,
		Ledgers:  ledger.NewRegistry(cfg.Paths.Ledgers),
		Metrics:  m,
		Registry: reg,
	}

	retry := resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	opts := []pipeline.Option{pipeline.WithMetrics(m), pipeline.WithRetry(retry)}
	if cfg.Lock.Backend == "redis" {
		client, err := pipeline.NewRedisClient(ctx, cfg.Lock.RedisURL)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "init redis lock")
		}
		env.Redis = client
		opts = append(opts, pipeline.WithLocker(
			pipeline.NewRedisLocker(client, time.Duration(cfg.Lock.TTLSecs)*time.Second),
		))
		zap.L().Info("redis entity lock enabled")
	}

	arch := archive.New(cfg.Paths.Processed, cfg.Paths.Conflicts, retry)
	env.Pipeline = pipeline.New(extractor, entities, env.Ledgers, arch, opts...)

	return env, nil
}
