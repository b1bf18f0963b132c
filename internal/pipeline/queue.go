package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/guias-cli/internal/metrics"
)

// Processor handles one file.
type Processor interface {
	Process(ctx context.Context, path string) Result
}

// Queue feeds inbox files to a bounded pool of workers. A path is queued at
// most once until its processing finishes.
type Queue struct {
	proc    Processor
	workers int
	items   chan string
	metrics *metrics.Metrics

	// OnResult is called after each file is processed, from the worker
	// goroutines.
	OnResult func(Result)

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
	senders sync.WaitGroup
}

// NewQueue creates a Queue with the given worker count and buffer size.
func NewQueue(proc Processor, workers, size int, m *metrics.Metrics) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	return &Queue{
		proc:    proc,
		workers: workers,
		items:   make(chan string, size),
		metrics: m,
		pending: make(map[string]struct{}),
	}
}

// Enqueue adds path unless it is already queued or being processed. It
// blocks while the buffer is full and reports whether path was added.
func (q *Queue) Enqueue(ctx context.Context, path string) bool {
	if ctx.Err() != nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if _, ok := q.pending[path]; ok {
		q.mu.Unlock()
		return false
	}
	q.pending[path] = struct{}{}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	select {
	case q.items <- path:
		q.metrics.SetQueueDepth(len(q.items))
		return true
	case <-ctx.Done():
		q.done(path)
		return false
	}
}

// Close stops accepting paths. Run returns once the queued paths are done.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.senders.Wait()
	close(q.items)
}

// Pending returns the number of paths queued or in progress.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run processes queued paths until the queue is closed and drained, or ctx
// is cancelled. Paths still buffered at cancellation stay in the inbox.
func (q *Queue) Run(ctx context.Context) error {
	zap.L().Info("pipeline: workers started", zap.Int("workers", q.workers))

	var g errgroup.Group
	g.SetLimit(q.workers)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case path, ok := <-q.items:
			if !ok {
				break loop
			}
			q.metrics.SetQueueDepth(len(q.items))
			g.Go(func() error {
				defer q.done(path)
				res := q.proc.Process(ctx, path)
				if q.OnResult != nil {
					q.OnResult(res)
				}
				return nil
			})
		}
	}

	err := g.Wait()
	zap.L().Info("pipeline: workers stopped", zap.Int("abandoned", len(q.items)))
	return err
}

func (q *Queue) done(path string) {
	q.mu.Lock()
	delete(q.pending, path)
	q.mu.Unlock()
}
