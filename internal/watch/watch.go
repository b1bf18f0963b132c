// Package watch feeds PDF files arriving in the inbox to the pipeline.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Sink receives files that are ready to process.
type Sink interface {
	Enqueue(ctx context.Context, path string) bool
}

// Watcher reports inbox PDFs once they stop changing. It combines an
// initial scan, filesystem events and a periodic rescan for events the
// platform may have dropped.
type Watcher struct {
	dir    string
	settle time.Duration
	rescan time.Duration
	sink   Sink

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
	stop   chan struct{}
}

// New creates a Watcher. A zero rescan interval disables rescans.
func New(dir string, settle, rescan time.Duration, sink Sink) *Watcher {
	return &Watcher{
		dir:    dir,
		settle: settle,
		rescan: rescan,
		sink:   sink,
		timers: make(map[string]*time.Timer),
		ready:  make(chan string, 64),
		stop:   make(chan struct{}),
	}
}

// IsPDF reports whether name has a .pdf extension, in any case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Scan lists the PDF files directly inside dir, sorted by name.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "watch: read dir %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsPDF(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Run watches until ctx is cancelled. A Watcher runs once.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "watch: create watcher")
	}
	defer fw.Close() //nolint:errcheck

	if err := fw.Add(w.dir); err != nil {
		return eris.Wrapf(err, "watch: add %s", w.dir)
	}
	defer w.stopTimers()
	defer close(w.stop)

	zap.L().Info("watch: watching inbox",
		zap.String("dir", w.dir),
		zap.Duration("settle", w.settle),
		zap.Duration("rescan", w.rescan),
	)

	w.scan(ctx, false)

	var tick <-chan time.Time
	if w.rescan > 0 {
		ticker := time.NewTicker(w.rescan)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("watch: watcher error", zap.Error(err))
		case path := <-w.ready:
			w.submit(ctx, path)
		case <-tick:
			w.scan(ctx, true)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !IsPDF(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
	}
}

// schedule (re)starts the settle timer of path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.stop:
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// scan submits every PDF in the inbox. On rescans, files modified within
// the settle window are left to their pending events.
func (w *Watcher) scan(ctx context.Context, rescan bool) {
	paths, err := Scan(w.dir)
	if err != nil {
		zap.L().Warn("watch: scan failed", zap.Error(err))
		return
	}
	if len(paths) > 0 {
		zap.L().Debug("watch: scan", zap.Int("files", len(paths)), zap.Bool("rescan", rescan))
	}
	for _, p := range paths {
		if rescan && !w.settled(p) {
			continue
		}
		w.submit(ctx, p)
	}
}

func (w *Watcher) settled(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) >= w.settle
}

func (w *Watcher) submit(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if w.sink.Enqueue(ctx, path) {
		zap.L().Debug("watch: queued", zap.String("file", filepath.Base(path)))
	}
}
