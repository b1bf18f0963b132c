// Package monitoring watches the conflict area and the inbox for work that
// needs an operator and raises alerts when thresholds are crossed.
package monitoring

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/guias-cli/internal/archive"
	"github.com/sells-group/guias-cli/internal/model"
	"github.com/sells-group/guias-cli/internal/watch"
)

// reasons lists the conflict subfolders the collector inspects.
var reasons = []model.ConflictReason{
	model.ConflictUnregisteredEntity,
	model.ConflictUnsupportedType,
	model.ConflictProcessingError,
	model.ConflictDuplicate,
}

// MetricsSnapshot holds a point-in-time view of the backlog.
type MetricsSnapshot struct {
	// Files waiting in the conflict area, by reason.
	Conflicts     map[model.ConflictReason]int `json:"conflicts"`
	ConflictTotal int                          `json:"conflict_total"`

	// Conflicts created within the lookback window, by reason.
	RecentConflicts map[model.ConflictReason]int `json:"recent_conflicts"`

	// Inbox.
	InboxDepth     int   `json:"inbox_depth"`
	OldestInboxAge int64 `json:"oldest_inbox_age_secs"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers a snapshot from the inbox and conflict folders.
type Collector struct {
	inbox     string
	conflicts string
	now       func() time.Time
}

// NewCollector creates a new collector.
func NewCollector(inbox, conflictRoot string) *Collector {
	return &Collector{inbox: inbox, conflicts: conflictRoot, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		Conflicts:       make(map[model.ConflictReason]int),
		RecentConflicts: make(map[model.ConflictReason]int),
		LookbackHours:   lookbackHours,
		CollectedAt:     now,
	}
	since := now.Add(-time.Duration(lookbackHours) * time.Hour)

	for _, reason := range reasons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(c.conflicts, string(reason))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: read %s", dir)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			snap.Conflicts[reason]++
			snap.ConflictTotal++
			if conflictTime(filepath.Join(dir, e.Name()), e).After(since) {
				snap.RecentConflicts[reason]++
			}
		}
	}

	pending, err := watch.Scan(c.inbox)
	if err != nil {
		return nil, err
	}
	snap.InboxDepth = len(pending)
	for _, p := range pending {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if age := int64(now.Sub(info.ModTime()).Seconds()); age > snap.OldestInboxAge {
			snap.OldestInboxAge = age
		}
	}

	return snap, nil
}

// conflictTime prefers the sidecar timestamp and falls back to the file's
// modification time.
func conflictTime(path string, e os.DirEntry) time.Time {
	if entry, err := archive.ReadConflict(path); err == nil && !entry.CreatedAt.IsZero() {
		return entry.CreatedAt
	}
	info, err := e.Info()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
