package monitoring

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/guias-cli/internal/archive"
	"github.com/sells-group/guias-cli/internal/model"
	"github.com/sells-group/guias-cli/internal/resilience"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestCollector_Empty(t *testing.T) {
	root := t.TempDir()
	inbox := filepath.Join(root, "inbox")
	require.NoError(t, os.Mkdir(inbox, 0o755))

	snap, err := NewCollector(inbox, filepath.Join(root, "conflicts")).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.ConflictTotal)
	assert.Zero(t, snap.InboxDepth)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_CountsConflictsAndInbox(t *testing.T) {
	root := t.TempDir()
	inbox := filepath.Join(root, "inbox")
	conflicts := filepath.Join(root, "conflicts")
	now := time.Now()

	touch(t, filepath.Join(inbox, "a.pdf"), now.Add(-10*time.Minute))
	touch(t, filepath.Join(inbox, "b.PDF"), now.Add(-2*time.Minute))
	touch(t, filepath.Join(inbox, "notes.txt"), now.Add(-time.Hour))

	touch(t, filepath.Join(conflicts, "duplicate", "old.pdf"), now.Add(-72*time.Hour))
	touch(t, filepath.Join(conflicts, "duplicate", "new.pdf"), now.Add(-time.Hour))

	// Routed through the archiver so a sidecar is written.
	src := filepath.Join(root, "broken.pdf")
	touch(t, src, now)
	arch := archive.New(filepath.Join(root, "processed"), conflicts, resilience.RetryConfig{MaxAttempts: 1})
	_, err := arch.Conflict(context.Background(), src, model.ConflictEntry{Reason: model.ConflictProcessingError})
	require.NoError(t, err)

	snap, err := NewCollector(inbox, conflicts).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.ConflictTotal, "sidecars are not counted")
	assert.Equal(t, 2, snap.Conflicts[model.ConflictDuplicate])
	assert.Equal(t, 1, snap.Conflicts[model.ConflictProcessingError])
	assert.Equal(t, 1, snap.RecentConflicts[model.ConflictDuplicate])
	assert.Equal(t, 1, snap.RecentConflicts[model.ConflictProcessingError])

	assert.Equal(t, 2, snap.InboxDepth)
	assert.GreaterOrEqual(t, snap.OldestInboxAge, int64(9*60))
}

func TestCollector_MissingInbox(t *testing.T) {
	root := t.TempDir()
	_, err := NewCollector(filepath.Join(root, "nope"), root).Collect(context.Background(), 24)
	assert.Error(t, err)
}
