// Package archive relocates guide files: into the owning entity's folder
// when stored, into a superseded folder when retired, and into the conflict
// area, tagged with a reason, when the pipeline rejects them.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/guias-cli/internal/model"
	"github.com/sells-group/guias-cli/internal/resilience"
)

const supersededDir = "superseded"

// Archiver moves files under the processed and conflict roots. Files are
// only ever moved, never deleted or overwritten.
type Archiver struct {
	processedRoot string
	conflictRoot  string
	retry         resilience.RetryConfig
	now           func() time.Time
}

// New creates an Archiver.
func New(processedRoot, conflictRoot string, retry resilience.RetryConfig) *Archiver {
	return &Archiver{
		processedRoot: processedRoot,
		conflictRoot:  conflictRoot,
		retry:         retry,
		now:           time.Now,
	}
}

// EntityDir returns the storage folder of an entity. Relative folders are
// resolved against the processed root.
func (a *Archiver) EntityDir(e model.LegalEntity) string {
	if filepath.IsAbs(e.Folder) {
		return e.Folder
	}
	return filepath.Join(a.processedRoot, e.Folder)
}

// Destination returns the preferred path for g inside the entity folder,
// grouped by reference period. Store may pick a suffixed variant.
func (a *Archiver) Destination(e model.LegalEntity, g *model.Guide) string {
	period := strings.NewReplacer("/", "-", "\\", "-", "..", "").Replace(g.ReferencePeriod)
	return filepath.Join(a.EntityDir(e), period, filepath.Base(g.SourcePath))
}

// Store moves src to dest, or to the first of dest_1, dest_2, ... that is
// neither on disk nor reported by taken, and returns the path used. taken
// may be nil.
func (a *Archiver) Store(ctx context.Context, src, dest string, taken func(string) (bool, error)) (string, error) {
	return a.place(ctx, src, dest, taken)
}

// Retire moves a superseded guide into the entity's superseded folder and
// returns its new location.
func (a *Archiver) Retire(ctx context.Context, e model.LegalEntity, path string) (string, error) {
	return a.place(ctx, path, filepath.Join(a.EntityDir(e), supersededDir, filepath.Base(path)), nil)
}

// Conflict moves path into the conflict area under the entry's reason and
// writes a JSON sidecar describing it. ID, Path and CreatedAt are filled in;
// OriginalPath defaults to path.
func (a *Archiver) Conflict(ctx context.Context, path string, entry model.ConflictEntry) (*model.ConflictEntry, error) {
	if entry.Reason == "" {
		entry.Reason = model.ConflictProcessingError
	}
	if entry.OriginalPath == "" {
		entry.OriginalPath = path
	}
	entry.ID = uuid.New().String()
	entry.CreatedAt = a.now().UTC()
	moved, err := a.place(ctx, path, filepath.Join(a.conflictRoot, string(entry.Reason), filepath.Base(path)), nil)
	if err != nil {
		return nil, err
	}
	entry.Path = moved

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return &entry, eris.Wrap(err, "archive: marshal conflict entry")
	}
	if err := os.WriteFile(SidecarPath(entry.Path), data, 0o644); err != nil {
		// The file itself is preserved; only the annotation is missing.
		zap.L().Warn("archive: write conflict sidecar failed",
			zap.String("path", entry.Path),
			zap.Error(err),
		)
	}
	return &entry, nil
}

// SidecarPath returns the JSON annotation path for a conflict file.
func SidecarPath(path string) string {
	return path + ".json"
}

// ReadConflict loads the sidecar written for a conflict file.
func ReadConflict(path string) (*model.ConflictEntry, error) {
	data, err := os.ReadFile(SidecarPath(path))
	if err != nil {
		return nil, eris.Wrapf(err, "archive: read sidecar for %s", path)
	}
	var entry model.ConflictEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, eris.Wrapf(err, "archive: parse sidecar for %s", path)
	}
	return &entry, nil
}

// place moves src to the first free variant of want.
func (a *Archiver) place(ctx context.Context, src, want string, taken func(string) (bool, error)) (string, error) {
	if err := os.MkdirAll(filepath.Dir(want), 0o755); err != nil {
		return "", eris.Wrapf(err, "archive: create dir for %s", want)
	}

	cfg := a.retry
	cfg.OnRetry = resilience.RetryLogger("move", src)
	for i := 0; i < maxSuffix; i++ {
		dest := suffixed(want, i)
		if taken != nil {
			used, err := taken(dest)
			if err != nil {
				return "", eris.Wrapf(err, "archive: check %s", dest)
			}
			if used {
				continue
			}
		}
		err := resilience.Do(ctx, cfg, func(context.Context) error {
			return linkMove(src, dest)
		})
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", eris.Wrapf(err, "archive: move %s to %s", src, dest)
		}
		return dest, nil
	}
	return "", eris.Errorf("archive: no free name for %s", want)
}

// linkMove moves src to dest without ever replacing an existing dest: the
// link fails with EEXIST where a rename would overwrite.
func linkMove(src, dest string) error {
	err := os.Link(src, dest)
	if errors.Is(err, os.ErrExist) {
		return err
	}
	if err != nil {
		// Cross-device or no hard link support.
		return copyAndRemove(src, dest)
	}
	if err := os.Remove(src); err != nil {
		os.Remove(dest) //nolint:errcheck
		return err
	}
	return nil
}

// copyAndRemove moves a file across filesystems.
func copyAndRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()     //nolint:errcheck
		os.Remove(dest) //nolint:errcheck
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()     //nolint:errcheck
		os.Remove(dest) //nolint:errcheck
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

const maxSuffix = 1000

// suffixed returns p for i == 0 and p with "_<i>" before the extension
// otherwise.
func suffixed(p string, i int) string {
	if i == 0 {
		return p
	}
	ext := filepath.Ext(p)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(p, ext), i, ext)
}
