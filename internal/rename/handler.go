// Package rename renames stored files whose filename contains a pattern.
package rename

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"redis-job-pipeline/internal/blob"
	"redis-job-pipeline/internal/domain"
	"redis-job-pipeline/internal/queue"
)

// Payload is the body of a job on the file-rename queue.
type Payload struct {
	OldPattern string `json:"oldPattern"`
	NewPattern string `json:"newPattern"`
}

type FileStore interface {
	FilesContaining(ctx context.Context, substr string) ([]domain.StoredFile, error)
	UpdateFile(ctx context.Context, id, filename, objectKey string) error
}

type Handler struct {
	files  FileStore
	blobs  blob.Store
	logger *slog.Logger
}

func NewHandler(files FileStore, blobs blob.Store, logger *slog.Logger) *Handler {
	return &Handler{files: files, blobs: blobs, logger: logger}
}

// Execute renames every matching file in turn. The first failure aborts the
// batch; files already renamed no longer match OldPattern, so a rerun only
// touches what is left.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	var p Payload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if p.OldPattern == "" {
		return queue.Permanent(errors.New("oldPattern is required"))
	}
	if p.OldPattern == p.NewPattern {
		return nil
	}
	// renamed files must stop matching, or every rerun renames them again
	if strings.Contains(p.NewPattern, p.OldPattern) {
		return queue.Permanent(fmt.Errorf("newPattern %q contains oldPattern %q", p.NewPattern, p.OldPattern))
	}

	files, err := h.files.FilesContaining(ctx, p.OldPattern)
	if err != nil {
		return err
	}

	log := h.logger.With("job_id", job.ID, "old_pattern", p.OldPattern, "new_pattern", p.NewPattern)
	log.Info("Renaming files", "event", "rename_started", "matched", len(files))

	for i, f := range files {
		newFilename := strings.ReplaceAll(f.Filename, p.OldPattern, p.NewPattern)
		newKey := RenameKey(f.ObjectKey, f.Filename, newFilename)

		if err := h.renameOne(ctx, f, newFilename, newKey); err != nil {
			log.Error("Rename failed", "event", "rename_failed", "file_id", f.ID, "renamed", i, "error", err)
			return fmt.Errorf("rename file %s: %w", f.ID, err)
		}
		log.Debug("File renamed", "event", "file_renamed", "file_id", f.ID, "object_key", newKey)
	}

	log.Info("Rename completed", "event", "rename_completed", "renamed", len(files))
	return nil
}

func (h *Handler) renameOne(ctx context.Context, f domain.StoredFile, newFilename, newKey string) error {
	if newKey != f.ObjectKey {
		if err := h.blobs.Copy(ctx, f.ObjectKey, newKey); err != nil {
			// an earlier run may have copied and deleted before the
			// record update; resume from the update
			if !errors.Is(err, blob.ErrNotFound) {
				return err
			}
			ok, xerr := h.blobs.Exists(ctx, newKey)
			if xerr != nil {
				return xerr
			}
			if !ok {
				return err
			}
		} else if err := h.blobs.Delete(ctx, f.ObjectKey); err != nil {
			return err
		}
	}
	return h.files.UpdateFile(ctx, f.ID, newFilename, newKey)
}

// RenameKey replaces the last occurrence of oldFilename in key. A key that
// does not contain the filename keeps its directory and takes newFilename as
// its base.
func RenameKey(key, oldFilename, newFilename string) string {
	if i := strings.LastIndex(key, oldFilename); i >= 0 {
		return key[:i] + newFilename + key[i+len(oldFilename):]
	}
	if j := strings.LastIndex(key, "/"); j >= 0 {
		return key[:j+1] + newFilename
	}
	return newFilename
}
