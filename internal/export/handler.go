// Package export bundles stored files into a zip archive in the blob store.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"redis-job-pipeline/internal/blob"
	"redis-job-pipeline/internal/domain"
	"redis-job-pipeline/internal/queue"
)

// Payload is the body of a job on the zip-export queue.
type Payload struct {
	Pattern   string `json:"pattern"`
	ObjectKey string `json:"objectKey"`
}

type FileStore interface {
	FilesContaining(ctx context.Context, substr string) ([]domain.StoredFile, error)
}

type Handler struct {
	files  FileStore
	blobs  blob.Store
	logger *slog.Logger
}

func NewHandler(files FileStore, blobs blob.Store, logger *slog.Logger) *Handler {
	return &Handler{files: files, blobs: blobs, logger: logger}
}

// Execute writes every file whose filename contains Pattern into one archive
// at ObjectKey. Rerunning overwrites the archive.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	var p Payload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if p.ObjectKey == "" {
		return queue.Permanent(errors.New("objectKey is required"))
	}

	files, err := h.files.FilesContaining(ctx, p.Pattern)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make(map[string]int, len(files))
	for _, f := range files {
		if err := h.addFile(ctx, zw, f, uniqueName(names, f.Filename)); err != nil {
			return fmt.Errorf("export file %s: %w", f.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	size := int64(buf.Len())
	if err := h.blobs.Put(ctx, p.ObjectKey, &buf, size, "application/zip"); err != nil {
		return err
	}

	h.logger.Info("Export written", "event", "export_completed", "job_id", job.ID, "object_key", p.ObjectKey, "files", len(files), "bytes", size)
	return nil
}

func (h *Handler) addFile(ctx context.Context, zw *zip.Writer, f domain.StoredFile, name string) error {
	rc, err := h.blobs.Get(ctx, f.ObjectKey)
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: f.UpdatedAt})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, rc)
	return err
}

// uniqueName suffixes repeated filenames so archive entries do not collide.
func uniqueName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	return fmt.Sprintf("%d-%s", n, name)
}
