package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"redis-job-pipeline/internal/domain"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (d *DB) CreateFile(ctx context.Context, f *domain.StoredFile) error {
	return d.db.WithContext(ctx).Create(f).Error
}

// FilesContaining returns every file whose filename contains substr.
// Matching is case-sensitive on every dialect: LIKE narrows the scan and the
// result is filtered again in Go.
func (d *DB) FilesContaining(ctx context.Context, substr string) ([]domain.StoredFile, error) {
	var files []domain.StoredFile
	err := d.db.WithContext(ctx).
		Where(`filename LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(substr)+"%").
		Order("id").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}

	out := files[:0]
	for _, f := range files {
		if strings.Contains(f.Filename, substr) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *DB) UpdateFile(ctx context.Context, id, filename, objectKey string) error {
	res := d.db.WithContext(ctx).Model(&domain.StoredFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"filename":   filename,
			"object_key": objectKey,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update file %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update file %s: %w", id, ErrNotFound)
	}
	return nil
}
