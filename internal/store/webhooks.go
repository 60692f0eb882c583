package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"redis-job-pipeline/internal/domain"
)

func (d *DB) CreateWebhook(ctx context.Context, w *domain.Webhook) error {
	return d.db.WithContext(ctx).Create(w).Error
}

func (d *DB) Webhook(ctx context.Context, id string) (*domain.Webhook, error) {
	var w domain.Webhook
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook %s: %w", id, err)
	}
	return &w, nil
}

// SetWebhookActive toggles delivery for a webhook. Queued deliveries for an
// inactive webhook complete without sending.
func (d *DB) SetWebhookActive(ctx context.Context, id string, active bool) error {
	res := d.db.WithContext(ctx).Model(&domain.Webhook{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("update webhook %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
