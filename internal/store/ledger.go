package store

import (
	"context"
	"fmt"

	"redis-job-pipeline/internal/domain"
)

const defaultDeliveryLimit = 100

// RecordDelivery appends one attempt to the ledger. The ledger has no update
// or delete path.
func (d *DB) RecordDelivery(ctx context.Context, rec *domain.WebhookDelivery) error {
	if err := d.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// Deliveries lists attempts for a webhook, newest first.
func (d *DB) Deliveries(ctx context.Context, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	if limit <= 0 {
		limit = defaultDeliveryLimit
	}
	out := []domain.WebhookDelivery{}
	err := d.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("last_attempt_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return out, nil
}
