package domain

import (
	"log/slog"
	"time"

	"gorm.io/datatypes"
)

type Webhook struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	URL       string    `json:"url" gorm:"not null"`
	Secret    string    `json:"-" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// LogValue keeps the signing secret out of logs.
func (w Webhook) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", w.ID),
		slog.String("url", w.URL),
		slog.Bool("is_active", w.IsActive),
	)
}

type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// WebhookDelivery records a single delivery attempt. Rows are append-only.
type WebhookDelivery struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	WebhookID      string         `json:"webhook_id" gorm:"index;not null"`
	Event          string         `json:"event" gorm:"not null"`
	Payload        datatypes.JSON `json:"payload"`
	Status         DeliveryStatus `json:"status" gorm:"not null"`
	Attempts       int            `json:"attempts" gorm:"not null"`
	ResponseStatus *int           `json:"response_status"`
	LastAttemptAt  time.Time      `json:"last_attempt_at" gorm:"index"`
}
