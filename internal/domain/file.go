package domain

import "time"

// StoredFile is a file whose blob lives at ObjectKey. Filename and ObjectKey
// must change together on rename.
type StoredFile struct {
	ID        string `gorm:"primaryKey"`
	Filename  string `gorm:"index;not null"`
	ObjectKey string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
