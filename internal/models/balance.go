package models

import "time"

// Balance holds a user's funds in the smallest currency unit. Never negative.
type Balance struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    uint  `gorm:"uniqueIndex;not null"`
	Amount    int64 `gorm:"not null;default:0;check:amount >= 0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
