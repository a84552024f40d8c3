package models

import "time"

// Payment marks the completion of a fine. The unique FineID makes a second
// completion of the same fine a constraint violation.
type Payment struct {
	ID     uint      `gorm:"primaryKey"`
	FineID uint      `gorm:"uniqueIndex;not null"`
	UserID uint      `gorm:"index;not null"`
	Amount int64     `gorm:"not null"`
	PaidAt time.Time `gorm:"not null"`
}
