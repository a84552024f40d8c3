package models

import "time"

// FineStatus is a node of the fine lifecycle.
type FineStatus string

const (
	StatusRequested FineStatus = "requested" // issued, awaiting payment
	StatusPending   FineStatus = "pending"   // debtor asked to discard it
	StatusCanceled  FineStatus = "canceled"
	StatusCompleted FineStatus = "completed"
)

// AllStatuses lists every status in a stable order.
var AllStatuses = []FineStatus{StatusCanceled, StatusCompleted, StatusPending, StatusRequested}

func (s FineStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusPending, StatusCanceled, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s FineStatus) Terminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

// Fine is a monetary obligation issued by an admin to a user.
// Amount is stored in the smallest currency unit.
type Fine struct {
	ID          uint       `gorm:"primaryKey"`
	Description string     `gorm:"type:text;not null"`
	Amount      int64      `gorm:"not null;check:amount > 0"`
	Status      FineStatus `gorm:"size:16;index;not null;default:requested"`
	AdminID     uint       `gorm:"index;not null"`
	UserID      uint       `gorm:"index;not null"`
	IssuedDate  time.Time  `gorm:"not null"`
	Deadline    time.Time  `gorm:"index;not null"` // date-only, UTC midnight
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
