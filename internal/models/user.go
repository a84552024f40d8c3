package models

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User represents an account holder. Admins issue fines, users owe them.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"size:40;not null"`
	Email        string    `gorm:"size:64;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	Role         Role      `gorm:"size:16;index;not null;default:user"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	ID   uint
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}
