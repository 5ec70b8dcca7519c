// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// User represents a platform account as seen by the chat backend. Account
// lifecycle (signup, email, OAuth) is owned by the identity service; this
// table is the directory the chat core reads identity from.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"unique;not null" json:"username"`
	Email     string    `gorm:"unique;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	AvatarURL string    `gorm:"size:500" json:"avatar_url"`
	IsBot     bool      `gorm:"default:false" json:"is_bot"`
	IsAdmin   bool      `gorm:"default:false" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
