package models

import (
	"time"
)

// Channel represents a live channel. Its Name is the public routing key for
// chat: one history window, one viewer count and one set of restrictions hang
// off it. Renaming a channel migrates those derived keys.
type Channel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"unique;not null;size:100" json:"name"`
	OwnerID     uint      `gorm:"not null;index" json:"owner_id"`
	Owner       *User     `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Title       string    `gorm:"size:255" json:"title"`
	Category    string    `gorm:"size:100;index" json:"category"`
	IsLive      bool      `gorm:"default:false;index" json:"is_live"`
	ViewerCount int       `gorm:"default:0" json:"viewer_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChatMessage is the wire and storage form of a single chat line. Messages
// are persisted in the per-channel history window (Redis), not in Postgres;
// MsgID is the handle moderation uses to delete them.
type ChatMessage struct {
	MsgID       string    `json:"msg_id"`
	ChannelName string    `json:"channel_name"`
	SenderID    uint      `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_at"`
}
