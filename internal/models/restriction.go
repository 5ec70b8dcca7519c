package models

import "time"

// ChatRestriction stores channel-scoped timeouts and bans. At most one row
// exists per (channel, user); a nil ExpiresAt is a permanent ban, a non-nil
// one a timeout.
type ChatRestriction struct {
	ChannelID      uint       `gorm:"primaryKey;autoIncrement:false" json:"channel_id"`
	UserID         uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	IssuedByUserID uint       `gorm:"not null;index" json:"issued_by_user_id"`
	Reason         string     `gorm:"type:text;default:''" json:"reason"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	User         *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	IssuedByUser *User `gorm:"foreignKey:IssuedByUserID" json:"issued_by_user,omitempty"`
}

// TableName specifies the table name for GORM.
func (ChatRestriction) TableName() string {
	return "chat_restrictions"
}

// Active reports whether the restriction still applies at the given time.
func (r *ChatRestriction) Active(now time.Time) bool {
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

// PlatformBan stores platform-level bans, independent of any channel
// restriction. A banned user is refused chat admission everywhere.
type PlatformBan struct {
	UserID         uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	IssuedByUserID uint      `gorm:"not null;index" json:"issued_by_user_id"`
	Reason         string    `gorm:"type:text;default:''" json:"reason"`
	CreatedAt      time.Time `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (PlatformBan) TableName() string {
	return "platform_bans"
}
