package models

import "time"

// AuditLogEntry records one moderation event. Rows are append-only and never
// updated or deleted; every successful moderation action writes at least one.
type AuditLogEntry struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Action       string    `gorm:"size:32;not null;index" json:"action"`
	ActorID      uint      `gorm:"not null;index" json:"actor_id"`
	TargetUserID *uint     `gorm:"index" json:"target_user_id,omitempty"`
	ChannelID    *uint     `gorm:"index" json:"channel_id,omitempty"`
	MessageID    *string   `gorm:"size:64" json:"message_id,omitempty"`
	Reason       string    `gorm:"type:text;default:''" json:"reason"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM.
func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}
