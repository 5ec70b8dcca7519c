package models

import "time"

// Report lifecycle states. A report leaves ReportStatusOpen exactly once;
// the other two states are terminal.
const (
	ReportStatusOpen      = "OPEN"
	ReportStatusReviewed  = "REVIEWED"
	ReportStatusDismissed = "DISMISSED"
)

// Moderation actions applicable to an open report (and, for the enforcement
// subset, invokable directly by admin tooling).
const (
	ActionReview        = "REVIEW"
	ActionDismiss       = "DISMISS"
	ActionDeleteMessage = "DELETE_MESSAGE"
	ActionTimeout10m    = "TIMEOUT_10M"
	ActionTimeout1h     = "TIMEOUT_1H"
	ActionBanChat       = "BAN_CHAT"
	ActionLiftChatBan   = "LIFT_CHAT_BAN"
	ActionBanPlatform   = "BAN_PLATFORM"
	ActionUnbanPlatform = "UNBAN_PLATFORM"
)

// ModerationReport is a viewer-submitted report against another user,
// optionally pinned to a specific message. Claiming (the conditional update
// that moves it out of OPEN) guarantees at-most-once handling under
// concurrent moderators.
type ModerationReport struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ChannelID         uint       `gorm:"not null;index" json:"channel_id"`
	ReporterID        uint       `gorm:"not null;index" json:"reporter_id"`
	TargetUserID      uint       `gorm:"not null;index" json:"target_user_id"`
	TargetUsername    string     `gorm:"size:100" json:"target_username"`
	ReportedMessageID *string    `gorm:"size:64" json:"reported_message_id,omitempty"`
	Reason            string     `gorm:"type:text;not null" json:"reason"`
	Status            string     `gorm:"size:20;not null;default:OPEN;index" json:"status"`
	LastAction        string     `gorm:"size:32;default:''" json:"last_action"`
	HandledByUserID   *uint      `gorm:"index" json:"handled_by_user_id,omitempty"`
	HandledAt         *time.Time `json:"handled_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Reporter      *User `gorm:"foreignKey:ReporterID" json:"reporter,omitempty"`
	TargetUser    *User `gorm:"foreignKey:TargetUserID" json:"target_user,omitempty"`
	HandledByUser *User `gorm:"foreignKey:HandledByUserID" json:"handled_by_user,omitempty"`
}

// TableName specifies the table name for GORM.
func (ModerationReport) TableName() string {
	return "moderation_reports"
}
