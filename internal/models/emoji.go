package models

import "time"

// Emoji is one entry of the channel emote directory. The table is the load
// source; the serving copy lives in Redis and is atomically replaced on
// reload so removed names disappear.
type Emoji struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"unique;not null;size:100" json:"name"`
	URL       string    `gorm:"not null;size:500" json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Emoji) TableName() string {
	return "emojis"
}
