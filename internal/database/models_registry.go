package database

import "glimmer/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Channel{},
		&models.ChatRestriction{},
		&models.PlatformBan{},
		&models.ModerationReport{},
		&models.AuditLogEntry{},
		&models.Emoji{},
	}
}
