package cache

import "fmt"

const (
	HistoryKeyPrefix  = "chat:history:%s"
	PresenceKeyPrefix = "presence:%s:%s"
	PresenceScanGlob  = "presence:%s:*"
	ViewersKeyPrefix  = "viewers:%s"

	EmojiDirectoryKey        = "emoji:directory"
	EmojiDirectoryStagingKey = "emoji:directory:staging"
)

// HistoryKey is the sorted set holding a channel's bounded message window.
func HistoryKey(channel string) string {
	return fmt.Sprintf(HistoryKeyPrefix, channel)
}

// PresenceKey marks one live connection on a channel. TTL-bounded; its
// existence means "viewer present".
func PresenceKey(channel, connID string) string {
	return fmt.Sprintf(PresenceKeyPrefix, channel, connID)
}

// PresencePattern is the SCAN glob matching all presence keys of a channel.
func PresencePattern(channel string) string {
	return fmt.Sprintf(PresenceScanGlob, channel)
}

// ViewersKey holds the reconciled live-viewer count of a channel.
func ViewersKey(channel string) string {
	return fmt.Sprintf(ViewersKeyPrefix, channel)
}
