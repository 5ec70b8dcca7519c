package server

import (
	"time"

	"glimmer/internal/models"
)

// inboundFrame is the typed client->server frame envelope. Untyped legacy
// frames (no "type" field) are shimmed in the router when LEGACY_FRAMES is on.
type inboundFrame struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Emojis  []string `json:"emojis,omitempty"`
	Term    string   `json:"searchTerm,omitempty"`
}

// messageUser identifies the sender inside a chat frame.
type messageUser struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type messageFrame struct {
	Type    string      `json:"type"`
	MsgID   string      `json:"msg_id"`
	Channel string      `json:"channel"`
	User    messageUser `json:"user"`
	Message string      `json:"message"`
	SentAt  time.Time   `json:"sent_at"`
}

func newMessageFrame(msg models.ChatMessage) messageFrame {
	return messageFrame{
		Type:    frameMessage,
		MsgID:   msg.MsgID,
		Channel: msg.ChannelName,
		User: messageUser{
			ID:        msg.SenderID,
			Username:  msg.SenderName,
			AvatarURL: msg.AvatarURL,
		},
		Message: msg.Body,
		SentAt:  msg.SentAt,
	}
}

// historyFrame replays the retained window in the same shape live messages
// arrive in, so clients render both through one path.
type historyFrame struct {
	Type     string         `json:"type"`
	Messages []messageFrame `json:"messages"`
}

type noticeFrame struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Message string `json:"message"`
}

type pongFrame struct {
	Type string `json:"type"`
}

// statusFrame carries structured denials: restriction, rate limiting,
// backpressure drops. Clients key off Status, not the free-form Reason.
type statusFrame struct {
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type emojiMsgResponseFrame struct {
	Type   string            `json:"type"`
	Emojis map[string]string `json:"emojis"`
}

type emojiSearchResponseFrame struct {
	Type    string   `json:"type"`
	Results []string `json:"results"`
}

const (
	frameMessage     = "message"
	framePing        = "ping"
	frameEmojiMsg    = "emojiMsg"
	frameEmojiSearch = "emojiSearch"
)

// systemNoticeSender is the reserved identity welcome notices come from.
const systemNoticeSender = "glimmer"
