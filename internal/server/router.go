package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"glimmer/internal/chathub"
	"glimmer/internal/middleware"
	"glimmer/internal/models"
	"glimmer/internal/observability"

	"github.com/google/uuid"
)

// routeFrame dispatches one inbound frame from a live connection. Unknown
// frame kinds are dropped silently; malformed frames fall through to the
// legacy shim when it is enabled.
func (s *Server) routeFrame(ctx context.Context, client *chathub.Client, channel *models.Channel, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		if body, ok := s.legacyFrameBody(raw, frame); ok {
			s.handleChatMessage(ctx, client, channel, body)
		}
		return
	}

	switch frame.Type {
	case frameMessage:
		s.handleChatMessage(ctx, client, channel, frame.Message)

	case framePing:
		if err := s.presence.Refresh(ctx, channel.Name, client.ID); err != nil {
			log.Printf("routeFrame: presence refresh failed for conn %s: %v", client.ID, err)
		}
		s.sendJSON(client, pongFrame{Type: "pong"})
		observability.MessageThroughput.WithLabelValues(channel.Name, framePing).Inc()

	case frameEmojiMsg:
		emojis, err := s.emojis.Lookup(ctx, frame.Emojis)
		if err != nil {
			log.Printf("routeFrame: emoji lookup failed: %v", err)
			emojis = map[string]string{}
		}
		s.sendJSON(client, emojiMsgResponseFrame{Type: "emojiMsgResponse", Emojis: emojis})
		observability.MessageThroughput.WithLabelValues(channel.Name, frameEmojiMsg).Inc()

	case frameEmojiSearch:
		results, err := s.emojis.Search(ctx, frame.Term, 25)
		if err != nil {
			log.Printf("routeFrame: emoji search failed: %v", err)
			results = nil
		}
		s.sendJSON(client, emojiSearchResponseFrame{Type: "emojiSearchResponse", Results: results})
		observability.MessageThroughput.WithLabelValues(channel.Name, frameEmojiSearch).Inc()

	default:
		// Unknown typed frame. Dropped, not an error: older clients may be
		// ahead of or behind this gateway's protocol.
	}
}

// legacyFrameBody recovers a chat message from pre-protocol clients: either a
// bare JSON string, or an untyped object with a "message" field.
func (s *Server) legacyFrameBody(raw []byte, frame inboundFrame) (string, bool) {
	if !s.config.LegacyFrames {
		return "", false
	}
	if frame.Message != "" {
		return frame.Message, true
	}
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil && bare != "" {
		return bare, true
	}
	return "", false
}

// handleChatMessage runs the full publish path: rate limit, restriction
// re-check, persist, fan out. Restrictions are checked per message, not per
// connection, so a mid-session timeout bites on the very next send.
func (s *Server) handleChatMessage(ctx context.Context, client *chathub.Client, channel *models.Channel, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}

	allowed, err := middleware.CheckRateLimit(ctx, s.redis, "send_chat",
		fmt.Sprintf("user:%d", client.Identity.UserID), s.config.ChatRateLimit, time.Minute)
	if err != nil {
		log.Printf("handleChatMessage: rate limit check failed: %v", err)
	} else if !allowed {
		observability.MessagesDenied.WithLabelValues("rate_limited").Inc()
		s.sendJSON(client, statusFrame{
			Type:   "status",
			Status: "rate_limited",
			Reason: "Slow down, you are sending messages too quickly",
		})
		return
	}

	restriction, err := s.moderation.ActiveRestriction(ctx, channel.ID, client.Identity.UserID)
	if err != nil {
		log.Printf("handleChatMessage: restriction check failed for user %d: %v", client.Identity.UserID, err)
		return
	}
	if restriction != nil {
		observability.MessagesDenied.WithLabelValues("restricted").Inc()
		s.sendJSON(client, statusFrame{
			Type:      "status",
			Status:    "restricted",
			Reason:    restriction.Reason,
			ExpiresAt: restriction.ExpiresAt,
		})
		return
	}

	msg := models.ChatMessage{
		MsgID:       uuid.NewString(),
		ChannelName: channel.Name,
		SenderID:    client.Identity.UserID,
		SenderName:  client.Identity.Username,
		AvatarURL:   client.Identity.AvatarURL,
		Body:        body,
		SentAt:      time.Now().UTC(),
	}

	// Persistence is best-effort: a dead history store degrades to live-only
	// chat rather than silencing the channel.
	if err := s.history.AppendBounded(ctx, channel.Name, msg); err != nil {
		observability.HistoryAppendFailures.Inc()
		log.Printf("handleChatMessage: history append failed for channel %s: %v", channel.Name, err)
	}

	s.hub.BroadcastJSON(channel.Name, newMessageFrame(msg))
	observability.MessageThroughput.WithLabelValues(channel.Name, frameMessage).Inc()
}

func (s *Server) sendJSON(client *chathub.Client, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("sendJSON: marshal failed: %v", err)
		return
	}
	client.TrySend(payload)
}
