package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"glimmer/internal/chathub"
	"glimmer/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// WebSocketChatHandler admits authenticated connections into a channel's chat.
// Admission order: identity, channel, platform ban, replay, hub, presence.
// Refused connections are closed without a frame; the socket itself is the
// only signal.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ctx := context.Background()

		// Set by WebSocketAuthRequired.
		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			log.Printf("WebSocket: unauthenticated connection attempt")
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		user, channel, err := s.admitChat(ctx, userID, conn.Params("channel"))
		if err != nil {
			log.Printf("WebSocket: admission refused for user %d: %v", userID, err)
			_ = conn.Close()
			return
		}

		connID := uuid.NewString()
		identity := chathub.Identity{
			UserID:    user.ID,
			Username:  user.Username,
			AvatarURL: user.AvatarURL,
			IsBot:     user.IsBot,
		}
		client := chathub.NewClient(s.hub, conn, connID, identity, channel.Name)

		if err := s.joinChannel(ctx, client, channel); err != nil {
			log.Printf("WebSocket: join refused for user %d: %v", userID, err)
			_ = conn.Close()
			return
		}

		client.IncomingHandler = func(c *chathub.Client, raw []byte) {
			s.routeFrame(ctx, c, channel, raw)
		}

		go client.WritePump()
		client.ReadPump() // blocks until the connection drops

		if err := s.presence.Untrack(ctx, channel.Name, connID); err != nil {
			log.Printf("WebSocket: presence untrack failed for conn %s: %v", connID, err)
		}
	})
}

// admitChat resolves the connecting identity and target channel. Unknown
// channels and platform-banned users are refused.
func (s *Server) admitChat(ctx context.Context, userID uint, channelName string) (*models.User, *models.Channel, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	channel, err := s.channelRepo.GetByName(ctx, channelName)
	if err != nil {
		return nil, nil, err
	}

	banned, err := s.moderation.IsPlatformBanned(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if banned {
		return nil, nil, models.NewForbiddenError("User is banned from the platform")
	}

	return user, channel, nil
}

// joinChannel enqueues the history snapshot and welcome notice, then adds the
// client to the hub. The replay is buffered before registration so a message
// broadcast during admission cannot land ahead of (or inside and again after)
// the snapshot.
func (s *Server) joinChannel(ctx context.Context, client *chathub.Client, channel *models.Channel) error {
	s.sendHistorySnapshot(ctx, client, channel.Name)
	s.sendWelcomeNotice(client, channel.Name)

	if err := s.hub.Register(client); err != nil {
		return err
	}

	if err := s.presence.Track(ctx, channel.Name, client.ID); err != nil {
		log.Printf("WebSocket: presence track failed for conn %s: %v", client.ID, err)
	}
	return nil
}

// sendHistorySnapshot delivers the retained window oldest-first. A failed read
// degrades to an empty room instead of refusing admission.
func (s *Server) sendHistorySnapshot(ctx context.Context, client *chathub.Client, channel string) {
	snapshot, err := s.history.Snapshot(ctx, channel)
	if err != nil {
		log.Printf("WebSocket: history snapshot failed for channel %s: %v", channel, err)
		snapshot = nil
	}
	messages := make([]messageFrame, 0, len(snapshot))
	for _, msg := range snapshot {
		messages = append(messages, newMessageFrame(msg))
	}
	payload, err := json.Marshal(historyFrame{Type: "history", Messages: messages})
	if err != nil {
		return
	}
	client.TrySend(payload)
}

// sendWelcomeNotice sends the synthetic join notice. Notices come from a
// reserved system identity and are never persisted to history.
func (s *Server) sendWelcomeNotice(client *chathub.Client, channel string) {
	payload, err := json.Marshal(noticeFrame{
		Type:    "notice",
		From:    systemNoticeSender,
		Message: fmt.Sprintf("Welcome to %s, %s!", channel, client.Identity.Username),
	})
	if err != nil {
		return
	}
	client.TrySend(payload)
}
