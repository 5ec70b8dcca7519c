package server

import (
	"log"

	"glimmer/internal/cache"
	"glimmer/internal/models"

	"github.com/gofiber/fiber/v2"
)

// RestrictionRequest is the payload for channel timeout/ban/unban commands.
type RestrictionRequest struct {
	TargetUserID uint   `json:"target_user_id"`
	Duration     string `json:"duration,omitempty"` // "10m" or "1h", timeouts only
	Reason       string `json:"reason,omitempty"`
}

// TimeoutChatUser handles POST /api/channels/:name/timeout.
func (s *Server) TimeoutChatUser(c *fiber.Ctx) error {
	action := models.ActionTimeout10m
	return s.applyChannelRestriction(c, func(req *RestrictionRequest) (string, error) {
		switch req.Duration {
		case "", "10m":
			return action, nil
		case "1h":
			return models.ActionTimeout1h, nil
		default:
			return "", models.NewValidationError("duration must be 10m or 1h")
		}
	})
}

// BanChatUser handles POST /api/channels/:name/ban.
func (s *Server) BanChatUser(c *fiber.Ctx) error {
	return s.applyChannelRestriction(c, func(*RestrictionRequest) (string, error) {
		return models.ActionBanChat, nil
	})
}

// UnbanChatUser handles POST /api/channels/:name/unban.
func (s *Server) UnbanChatUser(c *fiber.Ctx) error {
	return s.applyChannelRestriction(c, func(*RestrictionRequest) (string, error) {
		return models.ActionLiftChatBan, nil
	})
}

func (s *Server) applyChannelRestriction(c *fiber.Ctx, pickAction func(*RestrictionRequest) (string, error)) error {
	userID, ok := currentUserID(c)
	if !ok {
		return respondError(c, models.NewUnauthorizedError("Authentication required"))
	}

	var req RestrictionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	if req.TargetUserID == 0 {
		return respondError(c, models.NewValidationError("target_user_id is required"))
	}

	action, err := pickAction(&req)
	if err != nil {
		return respondError(c, err)
	}

	channel, err := s.requireChannelModerator(c, c.Context(), userID)
	if channel == nil {
		return err
	}

	if err := s.moderation.ApplyDirect(c.Context(), action, channel, req.TargetUserID, userID, req.Reason, ""); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"channel":        channel.Name,
		"target_user_id": req.TargetUserID,
		"action":         action,
	})
}

// DeleteChannelMessage handles DELETE /api/channels/:name/messages/:msgId.
func (s *Server) DeleteChannelMessage(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return respondError(c, models.NewUnauthorizedError("Authentication required"))
	}

	msgID := c.Params("msgId")
	if msgID == "" {
		return respondError(c, models.NewValidationError("Message id is required"))
	}

	channel, err := s.requireChannelModerator(c, c.Context(), userID)
	if channel == nil {
		return err
	}

	// The sender is resolved from the retained message itself; a message that
	// already aged out is a NOT_FOUND, not a silent success.
	senderID, err := s.findMessageSender(c, channel.Name, msgID)
	if err != nil {
		return respondError(c, err)
	}

	if err := s.moderation.ApplyDirect(c.Context(), models.ActionDeleteMessage, channel, senderID, userID, "message removed", msgID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"channel": channel.Name,
		"msg_id":  msgID,
		"deleted": true,
	})
}

func (s *Server) findMessageSender(c *fiber.Ctx, channelName, msgID string) (uint, error) {
	window, err := s.history.Snapshot(c.Context(), channelName)
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	for _, msg := range window {
		if msg.MsgID == msgID {
			return msg.SenderID, nil
		}
	}
	return 0, models.NewNotFoundError("Message", msgID)
}

// RenameChannelRequest is the payload for renaming a channel.
type RenameChannelRequest struct {
	NewName string `json:"new_name"`
}

// RenameChannel handles POST /api/channels/:name/rename (admin only). The
// channel row, history window and viewer key all migrate to the new name.
func (s *Server) RenameChannel(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return respondError(c, models.NewUnauthorizedError("Authentication required"))
	}
	if err := s.requireAdmin(c, c.Context(), userID); err != nil {
		return nil
	}

	var req RenameChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	if req.NewName == "" || req.NewName == c.Params("name") {
		return respondError(c, models.NewValidationError("new_name must differ from the current name"))
	}

	channel, err := s.channelRepo.GetByName(c.Context(), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}

	if err := s.channelRepo.Rename(c.Context(), channel.ID, req.NewName); err != nil {
		return respondError(c, err)
	}

	if err := s.history.Rename(c.Context(), channel.Name, req.NewName); err != nil {
		log.Printf("RenameChannel: history migration %s -> %s failed: %v", channel.Name, req.NewName, err)
	}
	// The stale viewers key just ages out; the next reconcile pass writes the
	// new one.
	if s.redis != nil {
		_ = s.redis.Del(c.Context(), cache.ViewersKey(channel.Name)).Err()
	}

	return c.JSON(fiber.Map{
		"old_name": channel.Name,
		"new_name": req.NewName,
	})
}

// GetChannelViewers handles GET /api/channels/:name/viewers (public).
func (s *Server) GetChannelViewers(c *fiber.Ctx) error {
	channel, err := s.channelRepo.GetByName(c.Context(), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}

	viewers, err := s.presence.ViewerCount(c.Context(), channel.Name)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"channel": channel.Name,
		"viewers": viewers,
		"is_live": channel.IsLive,
	})
}
