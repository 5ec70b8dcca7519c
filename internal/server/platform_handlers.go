package server

import (
	"glimmer/internal/models"

	"github.com/gofiber/fiber/v2"
)

// PlatformBanRequest is the payload for issuing a platform-level ban.
type PlatformBanRequest struct {
	TargetUserID uint   `json:"target_user_id"`
	Reason       string `json:"reason,omitempty"`
}

// CreatePlatformBan handles POST /api/platform/bans (admin only).
func (s *Server) CreatePlatformBan(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return respondError(c, models.NewUnauthorizedError("Authentication required"))
	}
	if err := s.requireAdmin(c, c.Context(), userID); err != nil {
		return nil
	}

	var req PlatformBanRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	if req.TargetUserID == 0 {
		return respondError(c, models.NewValidationError("target_user_id is required"))
	}

	if err := s.moderation.BanPlatform(c.Context(), req.TargetUserID, userID, req.Reason); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"target_user_id": req.TargetUserID,
		"banned":         true,
	})
}

// DeletePlatformBan handles DELETE /api/platform/bans/:userId (admin only).
func (s *Server) DeletePlatformBan(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return respondError(c, models.NewUnauthorizedError("Authentication required"))
	}
	if err := s.requireAdmin(c, c.Context(), userID); err != nil {
		return nil
	}

	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.moderation.UnbanPlatform(c.Context(), targetID, userID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"target_user_id": targetID,
		"banned":         false,
	})
}
