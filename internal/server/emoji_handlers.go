package server

import (
	"glimmer/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ReloadEmojis handles POST /api/emojis/reload (admin only). Rebuilds the
// serving directory from the emojis table in one atomic swap.
func (s *Server) ReloadEmojis(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return respondError(c, models.NewUnauthorizedError("Authentication required"))
	}
	if err := s.requireAdmin(c, c.Context(), userID); err != nil {
		return nil
	}

	count, err := s.emojis.Reload(c.Context(), s.emojiSource)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"reloaded": true,
		"count":    count,
	})
}
