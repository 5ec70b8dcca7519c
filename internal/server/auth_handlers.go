package server

import (
	"glimmer/internal/middleware"
	"glimmer/internal/models"

	"github.com/gofiber/fiber/v2"
)

// DevTokenRequest is the payload for the development token endpoint.
type DevTokenRequest struct {
	Username string `json:"username"`
}

// IssueDevToken handles POST /api/auth/token. Only routed outside production;
// real deployments receive session tokens from the identity provider.
func (s *Server) IssueDevToken(c *fiber.Ctx) error {
	var req DevTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	if req.Username == "" {
		return respondError(c, models.NewValidationError("username is required"))
	}

	user, err := s.userRepo.GetByUsername(c.Context(), req.Username)
	if err != nil {
		return respondError(c, err)
	}

	token, err := middleware.MintToken(s.config.JWTSecret, user.ID)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"token":   token,
		"user_id": user.ID,
	})
}
