package server

import (
	"context"
	"errors"

	"glimmer/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const maxPaginationLimit = 100

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{Limit: limit, Offset: offset}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+param))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// currentUserID reads the authenticated user id set by the auth middleware.
func currentUserID(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("userID").(uint)
	return userID, ok
}

// respondError maps an application error onto its HTTP status.
func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusForError(err), err)
}

// isAdminByUserID reports whether the user holds the platform admin flag.
func (s *Server) isAdminByUserID(ctx context.Context, userID uint) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

// canModerateChannel reports whether the user may moderate the channel:
// platform admins everywhere, owners on their own channel.
func (s *Server) canModerateChannel(ctx context.Context, userID uint, channel *models.Channel) (bool, error) {
	if channel.OwnerID == userID {
		return true, nil
	}
	return s.isAdminByUserID(ctx, userID)
}

// requireChannelModerator loads the channel by its route name param and
// verifies the caller may moderate it. Writes the error response itself; a
// nil channel with nil error means the response is already committed.
func (s *Server) requireChannelModerator(c *fiber.Ctx, ctx context.Context, userID uint) (*models.Channel, error) {
	channel, err := s.channelRepo.GetByName(ctx, c.Params("name"))
	if err != nil {
		return nil, respondError(c, err)
	}

	ok, err := s.canModerateChannel(ctx, userID, channel)
	if err != nil {
		return nil, respondError(c, err)
	}
	if !ok {
		return nil, respondError(c, models.NewForbiddenError("Moderator privileges required for this channel"))
	}
	return channel, nil
}

// requireAdmin verifies the caller holds the platform admin flag, writing the
// error response on failure.
func (s *Server) requireAdmin(c *fiber.Ctx, ctx context.Context, userID uint) error {
	isAdmin, err := s.isAdminByUserID(ctx, userID)
	if err != nil {
		_ = respondError(c, err)
		return errResponseWritten
	}
	if !isAdmin {
		_ = respondError(c, models.NewForbiddenError("Admin privileges required"))
		return errResponseWritten
	}
	return nil
}
