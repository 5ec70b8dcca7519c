package server

import (
	"glimmer/internal/models"
	"glimmer/internal/moderation"

	"github.com/gofiber/fiber/v2"
)

// SubmitReportRequest is the payload for filing a report.
type SubmitReportRequest struct {
	TargetUserID uint    `json:"target_user_id"`
	ChannelName  string  `json:"channel_name"`
	Reason       string  `json:"reason"`
	MessageID    *string `json:"message_id,omitempty"`
}

// SubmitReport handles POST /api/reports.
func (s *Server) SubmitReport(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return respondError(c, models.NewUnauthorizedError("Authentication required"))
	}

	var req SubmitReportRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	if req.TargetUserID == 0 || req.ChannelName == "" {
		return respondError(c, models.NewValidationError("target_user_id and channel_name are required"))
	}

	channel, err := s.channelRepo.GetByName(c.Context(), req.ChannelName)
	if err != nil {
		return respondError(c, err)
	}

	report, err := s.moderation.SubmitReport(c.Context(), moderation.SubmitReportInput{
		ReporterID:   userID,
		TargetUserID: req.TargetUserID,
		ChannelID:    channel.ID,
		Reason:       req.Reason,
		MessageID:    req.MessageID,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}

// ReportActionRequest is the payload for handling an open report.
type ReportActionRequest struct {
	Action string `json:"action"`
	Note   string `json:"note,omitempty"`
}

// ApplyReportAction handles POST /api/reports/:id/action. Moderator scope is
// the report's channel.
func (s *Server) ApplyReportAction(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return respondError(c, models.NewUnauthorizedError("Authentication required"))
	}

	reportID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req ReportActionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	var report models.ModerationReport
	if err := s.db.WithContext(c.Context()).First(&report, reportID).Error; err != nil {
		return respondError(c, models.NewNotFoundError("Report", reportID))
	}
	channel, err := s.channelRepo.GetByID(c.Context(), report.ChannelID)
	if err != nil {
		return respondError(c, err)
	}
	allowed, err := s.canModerateChannel(c.Context(), userID, channel)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return respondError(c, models.NewForbiddenError("Moderator privileges required for this channel"))
	}

	handled, err := s.moderation.ApplyAction(c.Context(), moderation.ActionInput{
		ReportID:    reportID,
		Action:      req.Action,
		ModeratorID: userID,
		Note:        req.Note,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(handled)
}

// GetReports handles GET /api/reports?status= (admin only).
func (s *Server) GetReports(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return respondError(c, models.NewUnauthorizedError("Authentication required"))
	}
	if err := s.requireAdmin(c, c.Context(), userID); err != nil {
		return nil
	}

	status := c.Query("status")
	switch status {
	case "", models.ReportStatusOpen, models.ReportStatusReviewed, models.ReportStatusDismissed:
	default:
		return respondError(c, models.NewValidationError("Invalid status filter"))
	}

	p := parsePagination(c, 50)
	reports, err := s.moderation.ListReports(c.Context(), status, p.Limit, p.Offset)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"reports": reports,
		"count":   len(reports),
	})
}
