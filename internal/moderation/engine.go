// Package moderation implements restriction records, the report lifecycle
// state machine and the audit trail. All state lives in the shared database;
// the claim primitive (a conditional update on the OPEN status) is what
// guarantees at-most-once handling under concurrent moderators.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"glimmer/internal/history"
	"glimmer/internal/middleware"
	"glimmer/internal/models"
	"glimmer/internal/observability"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	minReasonLen = 3
	maxReasonLen = 500
)

// actionDurations maps timeout actions to their restriction lifetime.
var actionDurations = map[string]time.Duration{
	models.ActionTimeout10m: 10 * time.Minute,
	models.ActionTimeout1h:  time.Hour,
}

// Engine provides moderation and report-handling logic.
type Engine struct {
	db           *gorm.DB
	rdb          *redis.Client
	history      *history.Store
	reportLimit  int
	reportWindow time.Duration
	logger       *slog.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewEngine returns a new Engine.
func NewEngine(db *gorm.DB, rdb *redis.Client, hist *history.Store, reportLimit int, reportWindow time.Duration) *Engine {
	return &Engine{
		db:           db,
		rdb:          rdb,
		history:      hist,
		reportLimit:  reportLimit,
		reportWindow: reportWindow,
		logger:       middleware.Logger,
		now:          time.Now,
	}
}

// SubmitReportInput is the input for filing a report.
type SubmitReportInput struct {
	ReporterID   uint
	TargetUserID uint
	ChannelID    uint
	Reason       string
	MessageID    *string
}

// ActionInput is the input for handling an open report.
type ActionInput struct {
	ReportID    uint
	Action      string
	ModeratorID uint
	Note        string
}

// SubmitReport validates and persists a new OPEN report.
func (e *Engine) SubmitReport(ctx context.Context, in SubmitReportInput) (*models.ModerationReport, error) {
	reason := strings.TrimSpace(in.Reason)
	if len(reason) < minReasonLen || len(reason) > maxReasonLen {
		return nil, models.NewValidationError(
			fmt.Sprintf("Reason must be between %d and %d characters", minReasonLen, maxReasonLen))
	}
	if in.ReporterID == in.TargetUserID {
		return nil, models.NewValidationError("You cannot report yourself")
	}

	var target models.User
	if err := e.db.WithContext(ctx).First(&target, in.TargetUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", in.TargetUserID)
		}
		return nil, err
	}

	allowed, err := middleware.CheckRateLimit(ctx, e.rdb, "report",
		fmt.Sprintf("user:%d", in.ReporterID), e.reportLimit, e.reportWindow)
	if err != nil {
		// Rate limiting is best-effort: a dead counter store should not make
		// reporting impossible.
		e.logger.WarnContext(ctx, "report rate limit check failed", slog.String("error", err.Error()))
	} else if !allowed {
		return nil, models.NewRateLimitedError("Too many reports, try again later")
	}

	dup := e.db.WithContext(ctx).Model(&models.ModerationReport{}).
		Where("reporter_id = ? AND target_user_id = ? AND status = ?",
			in.ReporterID, in.TargetUserID, models.ReportStatusOpen)
	if in.MessageID != nil {
		dup = dup.Where("reported_message_id = ?", *in.MessageID)
	} else {
		dup = dup.Where("reported_message_id IS NULL")
	}
	var existing int64
	if err := dup.Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, models.NewConflictError("An open report for this target already exists")
	}

	report := &models.ModerationReport{
		ChannelID:         in.ChannelID,
		ReporterID:        in.ReporterID,
		TargetUserID:      in.TargetUserID,
		TargetUsername:    target.Username,
		ReportedMessageID: in.MessageID,
		Reason:            reason,
		Status:            models.ReportStatusOpen,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(report).Error; err != nil {
			return err
		}
		return e.audit(tx, "REPORT_SUBMITTED", in.ReporterID, &in.TargetUserID, &in.ChannelID, in.MessageID, reason)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ApplyAction claims an open report and applies the action's side effects.
// The claim is a single conditional update; a moderator racing a colleague
// observes zero rows affected and gets a CONFLICT instead of reapplying the
// action. DELETE_MESSAGE performs the history delete before the claim
// commits and aborts without claiming when the message is gone.
func (e *Engine) ApplyAction(ctx context.Context, in ActionInput) (*models.ModerationReport, error) {
	if !validAction(in.Action) {
		return nil, models.NewValidationError(fmt.Sprintf("Unknown action %q", in.Action))
	}

	var report models.ModerationReport
	if err := e.db.WithContext(ctx).First(&report, in.ReportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Report", in.ReportID)
		}
		return nil, err
	}

	if isEnforcement(in.Action) {
		if err := e.guardTarget(ctx, report.TargetUserID); err != nil {
			observability.ModerationActions.WithLabelValues(in.Action, "rejected").Inc()
			return nil, err
		}
	}

	var channel models.Channel
	if err := e.db.WithContext(ctx).First(&channel, report.ChannelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Channel", report.ChannelID)
		}
		return nil, err
	}

	// The history delete happens outside the claim transaction on purpose:
	// the claim must only commit once the message is verifiably gone.
	if in.Action == models.ActionDeleteMessage {
		if report.ReportedMessageID == nil {
			return nil, models.NewValidationError("Report does not reference a message")
		}
		found, err := e.history.DeleteByMsgID(ctx, channel.Name, *report.ReportedMessageID)
		if err != nil {
			return nil, err
		}
		if !found {
			observability.ModerationActions.WithLabelValues(in.Action, "not_found").Inc()
			return nil, models.NewNotFoundError("Message", *report.ReportedMessageID)
		}
	}

	finalStatus := models.ReportStatusReviewed
	if in.Action == models.ActionDismiss {
		finalStatus = models.ReportStatusDismissed
	}

	now := e.now().UTC()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&models.ModerationReport{}).
			Where("id = ? AND status = ?", in.ReportID, models.ReportStatusOpen).
			Updates(map[string]interface{}{
				"status":             finalStatus,
				"last_action":        in.Action,
				"handled_by_user_id": in.ModeratorID,
				"handled_at":         now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return models.NewConflictError("Report already handled")
		}

		if err := e.applyEffect(tx, in.Action, &channel, report.TargetUserID, in.ModeratorID, in.Note, now); err != nil {
			return err
		}
		return e.audit(tx, in.Action, in.ModeratorID, &report.TargetUserID, &report.ChannelID, report.ReportedMessageID, in.Note)
	})
	if err != nil {
		outcome := "error"
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == "CONFLICT" {
			outcome = "conflict"
		}
		observability.ModerationActions.WithLabelValues(in.Action, outcome).Inc()
		return nil, err
	}

	observability.ModerationActions.WithLabelValues(in.Action, "applied").Inc()
	if err := e.db.WithContext(ctx).First(&report, in.ReportID).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// ApplyDirect applies an enforcement action outside any report, for the
// moderation command surface used by admin tooling. REVIEW and DISMISS only
// make sense against a report and are rejected here.
func (e *Engine) ApplyDirect(ctx context.Context, action string, channel *models.Channel, targetUserID, moderatorID uint, reason, msgID string) error {
	if !validAction(action) || !isEnforcement(action) {
		return models.NewValidationError(fmt.Sprintf("Action %q is not an enforcement action", action))
	}
	if err := e.guardTarget(ctx, targetUserID); err != nil {
		observability.ModerationActions.WithLabelValues(action, "rejected").Inc()
		return err
	}

	if action == models.ActionDeleteMessage {
		if msgID == "" {
			return models.NewValidationError("Message id is required")
		}
		found, err := e.history.DeleteByMsgID(ctx, channel.Name, msgID)
		if err != nil {
			return err
		}
		if !found {
			observability.ModerationActions.WithLabelValues(action, "not_found").Inc()
			return models.NewNotFoundError("Message", msgID)
		}
	}

	now := e.now().UTC()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.applyEffect(tx, action, channel, targetUserID, moderatorID, reason, now); err != nil {
			return err
		}
		var msgIDPtr *string
		if msgID != "" {
			msgIDPtr = &msgID
		}
		return e.audit(tx, action, moderatorID, &targetUserID, &channel.ID, msgIDPtr, reason)
	})
	if err != nil {
		observability.ModerationActions.WithLabelValues(action, "error").Inc()
		return err
	}
	observability.ModerationActions.WithLabelValues(action, "applied").Inc()
	return nil
}

// BanPlatform issues a channel-independent platform ban. Reissuing a ban
// refreshes its reason and issuer rather than erroring.
func (e *Engine) BanPlatform(ctx context.Context, targetUserID, moderatorID uint, reason string) error {
	if err := e.guardTarget(ctx, targetUserID); err != nil {
		observability.ModerationActions.WithLabelValues(models.ActionBanPlatform, "rejected").Inc()
		return err
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ban := models.PlatformBan{
			UserID:         targetUserID,
			IssuedByUserID: moderatorID,
			Reason:         reason,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"issued_by_user_id": moderatorID,
				"reason":            reason,
			}),
		}).Create(&ban).Error; err != nil {
			return err
		}
		return e.audit(tx, models.ActionBanPlatform, moderatorID, &targetUserID, nil, nil, reason)
	})
	if err != nil {
		observability.ModerationActions.WithLabelValues(models.ActionBanPlatform, "error").Inc()
		return err
	}
	observability.ModerationActions.WithLabelValues(models.ActionBanPlatform, "applied").Inc()
	return nil
}

// UnbanPlatform lifts a platform ban; lifting a ban that does not exist is a
// CONFLICT so callers can tell a no-op from a success.
func (e *Engine) UnbanPlatform(ctx context.Context, targetUserID, moderatorID uint) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ?", targetUserID).Delete(&models.PlatformBan{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewConflictError("No platform ban to lift")
		}
		return e.audit(tx, models.ActionUnbanPlatform, moderatorID, &targetUserID, nil, nil, "")
	})
	if err != nil {
		outcome := "error"
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == "CONFLICT" {
			outcome = "conflict"
		}
		observability.ModerationActions.WithLabelValues(models.ActionUnbanPlatform, outcome).Inc()
		return err
	}
	observability.ModerationActions.WithLabelValues(models.ActionUnbanPlatform, "applied").Inc()
	return nil
}

// applyEffect performs an action's restriction/ban side effect inside the
// claiming transaction so a failed effect rolls the claim back.
func (e *Engine) applyEffect(tx *gorm.DB, action string, channel *models.Channel, targetUserID, moderatorID uint, reason string, now time.Time) error {
	switch action {
	case models.ActionReview, models.ActionDismiss, models.ActionDeleteMessage:
		// No restriction side effect.
		return nil
	case models.ActionTimeout10m, models.ActionTimeout1h:
		expires := now.Add(actionDurations[action])
		return e.upsertRestriction(tx, channel.ID, targetUserID, moderatorID, reason, &expires, now)
	case models.ActionBanChat:
		return e.upsertRestriction(tx, channel.ID, targetUserID, moderatorID, reason, nil, now)
	case models.ActionLiftChatBan:
		res := tx.Where("channel_id = ? AND user_id = ?", channel.ID, targetUserID).
			Delete(&models.ChatRestriction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewConflictError("No active restriction to lift")
		}
		return nil
	case models.ActionBanPlatform:
		ban := models.PlatformBan{
			UserID:         targetUserID,
			IssuedByUserID: moderatorID,
			Reason:         reason,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"issued_by_user_id": moderatorID,
				"reason":            reason,
			}),
		}).Create(&ban).Error
	case models.ActionUnbanPlatform:
		res := tx.Where("user_id = ?", targetUserID).Delete(&models.PlatformBan{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewConflictError("No platform ban to lift")
		}
		return nil
	default:
		return models.NewValidationError(fmt.Sprintf("Unknown action %q", action))
	}
}

func (e *Engine) upsertRestriction(tx *gorm.DB, channelID, userID, moderatorID uint, reason string, expiresAt *time.Time, now time.Time) error {
	restriction := models.ChatRestriction{
		ChannelID:      channelID,
		UserID:         userID,
		IssuedByUserID: moderatorID,
		Reason:         reason,
		ExpiresAt:      expiresAt,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "channel_id"},
			{Name: "user_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"issued_by_user_id": moderatorID,
			"reason":            reason,
			"expires_at":        expiresAt,
			"updated_at":        now,
		}),
	}).Create(&restriction).Error
}

// ActiveRestriction returns the user's restriction for the channel if one is
// active, nil otherwise. Expired timeouts are lazily removed on read.
func (e *Engine) ActiveRestriction(ctx context.Context, channelID, userID uint) (*models.ChatRestriction, error) {
	var restriction models.ChatRestriction
	err := e.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		First(&restriction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !restriction.Active(e.now()) {
		// Best-effort cleanup; the restriction no longer applies either way.
		if derr := e.db.WithContext(ctx).
			Where("channel_id = ? AND user_id = ?", channelID, userID).
			Delete(&models.ChatRestriction{}).Error; derr != nil {
			e.logger.WarnContext(ctx, "failed to remove expired restriction",
				slog.Any("channel_id", channelID), slog.Any("user_id", userID), slog.String("error", derr.Error()))
		}
		return nil, nil
	}
	return &restriction, nil
}

// IsPlatformBanned reports whether the user carries a platform-level ban.
func (e *Engine) IsPlatformBanned(ctx context.Context, userID uint) (bool, error) {
	var count int64
	if err := e.db.WithContext(ctx).Model(&models.PlatformBan{}).
		Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListReports returns reports filtered by status (all statuses when empty),
// newest first.
func (e *Engine) ListReports(ctx context.Context, status string, limit, offset int) ([]models.ModerationReport, error) {
	q := e.db.WithContext(ctx).Model(&models.ModerationReport{}).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var reports []models.ModerationReport
	if err := q.Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

// guardTarget rejects enforcement against platform administrators regardless
// of who asks.
func (e *Engine) guardTarget(ctx context.Context, targetUserID uint) error {
	var target models.User
	if err := e.db.WithContext(ctx).First(&target, targetUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("User", targetUserID)
		}
		return err
	}
	if target.IsAdmin {
		return models.NewForbiddenError("Platform administrators cannot be targeted by enforcement actions")
	}
	return nil
}

func (e *Engine) audit(tx *gorm.DB, action string, actorID uint, targetUserID, channelID *uint, messageID *string, reason string) error {
	return tx.Create(&models.AuditLogEntry{
		Action:       action,
		ActorID:      actorID,
		TargetUserID: targetUserID,
		ChannelID:    channelID,
		MessageID:    messageID,
		Reason:       reason,
	}).Error
}

func validAction(action string) bool {
	switch action {
	case models.ActionReview, models.ActionDismiss, models.ActionDeleteMessage,
		models.ActionTimeout10m, models.ActionTimeout1h,
		models.ActionBanChat, models.ActionLiftChatBan,
		models.ActionBanPlatform, models.ActionUnbanPlatform:
		return true
	}
	return false
}

func isEnforcement(action string) bool {
	switch action {
	case models.ActionReview, models.ActionDismiss:
		return false
	}
	return true
}
