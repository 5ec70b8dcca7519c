package moderation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"glimmer/internal/database"
	"glimmer/internal/history"
	"glimmer/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type engineFixture struct {
	engine  *Engine
	db      *gorm.DB
	history *history.Store

	reporter  models.User
	target    models.User
	moderator models.User
	admin     models.User
	channel   models.Channel
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hist := history.NewStore(rdb, 50)
	engine := NewEngine(db, rdb, hist, 5, 10*time.Minute)

	f := &engineFixture{engine: engine, db: db, history: hist}
	f.reporter = f.createUser(t, "reporter", false)
	f.target = f.createUser(t, "troll", false)
	f.moderator = f.createUser(t, "moderator", false)
	f.admin = f.createUser(t, "rootadmin", true)

	f.channel = models.Channel{Name: "streamer_live", OwnerID: f.moderator.ID}
	require.NoError(t, db.Create(&f.channel).Error)

	return f
}

func (f *engineFixture) createUser(t *testing.T, username string, isAdmin bool) models.User {
	t.Helper()
	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw",
		IsAdmin:  isAdmin,
	}
	require.NoError(t, f.db.Create(&user).Error)
	return user
}

func (f *engineFixture) submit(t *testing.T, targetID uint, reason string, msgID *string) *models.ModerationReport {
	t.Helper()
	report, err := f.engine.SubmitReport(context.Background(), SubmitReportInput{
		ReporterID:   f.reporter.ID,
		TargetUserID: targetID,
		ChannelID:    f.channel.ID,
		Reason:       reason,
		MessageID:    msgID,
	})
	require.NoError(t, err)
	return report
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestSubmitReport_Validation(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	_, err := f.engine.SubmitReport(ctx, SubmitReportInput{
		ReporterID: f.reporter.ID, TargetUserID: f.target.ID, ChannelID: f.channel.ID,
		Reason: "ab",
	})
	assertCode(t, err, "VALIDATION_ERROR")

	_, err = f.engine.SubmitReport(ctx, SubmitReportInput{
		ReporterID: f.reporter.ID, TargetUserID: f.reporter.ID, ChannelID: f.channel.ID,
		Reason: "reporting myself",
	})
	assertCode(t, err, "VALIDATION_ERROR")

	_, err = f.engine.SubmitReport(ctx, SubmitReportInput{
		ReporterID: f.reporter.ID, TargetUserID: 9999, ChannelID: f.channel.ID,
		Reason: "valid enough reason",
	})
	assertCode(t, err, "NOT_FOUND")
}

func TestSubmitReport_PersistsOpenWithAudit(t *testing.T) {
	f := setupEngine(t)

	report := f.submit(t, f.target.ID, "spamming links", nil)
	assert.Equal(t, models.ReportStatusOpen, report.Status)
	assert.Equal(t, f.target.Username, report.TargetUsername)

	var audits []models.AuditLogEntry
	require.NoError(t, f.db.Where("action = ?", "REPORT_SUBMITTED").Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Equal(t, f.reporter.ID, audits[0].ActorID)
}

func TestSubmitReport_DuplicateOpenConflicts(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.submit(t, f.target.ID, "spamming links", nil)

	_, err := f.engine.SubmitReport(ctx, SubmitReportInput{
		ReporterID: f.reporter.ID, TargetUserID: f.target.ID, ChannelID: f.channel.ID,
		Reason: "still spamming",
	})
	assertCode(t, err, "CONFLICT")

	// A different message id is a distinct report.
	msgID := "msg-1"
	_, err = f.engine.SubmitReport(ctx, SubmitReportInput{
		ReporterID: f.reporter.ID, TargetUserID: f.target.ID, ChannelID: f.channel.ID,
		Reason: "that message though", MessageID: &msgID,
	})
	require.NoError(t, err)
}

func TestSubmitReport_RateLimited(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	// Five distinct targets keep the duplicate check out of the way.
	for i := 0; i < 5; i++ {
		target := f.createUser(t, fmt.Sprintf("spammer%d", i), false)
		_, err := f.engine.SubmitReport(ctx, SubmitReportInput{
			ReporterID: f.reporter.ID, TargetUserID: target.ID, ChannelID: f.channel.ID,
			Reason: "spamming links",
		})
		require.NoError(t, err)
	}

	sixth := f.createUser(t, "spammer5", false)
	_, err := f.engine.SubmitReport(ctx, SubmitReportInput{
		ReporterID: f.reporter.ID, TargetUserID: sixth.ID, ChannelID: f.channel.ID,
		Reason: "spamming links",
	})
	assertCode(t, err, "RATE_LIMITED")
}

func TestApplyAction_ClaimIsExactlyOnce(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	report := f.submit(t, f.target.ID, "spamming links", nil)

	handled, err := f.engine.ApplyAction(ctx, ActionInput{
		ReportID: report.ID, Action: models.ActionReview, ModeratorID: f.moderator.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusReviewed, handled.Status)
	assert.Equal(t, models.ActionReview, handled.LastAction)
	require.NotNil(t, handled.HandledByUserID)
	assert.Equal(t, f.moderator.ID, *handled.HandledByUserID)

	// The racing second moderator loses the claim.
	_, err = f.engine.ApplyAction(ctx, ActionInput{
		ReportID: report.ID, Action: models.ActionDismiss, ModeratorID: f.admin.ID,
	})
	assertCode(t, err, "CONFLICT")

	// The terminal state is whatever the winner wrote.
	var got models.ModerationReport
	require.NoError(t, f.db.First(&got, report.ID).Error)
	assert.Equal(t, models.ReportStatusReviewed, got.Status)
}

func TestApplyAction_DismissIsTerminal(t *testing.T) {
	f := setupEngine(t)

	report := f.submit(t, f.target.ID, "not actually a problem", nil)
	handled, err := f.engine.ApplyAction(context.Background(), ActionInput{
		ReportID: report.ID, Action: models.ActionDismiss, ModeratorID: f.moderator.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusDismissed, handled.Status)
}

func TestApplyAction_TimeoutCreatesExpiringRestriction(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	base := time.Now().UTC()
	f.engine.now = func() time.Time { return base }

	report := f.submit(t, f.target.ID, "spamming links", nil)
	_, err := f.engine.ApplyAction(ctx, ActionInput{
		ReportID: report.ID, Action: models.ActionTimeout10m, ModeratorID: f.moderator.ID, Note: "cool off",
	})
	require.NoError(t, err)

	restriction, err := f.engine.ActiveRestriction(ctx, f.channel.ID, f.target.ID)
	require.NoError(t, err)
	require.NotNil(t, restriction)
	require.NotNil(t, restriction.ExpiresAt)

	// Once the timeout lapses the user may chat again, and the lazy cleanup
	// removes the row.
	f.engine.now = func() time.Time { return base.Add(11 * time.Minute) }
	restriction, err = f.engine.ActiveRestriction(ctx, f.channel.ID, f.target.ID)
	require.NoError(t, err)
	assert.Nil(t, restriction)

	var count int64
	require.NoError(t, f.db.Model(&models.ChatRestriction{}).
		Where("channel_id = ? AND user_id = ?", f.channel.ID, f.target.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApplyAction_BanChatAndLift(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	report := f.submit(t, f.target.ID, "spamming links", nil)
	_, err := f.engine.ApplyAction(ctx, ActionInput{
		ReportID: report.ID, Action: models.ActionBanChat, ModeratorID: f.moderator.ID,
	})
	require.NoError(t, err)

	restriction, err := f.engine.ActiveRestriction(ctx, f.channel.ID, f.target.ID)
	require.NoError(t, err)
	require.NotNil(t, restriction)
	assert.Nil(t, restriction.ExpiresAt, "permanent ban has no expiry")

	require.NoError(t, f.engine.ApplyDirect(ctx, models.ActionLiftChatBan, &f.channel, f.target.ID, f.moderator.ID, "", ""))

	restriction, err = f.engine.ActiveRestriction(ctx, f.channel.ID, f.target.ID)
	require.NoError(t, err)
	assert.Nil(t, restriction)

	// Lifting again has nothing to remove.
	err = f.engine.ApplyDirect(ctx, models.ActionLiftChatBan, &f.channel, f.target.ID, f.moderator.ID, "", "")
	assertCode(t, err, "CONFLICT")
}

func TestApplyAction_TimeoutUpgradeToBanOverwrites(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, f.engine.ApplyDirect(ctx, models.ActionTimeout1h, &f.channel, f.target.ID, f.moderator.ID, "first strike", ""))
	require.NoError(t, f.engine.ApplyDirect(ctx, models.ActionBanChat, &f.channel, f.target.ID, f.moderator.ID, "second strike", ""))

	restriction, err := f.engine.ActiveRestriction(ctx, f.channel.ID, f.target.ID)
	require.NoError(t, err)
	require.NotNil(t, restriction)
	assert.Nil(t, restriction.ExpiresAt)
	assert.Equal(t, "second strike", restriction.Reason)

	var count int64
	require.NoError(t, f.db.Model(&models.ChatRestriction{}).
		Where("channel_id = ? AND user_id = ?", f.channel.ID, f.target.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count, "at most one restriction row per channel and user")
}

func TestApplyAction_DeleteMessage(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	msg := models.ChatMessage{
		MsgID: "msg-del", ChannelName: f.channel.Name,
		SenderID: f.target.ID, SenderName: f.target.Username,
		Body: "offensive", SentAt: time.Now().UTC(),
	}
	require.NoError(t, f.history.AppendBounded(ctx, f.channel.Name, msg))

	msgID := msg.MsgID
	report := f.submit(t, f.target.ID, "look at this message", &msgID)

	handled, err := f.engine.ApplyAction(ctx, ActionInput{
		ReportID: report.ID, Action: models.ActionDeleteMessage, ModeratorID: f.moderator.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusReviewed, handled.Status)

	found, err := f.history.DeleteByMsgID(ctx, f.channel.Name, msgID)
	require.NoError(t, err)
	assert.False(t, found, "message should already be gone")
}

func TestApplyAction_DeleteMessageNotFoundLeavesReportOpen(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	msgID := "already-aged-out"
	report := f.submit(t, f.target.ID, "look at this message", &msgID)

	_, err := f.engine.ApplyAction(ctx, ActionInput{
		ReportID: report.ID, Action: models.ActionDeleteMessage, ModeratorID: f.moderator.ID,
	})
	assertCode(t, err, "NOT_FOUND")

	// The claim never happened: another moderator can still handle it.
	var got models.ModerationReport
	require.NoError(t, f.db.First(&got, report.ID).Error)
	assert.Equal(t, models.ReportStatusOpen, got.Status)
}

func TestApplyAction_AdminTargetRejected(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	report := f.submit(t, f.admin.ID, "I dislike the admin", nil)

	_, err := f.engine.ApplyAction(ctx, ActionInput{
		ReportID: report.ID, Action: models.ActionBanChat, ModeratorID: f.moderator.ID,
	})
	assertCode(t, err, "FORBIDDEN")

	// Dismissing a report against an admin is fine; only enforcement is
	// guarded.
	_, err = f.engine.ApplyAction(ctx, ActionInput{
		ReportID: report.ID, Action: models.ActionDismiss, ModeratorID: f.moderator.ID,
	})
	require.NoError(t, err)
}

func TestApplyAction_UnknownAction(t *testing.T) {
	f := setupEngine(t)

	report := f.submit(t, f.target.ID, "spamming links", nil)
	_, err := f.engine.ApplyAction(context.Background(), ActionInput{
		ReportID: report.ID, Action: "OBLITERATE", ModeratorID: f.moderator.ID,
	})
	assertCode(t, err, "VALIDATION_ERROR")
}

func TestPlatformBanLifecycle(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	banned, err := f.engine.IsPlatformBanned(ctx, f.target.ID)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, f.engine.BanPlatform(ctx, f.target.ID, f.admin.ID, "ban evasion"))

	banned, err = f.engine.IsPlatformBanned(ctx, f.target.ID)
	require.NoError(t, err)
	assert.True(t, banned)

	// Re-banning refreshes rather than erroring.
	require.NoError(t, f.engine.BanPlatform(ctx, f.target.ID, f.admin.ID, "updated reason"))

	require.NoError(t, f.engine.UnbanPlatform(ctx, f.target.ID, f.admin.ID))
	banned, err = f.engine.IsPlatformBanned(ctx, f.target.ID)
	require.NoError(t, err)
	assert.False(t, banned)

	err = f.engine.UnbanPlatform(ctx, f.target.ID, f.admin.ID)
	assertCode(t, err, "CONFLICT")

	err = f.engine.BanPlatform(ctx, f.admin.ID, f.admin.ID, "self destruct")
	assertCode(t, err, "FORBIDDEN")
}

func TestListReports(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	first := f.submit(t, f.target.ID, "spamming links", nil)
	msgID := "msg-9"
	f.submit(t, f.target.ID, "that one message", &msgID)

	_, err := f.engine.ApplyAction(ctx, ActionInput{
		ReportID: first.ID, Action: models.ActionDismiss, ModeratorID: f.moderator.ID,
	})
	require.NoError(t, err)

	open, err := f.engine.ListReports(ctx, models.ReportStatusOpen, 10, 0)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	all, err := f.engine.ListReports(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
