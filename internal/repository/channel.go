package repository

import (
	"context"
	"errors"
	"strings"

	"glimmer/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// isDuplicateKey recognizes unique violations from postgres and from the
// sqlite driver used in tests.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ChannelRepository defines persistence operations for channels.
type ChannelRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Channel, error)
	GetByName(ctx context.Context, name string) (*models.Channel, error)
	Create(ctx context.Context, channel *models.Channel) error
	Rename(ctx context.Context, id uint, newName string) error
	SetLive(ctx context.Context, id uint, live bool) error
	List(ctx context.Context, limit, offset int) ([]models.Channel, error)
}

type channelRepository struct {
	db *gorm.DB
}

// NewChannelRepository returns a new ChannelRepository implementation.
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) GetByID(ctx context.Context, id uint) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).First(&channel, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Channel", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &channel, nil
}

func (r *channelRepository) GetByName(ctx context.Context, name string) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Channel", name)
		}
		return nil, models.NewInternalError(err)
	}
	return &channel, nil
}

func (r *channelRepository) Create(ctx context.Context, channel *models.Channel) error {
	if err := r.db.WithContext(ctx).Create(channel).Error; err != nil {
		if isDuplicateKey(err) {
			return models.NewConflictError("Channel name already taken")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Rename changes the channel's public name. The caller owns migrating the
// channel's keyed state (history, presence) to the new name.
func (r *channelRepository) Rename(ctx context.Context, id uint, newName string) error {
	res := r.db.WithContext(ctx).Model(&models.Channel{}).
		Where("id = ?", id).
		Update("name", newName)
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return models.NewConflictError("Channel name already taken")
		}
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Channel", id)
	}
	return nil
}

func (r *channelRepository) SetLive(ctx context.Context, id uint, live bool) error {
	res := r.db.WithContext(ctx).Model(&models.Channel{}).
		Where("id = ?", id).
		Update("is_live", live)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Channel", id)
	}
	return nil
}

func (r *channelRepository) List(ctx context.Context, limit, offset int) ([]models.Channel, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var channels []models.Channel
	if err := r.db.WithContext(ctx).
		Order("viewer_count DESC, name ASC").
		Limit(limit).
		Offset(offset).
		Find(&channels).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return channels, nil
}
