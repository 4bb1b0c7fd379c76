package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"open-mediaserver/internal/model"
)

type MediaRepository struct {
	db *gorm.DB
}

func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

func (r *MediaRepository) Create(ctx context.Context, media *model.Media) error {
	if media.ID == "" {
		media.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(media).Error; err != nil {
		return fmt.Errorf("create media failed: %w", err)
	}
	return nil
}

func (r *MediaRepository) GetByID(ctx context.Context, id string) (*model.Media, error) {
	var media model.Media
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&media).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query media by id failed: %w", err)
	}
	return &media, nil
}

func (r *MediaRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Media, error) {
	var media []model.Media
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&media).Error; err != nil {
		return nil, fmt.Errorf("list media failed: %w", err)
	}
	return media, nil
}
