package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"open-mediaserver/internal/model"
)

// ErrDuplicateUsername is returned by Create when the username unique
// constraint rejects the insert. Uniqueness is enforced by the storage
// layer, not by a prior existence check.
var ErrDuplicateUsername = errors.New("username already in use")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by username failed: %w", err)
	}
	return &user, nil
}

// GetByID loads the user together with its uploads work-list.
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Preload("Uploads").First(&user, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetBySessionKey(ctx context.Context, key string) (*model.User, error) {
	var user model.User
	err := r.readWithRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Preload("Uploads").Where("session_key = ?", key).First(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by session key failed: %w", err)
	}
	return &user, nil
}

// readWithRetry retries an idempotent lookup once on a transient error.
// Not-found is a result, not a failure, and writes are never retried.
func (r *UserRepository) readWithRetry(ctx context.Context, query retry.RetryFunc) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := query(ctx)
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// SetSessionKeyIfAbsent assigns key to the user only while no session key is
// stored, so two concurrent first logins cannot both persist one. Returns
// whether this call won the assignment.
func (r *UserRepository) SetSessionKeyIfAbsent(ctx context.Context, id uint, key string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND (session_key IS NULL OR session_key = '')", id).
		Update("session_key", key)
	if tx.Error != nil {
		return false, fmt.Errorf("update session key failed: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// DeleteWithUploads removes the media rows listed in mediaIDs and then the
// user record, all inside one transaction. Any failure rolls the whole
// operation back, leaving the user and remaining uploads intact.
func (r *UserRepository) DeleteWithUploads(ctx context.Context, id uint, mediaIDs []string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, mediaID := range mediaIDs {
			if err := tx.Delete(&model.Media{}, "id = ?", mediaID).Error; err != nil {
				return fmt.Errorf("delete media %s failed: %w", mediaID, err)
			}
		}
		if err := tx.Delete(&model.User{}, id).Error; err != nil {
			return fmt.Errorf("delete user failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete user cascade failed: %w", err)
	}
	return nil
}
