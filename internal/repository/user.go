// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tegridy/internal/cache"
	"tegridy/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// Ensure materializes a minimal user row for the given identity if none
	// exists yet. Existing rows are left untouched. This is the single
	// session-attach hook that lets mutation paths assume the author exists.
	Ensure(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	key := cache.UserKey(id)

	err := cache.Aside(ctx, key, &user, cache.UserTTL, func() error {
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) Ensure(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		return models.NewInvalidInputError("user id is required")
	}
	if user.Username == "" {
		user.Username = fmt.Sprintf("member-%d", user.ID)
	}
	if user.Email == "" {
		user.Email = fmt.Sprintf("member-%d@unknown.invalid", user.ID)
	}
	user.Email = strings.ToLower(user.Email)

	// Insert-if-absent; concurrent requests for the same session collapse
	// into a single row. The conflict target is left open so an existing row
	// is skipped whichever unique index (id, username, email) it hits first.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}
