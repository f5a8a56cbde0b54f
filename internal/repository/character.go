package repository

import (
	"context"
	"errors"

	"tegridy/internal/cache"
	"tegridy/internal/models"

	"gorm.io/gorm"
)

// CharacterRepository defines persistence operations for characters.
type CharacterRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Character, error)
	GetBySlug(ctx context.Context, slug string) (*models.Character, error)
	List(ctx context.Context, limit, offset int) ([]*models.Character, error)
	Exists(ctx context.Context, id uint) (bool, error)
	Create(ctx context.Context, character *models.Character) error
}

type characterRepository struct {
	db *gorm.DB
}

// NewCharacterRepository returns a new CharacterRepository implementation.
func NewCharacterRepository(db *gorm.DB) CharacterRepository {
	return &characterRepository{db: db}
}

func (r *characterRepository) GetByID(ctx context.Context, id uint) (*models.Character, error) {
	var character models.Character
	if err := r.db.WithContext(ctx).First(&character, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Character", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &character, nil
}

func (r *characterRepository) GetBySlug(ctx context.Context, slug string) (*models.Character, error) {
	var character models.Character
	key := cache.CharacterKey(slug)

	err := cache.Aside(ctx, key, &character, cache.CharacterTTL, func() error {
		if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&character).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Character", slug)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &character, nil
}

func (r *characterRepository) List(ctx context.Context, limit, offset int) ([]*models.Character, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var characters []*models.Character
	if err := r.db.WithContext(ctx).Order("name ASC").Limit(limit).Offset(offset).Find(&characters).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return characters, nil
}

func (r *characterRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Character{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *characterRepository) Create(ctx context.Context, character *models.Character) error {
	if err := r.db.WithContext(ctx).Create(character).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.Invalidate(ctx, cache.CharacterKey(character.Slug))
	return nil
}
