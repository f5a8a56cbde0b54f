package repository

import (
	"context"
	"errors"

	"tegridy/internal/cache"
	"tegridy/internal/models"

	"gorm.io/gorm"
)

// EpisodeRepository defines persistence operations for episodes.
type EpisodeRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Episode, error)
	GetBySlug(ctx context.Context, slug string) (*models.Episode, error)
	List(ctx context.Context, season, limit, offset int) ([]*models.Episode, error)
	Exists(ctx context.Context, id uint) (bool, error)
	Create(ctx context.Context, episode *models.Episode) error
}

type episodeRepository struct {
	db *gorm.DB
}

// NewEpisodeRepository returns a new EpisodeRepository implementation.
func NewEpisodeRepository(db *gorm.DB) EpisodeRepository {
	return &episodeRepository{db: db}
}

func (r *episodeRepository) GetByID(ctx context.Context, id uint) (*models.Episode, error) {
	var episode models.Episode
	if err := r.db.WithContext(ctx).First(&episode, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Episode", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &episode, nil
}

func (r *episodeRepository) GetBySlug(ctx context.Context, slug string) (*models.Episode, error) {
	var episode models.Episode
	key := cache.EpisodeKey(slug)

	err := cache.Aside(ctx, key, &episode, cache.EpisodeTTL, func() error {
		if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&episode).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Episode", slug)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &episode, nil
}

func (r *episodeRepository) List(ctx context.Context, season, limit, offset int) ([]*models.Episode, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("season ASC, number ASC")
	if season > 0 {
		q = q.Where("season = ?", season)
	}
	var episodes []*models.Episode
	if err := q.Limit(limit).Offset(offset).Find(&episodes).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return episodes, nil
}

func (r *episodeRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Episode{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *episodeRepository) Create(ctx context.Context, episode *models.Episode) error {
	if err := r.db.WithContext(ctx).Create(episode).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.Invalidate(ctx, cache.EpisodeKey(episode.Slug))
	return nil
}
