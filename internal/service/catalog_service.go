package service

import (
	"context"
	"strings"
	"time"

	"tegridy/internal/models"
	"tegridy/internal/repository"
	"tegridy/internal/validation"
)

// CatalogService serves the episode and character pages that comment
// threads hang off.
type CatalogService struct {
	episodeRepo   repository.EpisodeRepository
	characterRepo repository.CharacterRepository
}

type CreateEpisodeInput struct {
	Slug     string
	Title    string
	Season   int
	Number   int
	Synopsis string
	VideoURL string
	AirDate  time.Time
}

type CreateCharacterInput struct {
	Slug     string
	Name     string
	Bio      string
	ImageURL string
}

func NewCatalogService(episodeRepo repository.EpisodeRepository, characterRepo repository.CharacterRepository) *CatalogService {
	return &CatalogService{episodeRepo: episodeRepo, characterRepo: characterRepo}
}

func (s *CatalogService) ListEpisodes(ctx context.Context, season, limit, offset int) ([]*models.Episode, error) {
	return s.episodeRepo.List(ctx, season, limit, offset)
}

func (s *CatalogService) GetEpisode(ctx context.Context, slug string) (*models.Episode, error) {
	return s.episodeRepo.GetBySlug(ctx, slug)
}

func (s *CatalogService) ListCharacters(ctx context.Context, limit, offset int) ([]*models.Character, error) {
	return s.characterRepo.List(ctx, limit, offset)
}

func (s *CatalogService) GetCharacter(ctx context.Context, slug string) (*models.Character, error) {
	return s.characterRepo.GetBySlug(ctx, slug)
}

func (s *CatalogService) CreateEpisode(ctx context.Context, in CreateEpisodeInput) (*models.Episode, error) {
	if err := validation.ValidateSlug(in.Slug); err != nil {
		return nil, models.NewInvalidInputError(err.Error())
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, models.NewInvalidInputError("Title is required")
	}
	if in.Season < 1 || in.Number < 1 {
		return nil, models.NewInvalidInputError("Season and number must be positive")
	}

	episode := &models.Episode{
		Slug:     in.Slug,
		Title:    strings.TrimSpace(in.Title),
		Season:   in.Season,
		Number:   in.Number,
		Synopsis: in.Synopsis,
		VideoURL: in.VideoURL,
		AirDate:  in.AirDate,
	}
	if err := s.episodeRepo.Create(ctx, episode); err != nil {
		return nil, err
	}
	return episode, nil
}

func (s *CatalogService) CreateCharacter(ctx context.Context, in CreateCharacterInput) (*models.Character, error) {
	if err := validation.ValidateSlug(in.Slug); err != nil {
		return nil, models.NewInvalidInputError(err.Error())
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, models.NewInvalidInputError("Name is required")
	}

	character := &models.Character{
		Slug:     in.Slug,
		Name:     strings.TrimSpace(in.Name),
		Bio:      in.Bio,
		ImageURL: in.ImageURL,
	}
	if err := s.characterRepo.Create(ctx, character); err != nil {
		return nil, err
	}
	return character, nil
}
