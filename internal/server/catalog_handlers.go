package server

import (
	"time"

	"tegridy/internal/models"
	"tegridy/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetEpisodes handles GET /api/episodes
func (s *Server) GetEpisodes(c *fiber.Ctx) error {
	p := parsePagination(c, 50)
	season := c.QueryInt("season", 0)

	episodes, err := s.catalogService.ListEpisodes(c.Context(), season, p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"episodes": episodes})
}

// GetEpisode handles GET /api/episodes/:slug
func (s *Server) GetEpisode(c *fiber.Ctx) error {
	episode, err := s.catalogService.GetEpisode(c.Context(), c.Params("slug"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(episode)
}

// CreateEpisode handles POST /api/episodes
func (s *Server) CreateEpisode(c *fiber.Ctx) error {
	var req struct {
		Slug     string    `json:"slug"`
		Title    string    `json:"title"`
		Season   int       `json:"season"`
		Number   int       `json:"number"`
		Synopsis string    `json:"synopsis"`
		VideoURL string    `json:"video_url"`
		AirDate  time.Time `json:"air_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidInputError("Invalid request body"))
	}

	episode, err := s.catalogService.CreateEpisode(c.Context(), service.CreateEpisodeInput{
		Slug:     req.Slug,
		Title:    req.Title,
		Season:   req.Season,
		Number:   req.Number,
		Synopsis: req.Synopsis,
		VideoURL: req.VideoURL,
		AirDate:  req.AirDate,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(episode)
}

// GetCharacters handles GET /api/characters
func (s *Server) GetCharacters(c *fiber.Ctx) error {
	p := parsePagination(c, 50)

	characters, err := s.catalogService.ListCharacters(c.Context(), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"characters": characters})
}

// GetCharacter handles GET /api/characters/:slug
func (s *Server) GetCharacter(c *fiber.Ctx) error {
	character, err := s.catalogService.GetCharacter(c.Context(), c.Params("slug"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(character)
}

// CreateCharacter handles POST /api/characters
func (s *Server) CreateCharacter(c *fiber.Ctx) error {
	var req struct {
		Slug     string `json:"slug"`
		Name     string `json:"name"`
		Bio      string `json:"bio"`
		ImageURL string `json:"image_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidInputError("Invalid request body"))
	}

	character, err := s.catalogService.CreateCharacter(c.Context(), service.CreateCharacterInput{
		Slug:     req.Slug,
		Name:     req.Name,
		Bio:      req.Bio,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(character)
}
