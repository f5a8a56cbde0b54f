package server

import (
	"tegridy/internal/models"
	"tegridy/internal/repository"
	"tegridy/internal/service"

	"github.com/gofiber/fiber/v2"
)

// resolveTarget turns the :slug route parameter into a (kind, id) pair.
func (s *Server) resolveTarget(c *fiber.Ctx, kind models.TargetKind) (uint, error) {
	slug := c.Params("slug")
	switch kind {
	case models.TargetEpisode:
		episode, err := s.episodeRepo.GetBySlug(c.Context(), slug)
		if err != nil {
			return 0, err
		}
		return episode.ID, nil
	case models.TargetCharacter:
		character, err := s.characterRepo.GetBySlug(c.Context(), slug)
		if err != nil {
			return 0, err
		}
		return character.ID, nil
	}
	return 0, models.NewInvalidInputError("Unknown target kind")
}

// getComments handles the paginated top-level listing for one target kind.
func (s *Server) getComments(c *fiber.Ctx, kind models.TargetKind) error {
	targetID, err := s.resolveTarget(c, kind)
	if err != nil {
		return respondServiceError(c, err)
	}

	cursor := c.QueryInt("cursor", 0)
	if cursor < 0 {
		cursor = 0
	}

	page, err := s.commentService.ListComments(c.Context(), service.ListCommentsInput{
		TargetKind:    kind,
		TargetID:      targetID,
		Sort:          c.Query("sort", repository.SortNewest),
		Limit:         c.QueryInt("limit", 0),
		Cursor:        uint(cursor),
		CurrentUserID: s.optionalUserID(c),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(page)
}

// getCommentTree handles the fully assembled thread for one target kind.
func (s *Server) getCommentTree(c *fiber.Ctx, kind models.TargetKind) error {
	targetID, err := s.resolveTarget(c, kind)
	if err != nil {
		return respondServiceError(c, err)
	}

	tree, err := s.commentService.GetThread(c.Context(), kind, targetID, s.optionalUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"comments": tree})
}

// createComment handles posting a comment or reply on one target kind.
func (s *Server) createComment(c *fiber.Ctx, kind models.TargetKind) error {
	targetID, err := s.resolveTarget(c, kind)
	if err != nil {
		return respondServiceError(c, err)
	}

	var req struct {
		Content  string `json:"content"`
		ParentID *uint  `json:"parent_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidInputError("Invalid request body"))
	}

	node, err := s.commentService.CreateComment(c.Context(), service.CreateCommentInput{
		UserID:     currentUserID(c),
		TargetKind: kind,
		TargetID:   targetID,
		ParentID:   req.ParentID,
		Content:    req.Content,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(node)
}

// GetEpisodeComments handles GET /api/episodes/:slug/comments
func (s *Server) GetEpisodeComments(c *fiber.Ctx) error {
	return s.getComments(c, models.TargetEpisode)
}

// GetEpisodeCommentTree handles GET /api/episodes/:slug/comments/tree
func (s *Server) GetEpisodeCommentTree(c *fiber.Ctx) error {
	return s.getCommentTree(c, models.TargetEpisode)
}

// CreateEpisodeComment handles POST /api/episodes/:slug/comments
func (s *Server) CreateEpisodeComment(c *fiber.Ctx) error {
	return s.createComment(c, models.TargetEpisode)
}

// GetCharacterComments handles GET /api/characters/:slug/comments
func (s *Server) GetCharacterComments(c *fiber.Ctx) error {
	return s.getComments(c, models.TargetCharacter)
}

// GetCharacterCommentTree handles GET /api/characters/:slug/comments/tree
func (s *Server) GetCharacterCommentTree(c *fiber.Ctx) error {
	return s.getCommentTree(c, models.TargetCharacter)
}

// CreateCharacterComment handles POST /api/characters/:slug/comments
func (s *Server) CreateCharacterComment(c *fiber.Ctx) error {
	return s.createComment(c, models.TargetCharacter)
}

// GetCommentReplies handles GET /api/comments/:id/replies
func (s *Server) GetCommentReplies(c *fiber.Ctx) error {
	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	replies, err := s.commentService.ListReplies(c.Context(), commentID, s.optionalUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"replies": replies})
}

// DeleteComment handles DELETE /api/comments/:id
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.commentService.DeleteComment(c.Context(), service.DeleteCommentInput{
		UserID:    currentUserID(c),
		CommentID: commentID,
	}); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CastVote handles POST /api/comments/:id/vote
func (s *Server) CastVote(c *fiber.Ctx) error {
	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Type models.VoteType `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidInputError("Invalid request body"))
	}

	result, err := s.commentService.CastVote(c.Context(), service.CastVoteInput{
		UserID:    currentUserID(c),
		CommentID: commentID,
		Type:      req.Type,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}
