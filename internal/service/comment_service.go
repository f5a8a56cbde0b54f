package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"tegridy/internal/cache"
	"tegridy/internal/models"
	"tegridy/internal/notifications"
	"tegridy/internal/observability"
	"tegridy/internal/repository"
)

// Publisher pushes comment activity to subscribers. It is best-effort;
// mutations succeed whether or not anyone is listening.
type Publisher interface {
	Publish(ctx context.Context, event notifications.CommentEvent)
}

// TargetChecker reports whether the commented-on entity exists.
type TargetChecker func(ctx context.Context, id uint) (bool, error)

type CommentService struct {
	commentRepo repository.CommentRepository
	voteRepo    repository.VoteRepository
	targets     map[models.TargetKind]TargetChecker
	events      Publisher
}

type CreateCommentInput struct {
	UserID     uint
	TargetKind models.TargetKind
	TargetID   uint
	ParentID   *uint
	Content    string
}

type ListCommentsInput struct {
	TargetKind    models.TargetKind
	TargetID      uint
	Sort          string
	Limit         int
	Cursor        uint
	CurrentUserID uint
}

type DeleteCommentInput struct {
	UserID    uint
	CommentID uint
}

type CastVoteInput struct {
	UserID    uint
	CommentID uint
	Type      models.VoteType
}

// CommentPage is one page of top-level comments. NextCursor is zero when
// this is the last page.
type CommentPage struct {
	Comments   []*CommentNode `json:"comments"`
	NextCursor uint           `json:"next_cursor,omitempty"`
}

// VoteResult reports the ledger state after a cast.
type VoteResult struct {
	CommentID uint            `json:"comment_id"`
	UserVote  models.VoteType `json:"user_vote"`
	Likes     int64           `json:"likes"`
	Dislikes  int64           `json:"dislikes"`
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	voteRepo repository.VoteRepository,
	episodeExists TargetChecker,
	characterExists TargetChecker,
	events Publisher,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		voteRepo:    voteRepo,
		targets: map[models.TargetKind]TargetChecker{
			models.TargetEpisode:   episodeExists,
			models.TargetCharacter: characterExists,
		},
		events: events,
	}
}

func (s *CommentService) checkTarget(ctx context.Context, kind models.TargetKind, targetID uint) error {
	check, ok := s.targets[kind]
	if !ok {
		return models.NewInvalidInputError("Unknown target kind")
	}
	exists, err := check(ctx, targetID)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError(targetLabel(kind), targetID)
	}
	return nil
}

func targetLabel(kind models.TargetKind) string {
	switch kind {
	case models.TargetEpisode:
		return "Episode"
	case models.TargetCharacter:
		return "Character"
	}
	return "Target"
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*CommentNode, error) {
	if !in.TargetKind.Valid() {
		return nil, models.NewInvalidInputError("Unknown target kind")
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewInvalidInputError("Comment content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxCommentLen {
		return nil, models.NewInvalidInputError("Comment too long (max 1000 characters)")
	}

	if err := s.checkTarget(ctx, in.TargetKind, in.TargetID); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := s.commentRepo.GetByID(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		// A reply lives in its parent's thread. A parent on another target
		// does not exist as far as this thread is concerned, and reporting
		// it that way leaks nothing about other threads.
		if parent.TargetKind != in.TargetKind || parent.TargetID != in.TargetID {
			return nil, models.NewNotFoundError("Comment", *in.ParentID)
		}
	}

	comment := &models.Comment{
		TargetKind: in.TargetKind,
		TargetID:   in.TargetID,
		Content:    content,
		UserID:     in.UserID,
		ParentID:   in.ParentID,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}

	created, err := s.commentRepo.GetByID(ctx, comment.ID)
	if err != nil {
		return nil, err
	}

	cache.InvalidateCommentsPages(ctx, in.TargetKind, in.TargetID)
	observability.CommentEventsTotal.WithLabelValues(string(in.TargetKind), "created").Inc()
	s.publish(ctx, notifications.CommentEvent{
		Event:      notifications.EventCommentCreated,
		TargetKind: in.TargetKind,
		TargetID:   in.TargetID,
		CommentID:  created.ID,
		ParentID:   created.ParentID,
		At:         time.Now(),
	})

	return buildNode(created, in.UserID), nil
}

// GetThread returns the full assembled comment forest for a target.
func (s *CommentService) GetThread(ctx context.Context, kind models.TargetKind, targetID uint, currentUserID uint) ([]*CommentNode, error) {
	if !kind.Valid() {
		return nil, models.NewInvalidInputError("Unknown target kind")
	}
	if err := s.checkTarget(ctx, kind, targetID); err != nil {
		return nil, err
	}
	flat, err := s.commentRepo.ListForTarget(ctx, kind, targetID)
	if err != nil {
		return nil, err
	}
	return assembleForest(flat, currentUserID), nil
}

// ListComments returns one page of top-level comments, each with its first
// reply level. Anonymous first pages are served through the cache.
func (s *CommentService) ListComments(ctx context.Context, in ListCommentsInput) (*CommentPage, error) {
	if !in.TargetKind.Valid() {
		return nil, models.NewInvalidInputError("Unknown target kind")
	}
	sort := in.Sort
	switch sort {
	case "":
		sort = repository.SortNewest
	case repository.SortTop, repository.SortNewest:
	default:
		return nil, models.NewInvalidInputError("Sort must be 'top' or 'newest'")
	}
	if err := s.checkTarget(ctx, in.TargetKind, in.TargetID); err != nil {
		return nil, err
	}

	// A page carries the viewer's own vote on every node, so only the
	// anonymous first page is shareable enough to cache.
	cacheable := in.CurrentUserID == 0 && in.Cursor == 0 && in.Limit == 0
	if cacheable {
		var page CommentPage
		found, err := cache.GetJSON(ctx, cache.CommentsPageKey(in.TargetKind, in.TargetID, sort), &page)
		if err == nil && found {
			return &page, nil
		}
	}

	comments, nextCursor, err := s.commentRepo.ListTopLevel(ctx, in.TargetKind, in.TargetID, repository.ListOptions{
		Sort:   sort,
		Limit:  in.Limit,
		Cursor: in.Cursor,
	})
	if err != nil {
		return nil, err
	}

	page := &CommentPage{Comments: make([]*CommentNode, 0, len(comments)), NextCursor: nextCursor}
	var leafIDs []uint
	for _, c := range comments {
		node := buildNode(c, in.CurrentUserID)
		for i := range c.Replies {
			reply := buildNode(&c.Replies[i], in.CurrentUserID)
			node.Replies = append(node.Replies, reply)
			leafIDs = append(leafIDs, reply.ID)
		}
		page.Comments = append(page.Comments, node)
	}
	if err := s.markExpandable(ctx, page.Comments, leafIDs); err != nil {
		return nil, err
	}

	if cacheable {
		_ = cache.SetJSON(ctx, cache.CommentsPageKey(in.TargetKind, in.TargetID, sort), page, cache.CommentsPageTTL)
	}
	return page, nil
}

// ListReplies expands one comment: its direct replies plus one preloaded
// level underneath, oldest first.
func (s *CommentService) ListReplies(ctx context.Context, commentID uint, currentUserID uint) ([]*CommentNode, error) {
	if _, err := s.commentRepo.GetByID(ctx, commentID); err != nil {
		return nil, err
	}
	replies, err := s.commentRepo.ListReplies(ctx, commentID)
	if err != nil {
		return nil, err
	}

	nodes := make([]*CommentNode, 0, len(replies))
	var leafIDs []uint
	for _, r := range replies {
		node := buildNode(r, currentUserID)
		for i := range r.Replies {
			child := buildNode(&r.Replies[i], currentUserID)
			node.Replies = append(node.Replies, child)
			leafIDs = append(leafIDs, child.ID)
		}
		nodes = append(nodes, node)
	}
	if err := s.markExpandable(ctx, nodes, leafIDs); err != nil {
		return nil, err
	}
	return nodes, nil
}

// markExpandable flags deepest-level nodes that have replies not present in
// the response.
func (s *CommentService) markExpandable(ctx context.Context, nodes []*CommentNode, leafIDs []uint) error {
	if len(leafIDs) == 0 {
		return nil
	}
	counts, err := s.commentRepo.CountReplies(ctx, leafIDs)
	if err != nil {
		return err
	}
	var mark func(ns []*CommentNode)
	mark = func(ns []*CommentNode) {
		for _, n := range ns {
			if len(n.Replies) == 0 && counts[n.ID] > 0 {
				n.HasMoreReplies = true
			}
			mark(n.Replies)
		}
	}
	mark(nodes)
	return nil
}

func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return err
	}
	if comment.UserID != in.UserID {
		return models.NewForbiddenError("Only the author can delete a comment")
	}
	if err := s.commentRepo.Delete(ctx, in.CommentID); err != nil {
		return err
	}

	cache.InvalidateCommentsPages(ctx, comment.TargetKind, comment.TargetID)
	observability.CommentEventsTotal.WithLabelValues(string(comment.TargetKind), "deleted").Inc()
	s.publish(ctx, notifications.CommentEvent{
		Event:      notifications.EventCommentDeleted,
		TargetKind: comment.TargetKind,
		TargetID:   comment.TargetID,
		CommentID:  comment.ID,
		ParentID:   comment.ParentID,
		At:         time.Now(),
	})
	return nil
}

// CastVote applies one press of a like or dislike button. Pressing the vote
// already held removes it; pressing the other one switches the row in place.
func (s *CommentService) CastVote(ctx context.Context, in CastVoteInput) (*VoteResult, error) {
	if !in.Type.Valid() {
		return nil, models.NewInvalidInputError("Vote type must be 'like' or 'dislike'")
	}

	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}

	existing, err := s.voteRepo.Find(ctx, in.UserID, in.CommentID)
	if err != nil {
		return nil, err
	}

	result := in.Type
	switch {
	case existing == nil:
		err = s.voteRepo.Upsert(ctx, &models.Vote{UserID: in.UserID, CommentID: in.CommentID, Type: in.Type})
	case existing.Type == in.Type:
		err = s.voteRepo.Delete(ctx, in.UserID, in.CommentID)
		result = models.VoteNone
	default:
		err = s.voteRepo.UpdateType(ctx, in.UserID, in.CommentID, in.Type)
	}
	if err != nil {
		return nil, err
	}

	counts, err := s.voteRepo.Counts(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}

	cache.InvalidateCommentsPages(ctx, comment.TargetKind, comment.TargetID)
	observability.VoteCastsTotal.WithLabelValues(string(result)).Inc()
	s.publish(ctx, notifications.CommentEvent{
		Event:      notifications.EventVoteChanged,
		TargetKind: comment.TargetKind,
		TargetID:   comment.TargetID,
		CommentID:  comment.ID,
		Likes:      counts.Likes,
		Dislikes:   counts.Dislikes,
		At:         time.Now(),
	})

	return &VoteResult{
		CommentID: in.CommentID,
		UserVote:  result,
		Likes:     counts.Likes,
		Dislikes:  counts.Dislikes,
	}, nil
}

func (s *CommentService) publish(ctx context.Context, event notifications.CommentEvent) {
	if s.events != nil {
		s.events.Publish(ctx, event)
	}
}
