package repository

import (
	"context"
	"errors"

	"tegridy/internal/models"
	"tegridy/internal/observability"

	"gorm.io/gorm"
)

const (
	// SortTop orders by like count, most-liked first; ties break newest-first.
	SortTop = "top"
	// SortNewest orders strictly by creation time, newest first.
	SortNewest = "newest"

	// DefaultPageSize is used when the caller sends no limit.
	DefaultPageSize = 20
	// MaxPageSize caps a single page regardless of what the caller asks for.
	MaxPageSize = 50

	likesExpr    = "(SELECT COUNT(*) FROM votes WHERE votes.comment_id = comments.id AND votes.type = 'like')"
	dislikesExpr = "(SELECT COUNT(*) FROM votes WHERE votes.comment_id = comments.id AND votes.type = 'dislike')"
)

// ListOptions controls sorting and cursor pagination for top-level listings.
// Cursor is the ID of the last comment on the previous page; zero means
// start from the beginning.
type ListOptions struct {
	Sort   string
	Limit  int
	Cursor uint
}

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	// GetByID loads a single comment with its author and derived vote counts.
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	// ListTopLevel returns one page of root comments for a target, each with
	// its first level of replies preloaded. The returned cursor is zero when
	// no further page exists.
	ListTopLevel(ctx context.Context, kind models.TargetKind, targetID uint, opts ListOptions) ([]*models.Comment, uint, error)
	// ListReplies returns the direct replies of a comment plus one more
	// preloaded level underneath each, oldest first.
	ListReplies(ctx context.Context, parentID uint) ([]*models.Comment, error)
	// ListForTarget returns every comment on a target as a flat slice,
	// oldest first, for full-tree assembly.
	ListForTarget(ctx context.Context, kind models.TargetKind, targetID uint) ([]*models.Comment, error)
	// CountReplies returns the number of direct replies per parent ID.
	CountReplies(ctx context.Context, parentIDs []uint) (map[uint]int64, error)
	// Delete removes a comment and its whole reply subtree with all votes.
	Delete(ctx context.Context, id uint) error
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository returns a new CommentRepository implementation.
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

// withVoteCounts attaches the derived likes/dislikes columns. Counts live in
// the votes table only; they are never stored on the comment row, so a read
// can never disagree with the ledger.
func (r *commentRepository) withVoteCounts(q *gorm.DB) *gorm.DB {
	return q.Model(&models.Comment{}).
		Select("comments.*, " + likesExpr + " AS likes_count, " + dislikesExpr + " AS dislikes_count")
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	done := observability.TrackQuery("insert", "comments")
	defer done()

	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	err := r.withVoteCounts(r.db.WithContext(ctx)).
		Preload("User").
		Preload("Votes").
		Where("comments.id = ?", id).
		First(&comment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Comment", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &comment, nil
}

func (r *commentRepository) ListTopLevel(ctx context.Context, kind models.TargetKind, targetID uint, opts ListOptions) ([]*models.Comment, uint, error) {
	done := observability.TrackQuery("select", "comments")
	defer done()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	q := r.withVoteCounts(r.db.WithContext(ctx)).
		Preload("User").
		Preload("Votes").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.created_at ASC, comments.id ASC")
		}).
		Preload("Replies.User").
		Preload("Replies.Votes").
		Where("comments.target_kind = ? AND comments.target_id = ?", kind, targetID).
		Where("comments.parent_id IS NULL")

	if opts.Cursor != 0 {
		after, err := r.cursorRow(ctx, opts.Cursor, kind, targetID)
		if err != nil {
			return nil, 0, err
		}
		q = applyCursor(q, opts.Sort, after)
	}

	switch opts.Sort {
	case SortTop:
		q = q.Order("likes_count DESC, comments.created_at DESC, comments.id DESC")
	default:
		q = q.Order("comments.created_at DESC, comments.id DESC")
	}

	var comments []*models.Comment
	// Fetch one past the page to learn whether another page exists.
	if err := q.Limit(limit + 1).Find(&comments).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var nextCursor uint
	if len(comments) > limit {
		comments = comments[:limit]
		nextCursor = comments[limit-1].ID
	}
	return comments, nextCursor, nil
}

// cursorRow resolves the cursor to its comment and verifies it belongs to
// the listing being paged. A cursor from another thread is a bad request,
// not a silent empty page.
func (r *commentRepository) cursorRow(ctx context.Context, cursor uint, kind models.TargetKind, targetID uint) (*models.Comment, error) {
	var after models.Comment
	err := r.withVoteCounts(r.db.WithContext(ctx)).
		Where("comments.id = ? AND comments.target_kind = ? AND comments.target_id = ?", cursor, kind, targetID).
		First(&after).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewInvalidInputError("invalid pagination cursor")
		}
		return nil, models.NewInternalError(err)
	}
	return &after, nil
}

// applyCursor filters to rows strictly after the cursor row in the given
// sort order. The full order tuple is compared so pages stay stable when
// rows share a like count or timestamp.
func applyCursor(q *gorm.DB, sort string, after *models.Comment) *gorm.DB {
	if sort == SortTop {
		return q.Where(
			likesExpr+" < ? OR ("+likesExpr+" = ? AND (comments.created_at < ? OR (comments.created_at = ? AND comments.id < ?)))",
			after.LikesCount, after.LikesCount, after.CreatedAt, after.CreatedAt, after.ID,
		)
	}
	return q.Where(
		"comments.created_at < ? OR (comments.created_at = ? AND comments.id < ?)",
		after.CreatedAt, after.CreatedAt, after.ID,
	)
}

func (r *commentRepository) ListReplies(ctx context.Context, parentID uint) ([]*models.Comment, error) {
	done := observability.TrackQuery("select", "comments")
	defer done()

	var replies []*models.Comment
	err := r.withVoteCounts(r.db.WithContext(ctx)).
		Preload("User").
		Preload("Votes").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.created_at ASC, comments.id ASC")
		}).
		Preload("Replies.User").
		Preload("Replies.Votes").
		Where("comments.parent_id = ?", parentID).
		Order("comments.created_at ASC, comments.id ASC").
		Find(&replies).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return replies, nil
}

func (r *commentRepository) ListForTarget(ctx context.Context, kind models.TargetKind, targetID uint) ([]*models.Comment, error) {
	done := observability.TrackQuery("select", "comments")
	defer done()

	var comments []*models.Comment
	err := r.withVoteCounts(r.db.WithContext(ctx)).
		Preload("User").
		Preload("Votes").
		Where("comments.target_kind = ? AND comments.target_id = ?", kind, targetID).
		Order("comments.created_at ASC, comments.id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

func (r *commentRepository) CountReplies(ctx context.Context, parentIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(parentIDs))
	if len(parentIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ParentID uint
		N        int64
	}
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Select("parent_id AS parent_id, COUNT(*) AS n").
		Where("parent_id IN ?", parentIDs).
		Group("parent_id").
		Scan(&rows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, row := range rows {
		counts[row.ParentID] = row.N
	}
	return counts, nil
}

// Delete walks the reply tree breadth-first inside one transaction and
// removes votes before comments, so a failure partway leaves either the
// whole subtree or none of it. This does not lean on database-level
// cascades, which keeps the behavior identical across drivers.
func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	done := observability.TrackQuery("delete", "comments")
	defer done()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := []uint{id}
		frontier := []uint{id}
		for len(frontier) > 0 {
			var children []uint
			if err := tx.Model(&models.Comment{}).
				Where("parent_id IN ?", frontier).
				Pluck("id", &children).Error; err != nil {
				return models.NewInternalError(err)
			}
			ids = append(ids, children...)
			frontier = children
		}

		if err := tx.Where("comment_id IN ?", ids).Delete(&models.Vote{}).Error; err != nil {
			return models.NewInternalError(err)
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Comment{})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Comment", id)
		}
		return nil
	})
}
