package repository

import (
	"context"
	"errors"

	"tegridy/internal/models"
	"tegridy/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteCounts is the tally of reactions on one comment.
type VoteCounts struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// VoteRepository defines persistence operations for the vote ledger.
// One row per (user, comment); the vote type mutates in place.
type VoteRepository interface {
	Find(ctx context.Context, userID, commentID uint) (*models.Vote, error)
	// Upsert inserts the vote, or overwrites the type if a row for the
	// (user, comment) pair already exists.
	Upsert(ctx context.Context, vote *models.Vote) error
	UpdateType(ctx context.Context, userID, commentID uint, voteType models.VoteType) error
	Delete(ctx context.Context, userID, commentID uint) error
	Counts(ctx context.Context, commentID uint) (VoteCounts, error)
}

type voteRepository struct {
	db *gorm.DB
}

// NewVoteRepository returns a new VoteRepository implementation.
func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) Find(ctx context.Context, userID, commentID uint) (*models.Vote, error) {
	var vote models.Vote
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND comment_id = ?", userID, commentID).
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &vote, nil
}

func (r *voteRepository) Upsert(ctx context.Context, vote *models.Vote) error {
	done := observability.TrackQuery("upsert", "votes")
	defer done()

	// The unique (user_id, comment_id) index absorbs a racing double insert;
	// the later write just lands its type on the existing row.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "comment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"type", "updated_at"}),
		}).
		Create(vote).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *voteRepository) UpdateType(ctx context.Context, userID, commentID uint, voteType models.VoteType) error {
	done := observability.TrackQuery("update", "votes")
	defer done()

	res := r.db.WithContext(ctx).Model(&models.Vote{}).
		Where("user_id = ? AND comment_id = ?", userID, commentID).
		Update("type", voteType)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Vote", commentID)
	}
	return nil
}

func (r *voteRepository) Delete(ctx context.Context, userID, commentID uint) error {
	done := observability.TrackQuery("delete", "votes")
	defer done()

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND comment_id = ?", userID, commentID).
		Delete(&models.Vote{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *voteRepository) Counts(ctx context.Context, commentID uint) (VoteCounts, error) {
	var rows []struct {
		Type models.VoteType
		N    int64
	}
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Select("type AS type, COUNT(*) AS n").
		Where("comment_id = ?", commentID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return VoteCounts{}, models.NewInternalError(err)
	}

	var counts VoteCounts
	for _, row := range rows {
		switch row.Type {
		case models.VoteLike:
			counts.Likes = row.N
		case models.VoteDislike:
			counts.Dislikes = row.N
		}
	}
	return counts, nil
}
