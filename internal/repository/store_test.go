package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tegridy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database with the full schema. A
// single connection keeps every query on the same in-memory instance.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Episode{},
		&models.Character{},
		&models.Comment{},
		&models.Vote{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{Username: name, Email: name + "@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedComment(t *testing.T, db *gorm.DB, userID uint, parentID *uint, createdAt time.Time, content string) *models.Comment {
	t.Helper()
	comment := &models.Comment{
		TargetKind: models.TargetEpisode,
		TargetID:   1,
		Content:    content,
		UserID:     userID,
		ParentID:   parentID,
		CreatedAt:  createdAt,
	}
	require.NoError(t, db.Create(comment).Error)
	return comment
}

func likeComment(t *testing.T, db *gorm.DB, userID, commentID uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Vote{UserID: userID, CommentID: commentID, Type: models.VoteLike}).Error)
}

func TestVoteRepository_UpsertIsIdempotentPerPair(t *testing.T) {
	db := newTestDB(t)
	votes := NewVoteRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "cartman")
	comment := seedComment(t, db, user.ID, nil, time.Now(), "respect my authoritah")

	require.NoError(t, votes.Upsert(ctx, &models.Vote{UserID: user.ID, CommentID: comment.ID, Type: models.VoteLike}))
	// A racing second cast must land on the same row, not add one.
	require.NoError(t, votes.Upsert(ctx, &models.Vote{UserID: user.ID, CommentID: comment.ID, Type: models.VoteDislike}))

	var count int64
	require.NoError(t, db.Model(&models.Vote{}).Where("user_id = ? AND comment_id = ?", user.ID, comment.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	vote, err := votes.Find(ctx, user.ID, comment.ID)
	require.NoError(t, err)
	require.NotNil(t, vote)
	assert.Equal(t, models.VoteDislike, vote.Type, "the later cast wins the row")
}

func TestVoteRepository_CountsNeverDoubleCount(t *testing.T) {
	db := newTestDB(t)
	votes := NewVoteRepository(db)
	ctx := context.Background()

	author := seedUser(t, db, "kyle")
	comment := seedComment(t, db, author.ID, nil, time.Now(), "dude")

	for i := 0; i < 3; i++ {
		voter := seedUser(t, db, fmt.Sprintf("liker%d", i))
		require.NoError(t, votes.Upsert(ctx, &models.Vote{UserID: voter.ID, CommentID: comment.ID, Type: models.VoteLike}))
	}
	hater := seedUser(t, db, "hater")
	require.NoError(t, votes.Upsert(ctx, &models.Vote{UserID: hater.ID, CommentID: comment.ID, Type: models.VoteDislike}))

	counts, err := votes.Counts(ctx, comment.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts.Likes)
	assert.EqualValues(t, 1, counts.Dislikes)

	// Switching a like to a dislike moves the tally, it never inflates it.
	require.NoError(t, votes.Upsert(ctx, &models.Vote{UserID: author.ID, CommentID: comment.ID, Type: models.VoteLike}))
	require.NoError(t, votes.UpdateType(ctx, author.ID, comment.ID, models.VoteDislike))

	counts, err = votes.Counts(ctx, comment.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts.Likes)
	assert.EqualValues(t, 2, counts.Dislikes)
}

func TestCommentRepository_ListTopLevel_NewestPagination(t *testing.T) {
	db := newTestDB(t)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "stan")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		seedComment(t, db, user.ID, nil, base.Add(time.Duration(i)*time.Minute), fmt.Sprintf("comment %d", i))
	}

	var seen []uint
	cursor := uint(0)
	for {
		page, next, err := comments.ListTopLevel(ctx, models.TargetEpisode, 1, ListOptions{
			Sort:   SortNewest,
			Limit:  10,
			Cursor: cursor,
		})
		require.NoError(t, err)
		for _, c := range page {
			seen = append(seen, c.ID)
		}
		if next == 0 {
			assert.Len(t, page, 5, "last page holds the remainder")
			break
		}
		assert.Len(t, page, 10)
		cursor = next
	}

	require.Len(t, seen, 25, "pages cover every comment exactly once")
	unique := make(map[uint]bool, len(seen))
	for i, id := range seen {
		assert.False(t, unique[id], "no comment appears on two pages")
		unique[id] = true
		if i > 0 {
			assert.Greater(t, seen[i-1], id, "newest first means descending IDs for same-target inserts")
		}
	}
}

func TestCommentRepository_ListTopLevel_NewestCursorSurvivesInserts(t *testing.T) {
	db := newTestDB(t)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "craig")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		seedComment(t, db, user.ID, nil, base.Add(time.Duration(i)*time.Minute), fmt.Sprintf("comment %d", i))
	}

	first, cursor, err := comments.ListTopLevel(ctx, models.TargetEpisode, 1, ListOptions{
		Sort:  SortNewest,
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, first, 10)
	require.NotZero(t, cursor)

	firstIDs := make(map[uint]bool, len(first))
	for _, c := range first {
		firstIDs[c.ID] = true
	}

	// Someone posts while the reader is between pages. The cursor keeps
	// the resumed page anchored below the first one instead of shifting
	// rows into it again.
	latecomer := seedComment(t, db, user.ID, nil, base.Add(time.Hour), "posted mid-scroll")

	second, next, err := comments.ListTopLevel(ctx, models.TargetEpisode, 1, ListOptions{
		Sort:   SortNewest,
		Limit:  10,
		Cursor: cursor,
	})
	require.NoError(t, err)
	require.Len(t, second, 5)
	assert.Zero(t, next)

	for _, c := range second {
		assert.False(t, firstIDs[c.ID], "no first-page comment reappears after the insert")
		assert.NotEqual(t, latecomer.ID, c.ID, "the new comment belongs before the cursor, not after it")
	}
}

func TestCommentRepository_ListTopLevel_TopSortWithTies(t *testing.T) {
	db := newTestDB(t)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	author := seedUser(t, db, "kenny")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	old := seedComment(t, db, author.ID, nil, base, "old and loved")
	mid := seedComment(t, db, author.ID, nil, base.Add(time.Minute), "tied one")
	young := seedComment(t, db, author.ID, nil, base.Add(2*time.Minute), "tied two")

	for i := 0; i < 2; i++ {
		voter := seedUser(t, db, fmt.Sprintf("voter%d", i))
		likeComment(t, db, voter.ID, old.ID)
	}
	single := seedUser(t, db, "single")
	likeComment(t, db, single.ID, mid.ID)
	likeComment(t, db, seedUser(t, db, "other").ID, young.ID)

	page, next, err := comments.ListTopLevel(ctx, models.TargetEpisode, 1, ListOptions{Sort: SortTop, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, old.ID, page[0].ID, "most likes first")
	assert.Equal(t, young.ID, page[1].ID, "ties break newest first")
	assert.Equal(t, 2, page[0].LikesCount)
	require.NotZero(t, next)

	rest, next, err := comments.ListTopLevel(ctx, models.TargetEpisode, 1, ListOptions{Sort: SortTop, Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, mid.ID, rest[0].ID)
	assert.Zero(t, next)
}

func TestCommentRepository_ListTopLevel_ClampsLimit(t *testing.T) {
	db := newTestDB(t)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "wendy")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 60; i++ {
		seedComment(t, db, user.ID, nil, base.Add(time.Duration(i)*time.Second), "c")
	}

	page, _, err := comments.ListTopLevel(ctx, models.TargetEpisode, 1, ListOptions{Sort: SortNewest, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, page, MaxPageSize)

	page, _, err = comments.ListTopLevel(ctx, models.TargetEpisode, 1, ListOptions{Sort: SortNewest})
	require.NoError(t, err)
	assert.Len(t, page, DefaultPageSize)
}

func TestCommentRepository_ListTopLevel_RejectsForeignCursor(t *testing.T) {
	db := newTestDB(t)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "jimmy")
	other := &models.Comment{TargetKind: models.TargetCharacter, TargetID: 9, Content: "wow", UserID: user.ID}
	require.NoError(t, db.Create(other).Error)

	_, _, err := comments.ListTopLevel(ctx, models.TargetEpisode, 1, ListOptions{Sort: SortNewest, Cursor: other.ID})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_INPUT", appErr.Code)
}

func TestCommentRepository_ListReplies_TwoLevels(t *testing.T) {
	db := newTestDB(t)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "token")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	root := seedComment(t, db, user.ID, nil, base, "root")
	child := seedComment(t, db, user.ID, &root.ID, base.Add(time.Minute), "child")
	grandchild := seedComment(t, db, user.ID, &child.ID, base.Add(2*time.Minute), "grandchild")
	greatGrandchild := seedComment(t, db, user.ID, &grandchild.ID, base.Add(3*time.Minute), "deeper")
	_ = greatGrandchild

	replies, err := comments.ListReplies(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, child.ID, replies[0].ID)
	assert.Equal(t, "token", replies[0].User.Username)

	require.Len(t, replies[0].Replies, 1)
	assert.Equal(t, grandchild.ID, replies[0].Replies[0].ID)
	// The third level is not loaded here; it is fetched on demand.
	assert.Empty(t, replies[0].Replies[0].Replies)
}

func TestCommentRepository_Delete_RemovesSubtreeAndVotes(t *testing.T) {
	db := newTestDB(t)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "butters")
	base := time.Now().Add(-time.Hour)

	root := seedComment(t, db, user.ID, nil, base, "root")
	child := seedComment(t, db, user.ID, &root.ID, base.Add(time.Minute), "child")
	grandchild := seedComment(t, db, user.ID, &child.ID, base.Add(2*time.Minute), "grandchild")
	sibling := seedComment(t, db, user.ID, nil, base.Add(3*time.Minute), "unrelated")

	likeComment(t, db, user.ID, grandchild.ID)

	require.NoError(t, comments.Delete(ctx, root.ID))

	var commentCount, voteCount int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&commentCount).Error)
	require.NoError(t, db.Model(&models.Vote{}).Count(&voteCount).Error)
	assert.EqualValues(t, 1, commentCount, "only the unrelated comment survives")
	assert.EqualValues(t, 0, voteCount, "votes on the subtree go with it")

	var survivor models.Comment
	require.NoError(t, db.First(&survivor).Error)
	assert.Equal(t, sibling.ID, survivor.ID)
}

func TestCommentRepository_Delete_MissingComment(t *testing.T) {
	db := newTestDB(t)
	comments := NewCommentRepository(db)

	err := comments.Delete(context.Background(), 424242)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestCommentRepository_GetByID_CarriesVoteCounts(t *testing.T) {
	db := newTestDB(t)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	author := seedUser(t, db, "timmy")
	comment := seedComment(t, db, author.ID, nil, time.Now(), "timmeh")
	likeComment(t, db, author.ID, comment.ID)
	hater := seedUser(t, db, "grump")
	require.NoError(t, db.Create(&models.Vote{UserID: hater.ID, CommentID: comment.ID, Type: models.VoteDislike}).Error)

	got, err := comments.GetByID(ctx, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LikesCount)
	assert.Equal(t, 1, got.DislikesCount)
	assert.Equal(t, "timmy", got.User.Username)
	assert.Len(t, got.Votes, 2)
}
