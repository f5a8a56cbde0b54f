package cache

import (
	"context"
	"fmt"
	"time"

	"tegridy/internal/models"
)

const (
	UserKeyPrefix      = "user:%d"
	EpisodeKeyPrefix   = "episode:%s"
	CharacterKeyPrefix = "character:%s"
	// First page of top-level comments per target, per sort order.
	CommentsPagePrefix = "comments:%s:%d:%s"
)

const (
	UserTTL         = 5 * time.Minute
	EpisodeTTL      = 30 * time.Minute
	CharacterTTL    = 30 * time.Minute
	CommentsPageTTL = 1 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func EpisodeKey(slug string) string {
	return fmt.Sprintf(EpisodeKeyPrefix, slug)
}

func CharacterKey(slug string) string {
	return fmt.Sprintf(CharacterKeyPrefix, slug)
}

func CommentsPageKey(kind models.TargetKind, targetID uint, sort string) string {
	return fmt.Sprintf(CommentsPagePrefix, kind, targetID, sort)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

// InvalidateCommentsPages drops every cached first page for a target. Both
// sort orders are cached independently so both keys go.
func InvalidateCommentsPages(ctx context.Context, kind models.TargetKind, targetID uint) {
	Invalidate(ctx, CommentsPageKey(kind, targetID, "top"))
	Invalidate(ctx, CommentsPageKey(kind, targetID, "newest"))
}
