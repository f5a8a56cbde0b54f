package models

import "time"

// VoteType is the reaction a user left on a comment.
type VoteType string

const (
	VoteLike    VoteType = "like"
	VoteDislike VoteType = "dislike"
	// VoteNone is never stored; it reports "no vote" after a toggle-off.
	VoteNone VoteType = "none"
)

// Valid reports whether t is a castable vote type.
func (t VoteType) Valid() bool {
	return t == VoteLike || t == VoteDislike
}

// Vote is a user's reaction to a comment. The unique (user, comment)
// index is what enforces like/dislike mutual exclusion: Type is updated
// in place, never keyed on.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_vote_user_comment" json:"user_id"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_vote_user_comment" json:"comment_id"`
	Type      VoteType  `gorm:"type:varchar(8);not null" json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
