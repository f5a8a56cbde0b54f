package models

import "time"

// TargetKind discriminates which entity a comment thread hangs off.
type TargetKind string

const (
	// TargetEpisode marks comments attached to an episode page.
	TargetEpisode TargetKind = "episode"
	// TargetCharacter marks comments attached to a character page.
	TargetCharacter TargetKind = "character"
)

// Valid reports whether k is a known target kind.
func (k TargetKind) Valid() bool {
	return k == TargetEpisode || k == TargetCharacter
}

// MaxCommentLen is the maximum accepted comment length in characters.
const MaxCommentLen = 1000

// Comment is a threaded comment on an episode or character. Content is
// immutable after creation; comments are hard-deleted so the ParentID
// and Vote constraints can cascade and no reply outlives its parent.
type Comment struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TargetKind TargetKind `gorm:"type:varchar(16);not null;index:idx_comment_target" json:"target_kind"`
	TargetID   uint       `gorm:"not null;index:idx_comment_target" json:"target_id"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	User       User       `gorm:"foreignKey:UserID" json:"user"`
	ParentID   *uint      `gorm:"index" json:"parent_id,omitempty"`
	Replies    []Comment  `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"replies,omitempty"`
	Votes      []Vote     `gorm:"foreignKey:CommentID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`

	// LikesCount is not persisted; computed at query time
	LikesCount int `gorm:"->" json:"likes_count"`
	// DislikesCount is not persisted; computed at query time
	DislikesCount int `gorm:"->" json:"dislikes_count"`
}
