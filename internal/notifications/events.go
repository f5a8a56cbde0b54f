// Package notifications fans comment activity out to connected clients
// through Redis pub/sub and WebSockets.
package notifications

import (
	"fmt"
	"time"

	"tegridy/internal/models"
)

const (
	EventCommentCreated = "comment.created"
	EventCommentDeleted = "comment.deleted"
	EventVoteChanged    = "comment.vote"
)

// CommentEvent is the wire payload broadcast when a thread changes. Clients
// watching an episode or character page subscribe to that target's channel.
type CommentEvent struct {
	Event      string            `json:"event"`
	TargetKind models.TargetKind `json:"target_kind"`
	TargetID   uint              `json:"target_id"`
	CommentID  uint              `json:"comment_id"`
	ParentID   *uint             `json:"parent_id,omitempty"`
	Likes      int64             `json:"likes"`
	Dislikes   int64             `json:"dislikes"`
	At         time.Time         `json:"at"`
}

// Channel returns the pub/sub channel for the event's target.
func (e CommentEvent) Channel() string {
	return TargetChannel(e.TargetKind, e.TargetID)
}

// TargetChannel names the pub/sub channel carrying events for one target.
func TargetChannel(kind models.TargetKind, targetID uint) string {
	return fmt.Sprintf("comments:%s:%d", kind, targetID)
}
