package service

import (
	"time"

	"tegridy/internal/models"
)

// maxAssembleDepth bounds how deep a single response nests replies. Anything
// deeper stays behind HasMoreReplies and is fetched on demand.
const maxAssembleDepth = 8

// UserView is the author projection embedded in comment payloads.
type UserView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// CommentNode is one comment as rendered to a client: derived vote tallies,
// the viewer's own vote, and nested replies up to the assembly depth.
type CommentNode struct {
	ID             uint              `json:"id"`
	TargetKind     models.TargetKind `json:"target_kind"`
	TargetID       uint              `json:"target_id"`
	ParentID       *uint             `json:"parent_id,omitempty"`
	Content        string            `json:"content"`
	User           UserView          `json:"user"`
	CreatedAt      time.Time         `json:"created_at"`
	Likes          int               `json:"likes"`
	Dislikes       int               `json:"dislikes"`
	UserVote       models.VoteType   `json:"user_vote"`
	Replies        []*CommentNode    `json:"replies"`
	HasMoreReplies bool              `json:"has_more_replies"`
}

// buildNode projects a single comment row. Tallies come from the loaded vote
// rows so nested replies, which skip the derived-count columns, agree with
// their parents.
func buildNode(c *models.Comment, currentUserID uint) *CommentNode {
	node := &CommentNode{
		ID:         c.ID,
		TargetKind: c.TargetKind,
		TargetID:   c.TargetID,
		ParentID:   c.ParentID,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
		UserVote:   models.VoteNone,
		Replies:    []*CommentNode{},
		User: UserView{
			ID:       c.User.ID,
			Username: c.User.Username,
			Avatar:   c.User.Avatar,
		},
	}
	for _, v := range c.Votes {
		switch v.Type {
		case models.VoteLike:
			node.Likes++
		case models.VoteDislike:
			node.Dislikes++
		}
		if currentUserID != 0 && v.UserID == currentUserID {
			node.UserVote = v.Type
		}
	}
	return node
}

// assembleForest turns a flat, oldest-first comment slice into nested trees.
// A reply is always younger than its parent, so parents are materialized
// before their children. Roots come back newest first; replies stay oldest
// first. Subtrees below maxAssembleDepth are left unexpanded.
func assembleForest(flat []*models.Comment, currentUserID uint) []*CommentNode {
	nodes := make(map[uint]*CommentNode, len(flat))
	depth := make(map[uint]int, len(flat))
	var roots []*CommentNode

	for _, c := range flat {
		node := buildNode(c, currentUserID)

		if c.ParentID == nil {
			nodes[c.ID] = node
			depth[c.ID] = 0
			roots = append(roots, node)
			continue
		}

		parent, ok := nodes[*c.ParentID]
		if !ok {
			// Parent was pruned below the depth bound; this subtree is
			// reachable through its ancestor's HasMoreReplies flag.
			continue
		}
		d := depth[*c.ParentID] + 1
		if d > maxAssembleDepth {
			parent.HasMoreReplies = true
			continue
		}
		nodes[c.ID] = node
		depth[c.ID] = d
		parent.Replies = append(parent.Replies, node)
	}

	// Newest threads first.
	for i, j := 0, len(roots)-1; i < j; i, j = i+1, j-1 {
		roots[i], roots[j] = roots[j], roots[i]
	}
	if roots == nil {
		roots = []*CommentNode{}
	}
	return roots
}
