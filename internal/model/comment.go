package model

import "time"

// Comment is one node in a post's comment forest.
//
// ParentID is nil for root comments. When set, it always points at a comment
// in the same post; the store rejects cross-post parents.
//
// ReplyCount is the number of direct children, so a client can render a
// "show N replies" control and fetch the next level lazily.
type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	UserID     string    `json:"user_id"`
	ParentID   *string   `json:"parent_id"`
	Body       string    `json:"body"`
	Score      int       `json:"score"`
	ReplyCount int       `json:"reply_count"`
	CreatedAt  time.Time `json:"created_at"`

	Username string `json:"username"`
	Pfp      string `json:"pfp"`
}
