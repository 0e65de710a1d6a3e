package model

import "time"

// Post is a top-level forum submission.
//
// Score is a cache of the vote ledger (SUM of post_votes.value). It is
// rewritten in the same transaction as every ledger write, so it never
// drifts; the ledger remains the source of truth.
//
// Username and Pfp are joined from the author's row on read and are not
// stored on the post.
type Post struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Community    string    `json:"community,omitempty"`
	Score        int       `json:"score"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`

	Username string `json:"username"`
	Pfp      string `json:"pfp"`
}
