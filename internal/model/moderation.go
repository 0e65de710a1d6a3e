package model

// TerminationResult summarises what a soft-termination removed.
type TerminationResult struct {
	Username        string `json:"username"`
	PostsDeleted    int    `json:"posts_deleted"`
	CommentsDeleted int    `json:"comments_deleted"`
	VotesRemoved    int    `json:"votes_removed"`

	// RescoredPosts and RescoredComments name the surviving targets whose
	// score was recomputed after the user's votes were removed.
	RescoredPosts    []string `json:"rescored_posts"`
	RescoredComments []string `json:"rescored_comments"`
}

// DeleteResult reports the rows removed by a moderator delete. For a comment,
// CommentsDeleted includes the whole reply subtree.
type DeleteResult struct {
	ID              string `json:"id"`
	CommentsDeleted int    `json:"comments_deleted"`
}
