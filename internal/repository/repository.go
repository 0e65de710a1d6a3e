// Package repository declares the storage contracts the service layer depends on.
//
// Services accept these interfaces, never the concrete sqlite.DB, so service
// tests can run against in-memory fakes and the store can be swapped without
// touching business rules.
package repository

import (
	"context"

	"github.com/sakif/xswarm-forum/internal/model"
)

// ListOptions pages through a result set. Limit <= 0 returns every row.
type ListOptions struct {
	Limit  int
	Offset int
}

// PostFilter narrows ListPosts.
type PostFilter struct {
	Community string // empty means every community
	ListOptions
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	SetModerator(ctx context.Context, username string, isModerator bool) error
}

// PostRepository is the flat half of the content tree store.
type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]model.Post, error)
	ListPostsByUser(ctx context.Context, userID string) ([]model.Post, error)
}

// CommentRepository stores each post's comment forest.
//
// CreateComment must reject a parent that is missing or belongs to another
// post with apperror.ErrInvalidParent, in the same transaction as the insert.
// ListComments returns the direct children of parentID, or the roots when
// parentID is nil.
type CommentRepository interface {
	CreateComment(ctx context.Context, comment *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	ListComments(ctx context.Context, postID string, parentID *string) ([]model.Comment, error)
}

// VoteLedger records one vote per (voter, target) and keeps the target's
// cached score equal to the sum of its ledger rows.
//
// CastVote upserts the row and recomputes the score atomically. It returns
// apperror.ErrNotFound when the target does not exist.
type VoteLedger interface {
	CastVote(ctx context.Context, vote model.Vote) (*model.VoteResult, error)
	GetVote(ctx context.Context, voterID string, kind model.TargetKind, targetID string) (*model.Vote, error)
	CountVotes(ctx context.Context, kind model.TargetKind, targetID string) (int, error)
}

// ModerationRepository performs the cascading, irreversible writes.
type ModerationRepository interface {
	DeletePost(ctx context.Context, id string) (*model.DeleteResult, error)
	DeleteComment(ctx context.Context, id string) (*model.DeleteResult, error)
	TerminateUser(ctx context.Context, username string) (*model.TerminationResult, error)
}

// Store is everything the sqlite package implements. Server wiring uses it;
// individual services only ask for the slice they need.
type Store interface {
	UserRepository
	PostRepository
	CommentRepository
	VoteLedger
	ModerationRepository
}
