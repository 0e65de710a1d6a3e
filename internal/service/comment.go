package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/model"
	"github.com/sakif/xswarm-forum/internal/repository"
)

// CommentService manages each post's comment forest.
//
// Reads follow one contract everywhere: the children of a node, or the roots
// when no parent is given. Clients expand deeper levels on demand using each
// comment's ReplyCount.
type CommentService struct {
	comments repository.CommentRepository
	users    repository.UserRepository
	events   EventPublisher
	logger   *slog.Logger
}

func NewCommentService(comments repository.CommentRepository, users repository.UserRepository, events EventPublisher, logger *slog.Logger) *CommentService {
	return &CommentService{
		comments: comments,
		users:    users,
		events:   publisherOrNoop(events),
		logger:   logger,
	}
}

// Add posts a comment. parentID nil (or pointing at "") makes it a root.
//
// The repository rejects a parent from another post with ErrInvalidParent,
// inside the insert transaction.
func (s *CommentService) Add(ctx context.Context, actorID, postID string, parentID *string, body string) (*model.Comment, error) {
	author, err := requireActiveUser(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	postID = strings.TrimSpace(postID)
	body = strings.TrimSpace(body)
	parentID = normalizeParent(parentID)

	if postID == "" {
		return nil, apperror.ValidationFailed("post_id", "post_id is required")
	}
	if body == "" {
		return nil, apperror.ValidationFailed("body", "comment body is required")
	}
	if utf8.RuneCountInString(body) > MaxCommentLength {
		return nil, apperror.ValidationFailed("body", fmt.Sprintf("comment must be %d characters or fewer", MaxCommentLength))
	}

	comment := &model.Comment{
		PostID:   postID,
		UserID:   author.ID,
		ParentID: parentID,
		Body:     body,
	}
	if err := s.comments.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("service/comment: adding comment to post %s: %w", postID, err)
	}
	comment.Username = author.Username
	comment.Pfp = author.Pfp

	s.logger.Info("comment added",
		slog.String("commentID", comment.ID),
		slog.String("postID", postID),
		slog.Bool("reply", parentID != nil),
	)
	s.events.Publish(model.NewEvent(model.EventNewComment, comment))

	return comment, nil
}

// ListChildren returns the direct children of parentID in postID, or the
// root comments when parentID is nil.
func (s *CommentService) ListChildren(ctx context.Context, postID string, parentID *string) ([]model.Comment, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, apperror.ValidationFailed("post_id", "post_id is required")
	}

	comments, err := s.comments.ListComments(ctx, postID, normalizeParent(parentID))
	if err != nil {
		return nil, fmt.Errorf("service/comment: listing comments of post %s: %w", postID, err)
	}
	return comments, nil
}

func normalizeParent(parentID *string) *string {
	if parentID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*parentID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
