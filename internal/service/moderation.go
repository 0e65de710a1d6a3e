package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/model"
	"github.com/sakif/xswarm-forum/internal/repository"
)

// ModerationService runs the moderator-only, irreversible operations.
//
// The moderator is any user with IsModerator set; there is no wider
// permission system. Every other caller gets ErrForbidden.
//
// TERMINATION POLICY:
// Accounts are soft-terminated. The user row stays (terminated = true) so the
// username can never be registered again; their posts, comments and votes are
// removed and affected scores recomputed. There is no hard-delete path.
type ModerationService struct {
	mod      repository.ModerationRepository
	posts    repository.PostRepository
	comments repository.CommentRepository
	users    repository.UserRepository
	events   EventPublisher
	logger   *slog.Logger
}

func NewModerationService(
	mod repository.ModerationRepository,
	posts repository.PostRepository,
	comments repository.CommentRepository,
	users repository.UserRepository,
	events EventPublisher,
	logger *slog.Logger,
) *ModerationService {
	return &ModerationService{
		mod:      mod,
		posts:    posts,
		comments: comments,
		users:    users,
		events:   publisherOrNoop(events),
		logger:   logger,
	}
}

// DeletePost removes a post with all its comments and votes.
func (s *ModerationService) DeletePost(ctx context.Context, actorID, postID string) (*model.DeleteResult, error) {
	moderator, err := s.requireModerator(ctx, actorID, "delete post")
	if err != nil {
		return nil, err
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, apperror.ValidationFailed("post_id", "post_id is required")
	}

	res, err := s.mod.DeletePost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("service/moderation: deleting post %s: %w", postID, err)
	}

	s.logger.Info("post deleted by moderator",
		slog.String("postID", postID),
		slog.String("moderator", moderator.Username),
		slog.Int("comments", res.CommentsDeleted),
	)
	s.events.Publish(model.NewEvent(model.EventDeletePost, res))
	return res, nil
}

// DeleteComment removes a comment and its whole reply subtree.
func (s *ModerationService) DeleteComment(ctx context.Context, actorID, commentID string) (*model.DeleteResult, error) {
	moderator, err := s.requireModerator(ctx, actorID, "delete comment")
	if err != nil {
		return nil, err
	}
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return nil, apperror.ValidationFailed("comment_id", "comment_id is required")
	}

	res, err := s.mod.DeleteComment(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("service/moderation: deleting comment %s: %w", commentID, err)
	}

	s.logger.Info("comment deleted by moderator",
		slog.String("commentID", commentID),
		slog.String("moderator", moderator.Username),
		slog.Int("comments", res.CommentsDeleted),
	)
	s.events.Publish(model.NewEvent(model.EventDeleteComment, res))
	return res, nil
}

// TerminateUser soft-terminates username. A moderator cannot terminate their
// own account. Terminating an already-terminated account succeeds with zero counts.
//
// Clients get userTerminated first, then an updatePost or updateComment for
// every surviving target whose score dropped the user's vote.
func (s *ModerationService) TerminateUser(ctx context.Context, actorID, username string) (*model.TerminationResult, error) {
	moderator, err := s.requireModerator(ctx, actorID, "terminate user")
	if err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if username == moderator.Username {
		return nil, apperror.ValidationFailed("username", "moderators cannot terminate their own account")
	}

	res, err := s.mod.TerminateUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/moderation: terminating %q: %w", username, err)
	}

	s.logger.Info("user terminated",
		slog.String("username", username),
		slog.String("moderator", moderator.Username),
		slog.Int("posts", res.PostsDeleted),
		slog.Int("comments", res.CommentsDeleted),
		slog.Int("votes", res.VotesRemoved),
	)
	s.events.Publish(model.NewEvent(model.EventUserTerminated, model.UsernamePayload{Username: username}))
	s.announceRescored(ctx, res)
	return res, nil
}

// announceRescored reads each re-scored target after the termination
// committed. A failed read only skips that push.
func (s *ModerationService) announceRescored(ctx context.Context, res *model.TerminationResult) {
	for _, id := range res.RescoredPosts {
		post, err := s.posts.GetPost(ctx, id)
		if err != nil {
			s.logger.Warn("skipping realtime update after termination",
				slog.String("postID", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.events.Publish(model.NewEvent(model.EventUpdatePost, post))
	}
	for _, id := range res.RescoredComments {
		comment, err := s.comments.GetComment(ctx, id)
		if err != nil {
			s.logger.Warn("skipping realtime update after termination",
				slog.String("commentID", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.events.Publish(model.NewEvent(model.EventUpdateComment, comment))
	}
}

func (s *ModerationService) requireModerator(ctx context.Context, actorID, action string) (*model.User, error) {
	user, err := requireActiveUser(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if !user.IsModerator {
		s.logger.Warn("moderation denied",
			slog.String("userID", user.ID),
			slog.String("action", action),
		)
		return nil, apperror.Forbidden("moderator only")
	}
	return user, nil
}
