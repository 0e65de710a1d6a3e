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

// VoteService casts votes. The ledger upsert and the score recompute happen
// in one repository transaction; this layer adds identity checks and the
// realtime update.
type VoteService struct {
	ledger   repository.VoteLedger
	posts    repository.PostRepository
	comments repository.CommentRepository
	users    repository.UserRepository
	events   EventPublisher
	logger   *slog.Logger
}

func NewVoteService(
	ledger repository.VoteLedger,
	posts repository.PostRepository,
	comments repository.CommentRepository,
	users repository.UserRepository,
	events EventPublisher,
	logger *slog.Logger,
) *VoteService {
	return &VoteService{
		ledger:   ledger,
		posts:    posts,
		comments: comments,
		users:    users,
		events:   publisherOrNoop(events),
		logger:   logger,
	}
}

func (s *VoteService) CastPostVote(ctx context.Context, actorID, postID string, value int) (*model.VoteResult, error) {
	return s.Cast(ctx, actorID, model.TargetPost, postID, value)
}

func (s *VoteService) CastCommentVote(ctx context.Context, actorID, commentID string, value int) (*model.VoteResult, error) {
	return s.Cast(ctx, actorID, model.TargetComment, commentID, value)
}

// Cast records actorID's vote (+1 or -1) on a target and returns the
// target's new score. Voting the same way twice changes nothing; flipping
// moves the score by exactly 2.
func (s *VoteService) Cast(ctx context.Context, actorID string, kind model.TargetKind, targetID string, value int) (*model.VoteResult, error) {
	voter, err := requireActiveUser(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	targetID = strings.TrimSpace(targetID)
	if !kind.Valid() {
		return nil, apperror.ValidationFailed("kind", fmt.Sprintf("unknown vote target %q", kind))
	}
	if targetID == "" {
		return nil, apperror.ValidationFailed(kind.String()+"_id", kind.String()+"_id is required")
	}
	if !model.ValidVoteValue(value) {
		return nil, apperror.ValidationFailed("value", "vote value must be 1 or -1")
	}

	result, err := s.ledger.CastVote(ctx, model.Vote{
		VoterID:  voter.ID,
		Kind:     kind,
		TargetID: targetID,
		Value:    value,
	})
	if err != nil {
		return nil, fmt.Errorf("service/vote: casting vote on %s %s: %w", kind, targetID, err)
	}

	s.logger.Info("vote cast",
		slog.String("userID", voter.ID),
		slog.String("target", result.String()),
		slog.Int("value", value),
	)
	s.announce(ctx, result)

	return result, nil
}

// announce pushes the re-scored entity to realtime clients. It reads the
// entity after the vote committed; a failed read only skips the push.
func (s *VoteService) announce(ctx context.Context, result *model.VoteResult) {
	var (
		event model.Event
		err   error
	)
	switch result.Kind {
	case model.TargetPost:
		var post *model.Post
		if post, err = s.posts.GetPost(ctx, result.TargetID); err == nil {
			event = model.NewEvent(model.EventUpdatePost, post)
		}
	case model.TargetComment:
		var comment *model.Comment
		if comment, err = s.comments.GetComment(ctx, result.TargetID); err == nil {
			event = model.NewEvent(model.EventUpdateComment, comment)
		}
	}
	if err != nil {
		s.logger.Warn("skipping realtime update after vote",
			slog.String("target", result.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.events.Publish(event)
}
