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

// PostService handles the flat half of the content tree and user profiles.
type PostService struct {
	posts  repository.PostRepository
	users  repository.UserRepository
	events EventPublisher
	logger *slog.Logger
}

func NewPostService(posts repository.PostRepository, users repository.UserRepository, events EventPublisher, logger *slog.Logger) *PostService {
	return &PostService{
		posts:  posts,
		users:  users,
		events: publisherOrNoop(events),
		logger: logger,
	}
}

// Create validates and stores a post by actorID, then announces it.
func (s *PostService) Create(ctx context.Context, actorID, title, body, community string) (*model.Post, error) {
	author, err := requireActiveUser(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	community = strings.TrimSpace(community)

	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title", fmt.Sprintf("title must be %d characters or fewer", MaxTitleLength))
	}
	if utf8.RuneCountInString(body) > MaxPostBodyLength {
		return nil, apperror.ValidationFailed("body", fmt.Sprintf("body must be %d characters or fewer", MaxPostBodyLength))
	}
	if utf8.RuneCountInString(community) > MaxCommunityLength {
		return nil, apperror.ValidationFailed("community", fmt.Sprintf("community must be %d characters or fewer", MaxCommunityLength))
	}

	post := &model.Post{
		UserID:    author.ID,
		Title:     title,
		Body:      body,
		Community: community,
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("service/post: creating post: %w", err)
	}
	post.Username = author.Username
	post.Pfp = author.Pfp

	s.logger.Info("post created",
		slog.String("postID", post.ID),
		slog.String("userID", author.ID),
	)
	s.events.Publish(model.NewEvent(model.EventNewPost, post))

	return post, nil
}

// List returns posts newest first. limit == 0 means every post.
func (s *PostService) List(ctx context.Context, community string, limit, offset int) ([]model.Post, error) {
	if limit < 0 {
		return nil, apperror.ValidationFailed("limit", "limit must not be negative")
	}
	if offset < 0 {
		return nil, apperror.ValidationFailed("offset", "offset must not be negative")
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	posts, err := s.posts.ListPosts(ctx, repository.PostFilter{
		Community:   strings.TrimSpace(community),
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts: %w", err)
	}
	return posts, nil
}

func (s *PostService) Get(ctx context.Context, id string) (*model.Post, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "post id is required")
	}
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/post: getting post %s: %w", id, err)
	}
	return post, nil
}

// Profile returns a user's public page. A terminated account is shown as a
// tombstone: no name, no picture, no posts.
func (s *PostService) Profile(ctx context.Context, username string) (*model.Profile, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("service/post: loading profile %q: %w", username, err)
	}
	if user.Terminated {
		return model.Tombstone(), nil
	}

	posts, err := s.posts.ListPostsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts of %q: %w", username, err)
	}

	return &model.Profile{
		Username: user.Username,
		Pfp:      user.Pfp,
		Posts:    posts,
	}, nil
}
