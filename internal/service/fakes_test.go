package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/model"
	"github.com/sakif/xswarm-forum/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================

// fakeStore is an in-memory repository.Store. It keeps just enough behaviour
// (unique usernames, parent checks, ledger sums, cascades) for the service
// rules to be exercised; the real SQL is covered by the sqlite package tests.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	users    map[string]*model.User
	posts    map[string]*model.Post
	comments map[string]*model.Comment
	votes    map[ledgerKey]int

	// set to a non-nil error to simulate a database failure
	failWith error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*model.User),
		posts:    make(map[string]*model.Post),
		comments: make(map[string]*model.Comment),
		votes:    make(map[ledgerKey]int),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

type ledgerKey struct {
	kind   model.TargetKind
	voter  string
	target string
}

// ---- users ----

func (f *fakeStore) CreateUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	for _, u := range f.users {
		if u.Username == user.Username {
			return apperror.Conflict("username", "username taken")
		}
		if user.GitHubID != nil && u.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			return apperror.Conflict("github_id", "GitHub account already linked")
		}
	}
	user.ID = f.id("user")
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, u := range f.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (f *fakeStore) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.GitHubID != nil && *u.GitHubID == githubID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", fmt.Sprint(githubID))
}

func (f *fakeStore) SetModerator(ctx context.Context, username string, isModerator bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			u.IsModerator = isModerator
			return nil
		}
	}
	return apperror.NotFound("user", username)
}

// ---- posts ----

func (f *fakeStore) CreatePost(ctx context.Context, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	post.ID = f.id("post")
	post.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Millisecond)
	copied := *post
	f.posts[post.ID] = &copied
	return nil
}

func (f *fakeStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", id)
	}
	copied := *p
	return &copied, nil
}

func (f *fakeStore) ListPosts(ctx context.Context, filter repository.PostFilter) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([]model.Post, 0)
	for _, p := range f.posts {
		if filter.Community == "" || p.Community == filter.Community {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > len(out) {
		return []model.Post{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeStore) ListPostsByUser(ctx context.Context, userID string) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Post, 0)
	for _, p := range f.posts {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ---- comments ----

func (f *fakeStore) CreateComment(ctx context.Context, c *model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[c.PostID]; !ok {
		return apperror.NotFound("post", c.PostID)
	}
	if c.ParentID != nil {
		parent, ok := f.comments[*c.ParentID]
		if !ok || parent.PostID != c.PostID {
			return apperror.InvalidParent(*c.ParentID, c.PostID)
		}
	}
	c.ID = f.id("comment")
	c.CreatedAt = time.Now()
	copied := *c
	f.comments[c.ID] = &copied
	return nil
}

func (f *fakeStore) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", id)
	}
	copied := *c
	return &copied, nil
}

func (f *fakeStore) ListComments(ctx context.Context, postID string, parentID *string) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Comment, 0)
	for _, c := range f.comments {
		if c.PostID != postID {
			continue
		}
		if (parentID == nil && c.ParentID == nil) || (parentID != nil && c.ParentID != nil && *c.ParentID == *parentID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

// ---- ledger ----

func (f *fakeStore) CastVote(ctx context.Context, v model.Vote) (*model.VoteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v.Kind {
	case model.TargetPost:
		if _, ok := f.posts[v.TargetID]; !ok {
			return nil, apperror.NotFound("post", v.TargetID)
		}
	case model.TargetComment:
		if _, ok := f.comments[v.TargetID]; !ok {
			return nil, apperror.NotFound("comment", v.TargetID)
		}
	}
	f.votes[ledgerKey{v.Kind, v.VoterID, v.TargetID}] = v.Value
	score := f.sumLocked(v.Kind, v.TargetID)
	if v.Kind == model.TargetPost {
		f.posts[v.TargetID].Score = score
	} else {
		f.comments[v.TargetID].Score = score
	}
	return &model.VoteResult{Kind: v.Kind, TargetID: v.TargetID, Value: v.Value, Score: score}, nil
}

func (f *fakeStore) sumLocked(kind model.TargetKind, target string) int {
	sum := 0
	for k, val := range f.votes {
		if k.kind == kind && k.target == target {
			sum += val
		}
	}
	return sum
}

func (f *fakeStore) GetVote(ctx context.Context, voterID string, kind model.TargetKind, targetID string) (*model.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.votes[ledgerKey{kind, voterID, targetID}]
	if !ok {
		return nil, apperror.NotFound("vote", voterID+"/"+targetID)
	}
	return &model.Vote{VoterID: voterID, Kind: kind, TargetID: targetID, Value: val}, nil
}

func (f *fakeStore) CountVotes(ctx context.Context, kind model.TargetKind, targetID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.votes {
		if k.kind == kind && k.target == targetID {
			n++
		}
	}
	return n, nil
}

// ---- moderation ----

func (f *fakeStore) DeletePost(ctx context.Context, id string) (*model.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[id]; !ok {
		return nil, apperror.NotFound("post", id)
	}
	delete(f.posts, id)
	n := 0
	for cid, c := range f.comments {
		if c.PostID == id {
			delete(f.comments, cid)
			n++
		}
	}
	return &model.DeleteResult{ID: id, CommentsDeleted: n}, nil
}

func (f *fakeStore) DeleteComment(ctx context.Context, id string) (*model.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[id]; !ok {
		return nil, apperror.NotFound("comment", id)
	}
	n := f.deleteSubtreeLocked(id)
	return &model.DeleteResult{ID: id, CommentsDeleted: n}, nil
}

func (f *fakeStore) deleteSubtreeLocked(id string) int {
	n := 1
	delete(f.comments, id)
	for cid, c := range f.comments {
		if c.ParentID != nil && *c.ParentID == id {
			n += f.deleteSubtreeLocked(cid)
		}
	}
	return n
}

func (f *fakeStore) TerminateUser(ctx context.Context, username string) (*model.TerminationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var user *model.User
	for _, u := range f.users {
		if u.Username == username {
			user = u
		}
	}
	if user == nil {
		return nil, apperror.NotFound("user", username)
	}
	user.Terminated = true
	res := &model.TerminationResult{Username: username}
	for id, p := range f.posts {
		if p.UserID == user.ID {
			delete(f.posts, id)
			res.PostsDeleted++
		}
	}
	touched := map[ledgerKey]bool{}
	for k := range f.votes {
		if k.voter == user.ID {
			delete(f.votes, k)
			res.VotesRemoved++
			touched[ledgerKey{kind: k.kind, target: k.target}] = true
		}
	}
	for k := range touched {
		score := f.sumLocked(k.kind, k.target)
		if p, ok := f.posts[k.target]; ok && k.kind == model.TargetPost {
			p.Score = score
			res.RescoredPosts = append(res.RescoredPosts, k.target)
		}
		if c, ok := f.comments[k.target]; ok && k.kind == model.TargetComment {
			c.Score = score
			res.RescoredComments = append(res.RescoredComments, k.target)
		}
	}
	return res, nil
}

// =========================================================================
// RECORDING PUBLISHER
// =========================================================================

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(e model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) last() model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// seedUser inserts a user directly into the fake, bypassing signup rules.
func seedUser(f *fakeStore, username string, moderator bool) *model.User {
	u := &model.User{Username: username, IsModerator: moderator, Pfp: "https://img/" + username}
	if err := f.CreateUser(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

func seedPost(f *fakeStore, author *model.User, title string) *model.Post {
	p := &model.Post{UserID: author.ID, Title: title}
	if err := f.CreatePost(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}
