package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/model"
	"github.com/sakif/xswarm-forum/internal/repository"
)

// =========================================================================
// DELETE POST TESTS
// =========================================================================

func TestDeletePost_RemovesFromListImmediately(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	keep := createTestPost(t, db, alice, "keep")
	doomed := createTestPost(t, db, alice, "doomed")
	root := createTestComment(t, db, alice, doomed, nil, "root")
	createTestComment(t, db, alice, doomed, root, "reply")
	castVote(t, db, alice, model.TargetPost, doomed.ID, model.Upvote)
	castVote(t, db, alice, model.TargetComment, root.ID, model.Upvote)

	res, err := db.DeletePost(context.Background(), doomed.ID)
	if err != nil {
		t.Fatalf("DeletePost() error = %v", err)
	}
	if res.CommentsDeleted != 2 {
		t.Errorf("CommentsDeleted = %d, want 2", res.CommentsDeleted)
	}

	posts, _ := db.ListPosts(context.Background(), repository.PostFilter{})
	if len(posts) != 1 || posts[0].ID != keep.ID {
		t.Errorf("ListPosts() after delete = %v, want only %q", posts, keep.ID)
	}

	if _, err := db.GetComment(context.Background(), root.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("comment survived post delete: err = %v", err)
	}
	if n, _ := db.CountVotes(context.Background(), model.TargetPost, doomed.ID); n != 0 {
		t.Errorf("post votes survived post delete: %d rows", n)
	}
	if n, _ := db.CountVotes(context.Background(), model.TargetComment, root.ID); n != 0 {
		t.Errorf("comment votes survived post delete: %d rows", n)
	}
}

func TestDeletePost_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.DeletePost(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeletePost() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// DELETE COMMENT TESTS
// =========================================================================

func TestDeleteComment_CascadesSubtree(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	post := createTestPost(t, db, alice, "Hello")
	root := createTestComment(t, db, alice, post, nil, "root")
	child := createTestComment(t, db, alice, post, root, "child")
	grandchild := createTestComment(t, db, alice, post, child, "grandchild")
	sibling := createTestComment(t, db, alice, post, nil, "sibling")

	res, err := db.DeleteComment(context.Background(), child.ID)
	if err != nil {
		t.Fatalf("DeleteComment() error = %v", err)
	}
	if res.CommentsDeleted != 2 {
		t.Errorf("CommentsDeleted = %d, want 2 (child and grandchild)", res.CommentsDeleted)
	}

	for _, id := range []string{child.ID, grandchild.ID} {
		if _, err := db.GetComment(context.Background(), id); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("comment %s still exists: err = %v", id, err)
		}
	}
	for _, id := range []string{root.ID, sibling.ID} {
		if _, err := db.GetComment(context.Background(), id); err != nil {
			t.Errorf("comment %s should survive: err = %v", id, err)
		}
	}

	r, _ := db.GetComment(context.Background(), root.ID)
	if r.ReplyCount != 0 {
		t.Errorf("root ReplyCount = %d, want 0", r.ReplyCount)
	}
}

func TestDeleteComment_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.DeleteComment(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteComment() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// TERMINATE USER TESTS
// =========================================================================

// TestTerminateUser_SpammerScenario: a moderator terminates "spammer", whose
// three posts disappear from the front page while the account row remains.
func TestTerminateUser_SpammerScenario(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	spammer := createTestUser(t, db, "spammer")
	mine := createTestPost(t, db, alice, "legit")
	for _, title := range []string{"buy", "cheap", "pills"} {
		createTestPost(t, db, spammer, title)
	}

	res, err := db.TerminateUser(context.Background(), "spammer")
	if err != nil {
		t.Fatalf("TerminateUser() error = %v", err)
	}
	if res.PostsDeleted != 3 {
		t.Errorf("PostsDeleted = %d, want 3", res.PostsDeleted)
	}

	posts, _ := db.ListPosts(context.Background(), repository.PostFilter{})
	if len(posts) != 1 || posts[0].ID != mine.ID {
		t.Errorf("ListPosts() = %v, want only alice's post", posts)
	}

	u, err := db.GetUserByUsername(context.Background(), "spammer")
	if err != nil {
		t.Fatalf("terminated account row should remain: %v", err)
	}
	if !u.Terminated {
		t.Error("Terminated = false, want true")
	}
	if u.ID != spammer.ID {
		t.Errorf("ID changed to %q, want %q", u.ID, spammer.ID)
	}

	// The username stays taken at the storage level.
	if err := db.CreateUser(context.Background(), &model.User{Username: "spammer"}); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("re-creating spammer error = %v, want ErrConflict", err)
	}
}

func TestTerminateUser_RemovesCommentsAndVotes(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	spammer := createTestUser(t, db, "spammer")

	post := createTestPost(t, db, alice, "Hello")
	aliceRoot := createTestComment(t, db, alice, post, nil, "alice root")
	spam := createTestComment(t, db, spammer, post, aliceRoot, "spam reply")
	createTestComment(t, db, bob, post, spam, "bob replies to spam")

	castVote(t, db, bob, model.TargetPost, post.ID, model.Upvote)
	castVote(t, db, spammer, model.TargetPost, post.ID, model.Downvote)
	castVote(t, db, spammer, model.TargetComment, aliceRoot.ID, model.Downvote)

	res, err := db.TerminateUser(context.Background(), "spammer")
	if err != nil {
		t.Fatalf("TerminateUser() error = %v", err)
	}
	if res.CommentsDeleted != 2 {
		t.Errorf("CommentsDeleted = %d, want 2 (spam and the reply under it)", res.CommentsDeleted)
	}
	if res.VotesRemoved != 2 {
		t.Errorf("VotesRemoved = %d, want 2", res.VotesRemoved)
	}

	p, _ := db.GetPost(context.Background(), post.ID)
	if p.Score != 1 {
		t.Errorf("post score = %d, want 1 (only bob's vote left)", p.Score)
	}
	c, err := db.GetComment(context.Background(), aliceRoot.ID)
	if err != nil {
		t.Fatalf("alice's comment should survive: %v", err)
	}
	if c.Score != 0 {
		t.Errorf("alice's comment score = %d, want 0", c.Score)
	}
	if c.ReplyCount != 0 {
		t.Errorf("alice's comment ReplyCount = %d, want 0", c.ReplyCount)
	}

	if len(res.RescoredPosts) != 1 || res.RescoredPosts[0] != post.ID {
		t.Errorf("RescoredPosts = %v, want [%s]", res.RescoredPosts, post.ID)
	}
	if len(res.RescoredComments) != 1 || res.RescoredComments[0] != aliceRoot.ID {
		t.Errorf("RescoredComments = %v, want [%s]", res.RescoredComments, aliceRoot.ID)
	}
}

// Targets deleted along with the user are not reported as re-scored.
func TestTerminateUser_RescoredSkipsDeletedTargets(t *testing.T) {
	db := newTestDB(t)
	spammer := createTestUser(t, db, "spammer")
	own := createTestPost(t, db, spammer, "spam")
	castVote(t, db, spammer, model.TargetPost, own.ID, model.Upvote)

	res, err := db.TerminateUser(context.Background(), "spammer")
	if err != nil {
		t.Fatalf("TerminateUser() error = %v", err)
	}
	if res.VotesRemoved != 1 {
		t.Errorf("VotesRemoved = %d, want 1", res.VotesRemoved)
	}
	if len(res.RescoredPosts) != 0 || len(res.RescoredComments) != 0 {
		t.Errorf("rescored = %v / %v, want none", res.RescoredPosts, res.RescoredComments)
	}
}

// =========================================================================
// WRITES BY TERMINATED USERS
// =========================================================================

func TestTerminatedUser_WritesRejected(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	spammer := createTestUser(t, db, "spammer")
	post := createTestPost(t, db, alice, "Hello")
	comment := createTestComment(t, db, alice, post, nil, "hi")

	if _, err := db.TerminateUser(ctx, "spammer"); err != nil {
		t.Fatalf("TerminateUser() error = %v", err)
	}

	writes := []struct {
		name string
		run  func() error
	}{
		{"post", func() error {
			return db.CreatePost(ctx, &model.Post{UserID: spammer.ID, Title: "buy pills"})
		}},
		{"comment", func() error {
			return db.CreateComment(ctx, &model.Comment{PostID: post.ID, UserID: spammer.ID, Body: "spam"})
		}},
		{"post vote", func() error {
			_, err := db.CastVote(ctx, model.Vote{VoterID: spammer.ID, Kind: model.TargetPost, TargetID: post.ID, Value: model.Downvote})
			return err
		}},
		{"comment vote", func() error {
			_, err := db.CastVote(ctx, model.Vote{VoterID: spammer.ID, Kind: model.TargetComment, TargetID: comment.ID, Value: model.Downvote})
			return err
		}},
	}
	for _, w := range writes {
		t.Run(w.name, func(t *testing.T) {
			if err := w.run(); !errors.Is(err, apperror.ErrTerminated) {
				t.Errorf("error = %v, want ErrTerminated", err)
			}
		})
	}

	posts, err := db.ListPostsByUser(ctx, spammer.ID)
	if err != nil {
		t.Fatalf("ListPostsByUser() error = %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("terminated user has %d posts, want 0", len(posts))
	}
	if n, _ := db.CountVotes(ctx, model.TargetPost, post.ID); n != 0 {
		t.Errorf("post has %d votes, want 0", n)
	}
	if n, _ := db.CountVotes(ctx, model.TargetComment, comment.ID); n != 0 {
		t.Errorf("comment has %d votes, want 0", n)
	}
}

// TestTerminateUser_RacingWriterLeavesNothing keeps posting as spammer while
// the termination lands. Every post either existed before (and is removed)
// or is refused afterwards.
func TestTerminateUser_RacingWriterLeavesNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	spammer := createTestUser(t, db, "spammer")

	firstPost := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		for i := 0; i < 100000; i++ {
			err := db.CreatePost(ctx, &model.Post{UserID: spammer.ID, Title: fmt.Sprintf("spam %d", i)})
			if errors.Is(err, apperror.ErrTerminated) {
				done <- nil
				return
			}
			if err != nil {
				done <- err
				return
			}
			if i == 0 {
				close(firstPost)
			}
		}
		done <- errors.New("writer was never refused")
	}()

	select {
	case <-firstPost:
	case err := <-done:
		t.Fatalf("writer stopped before posting: %v", err)
	}
	if _, err := db.TerminateUser(ctx, "spammer"); err != nil {
		t.Fatalf("TerminateUser() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("writer: %v", err)
	}

	posts, err := db.ListPosts(ctx, repository.PostFilter{})
	if err != nil {
		t.Fatalf("ListPosts() error = %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("%d posts by the terminated user survived, first %q", len(posts), posts[0].Title)
	}
}

func TestTerminateUser_Idempotent(t *testing.T) {
	db := newTestDB(t)
	spammer := createTestUser(t, db, "spammer")
	createTestPost(t, db, spammer, "spam")

	if _, err := db.TerminateUser(context.Background(), "spammer"); err != nil {
		t.Fatalf("first TerminateUser() error = %v", err)
	}
	res, err := db.TerminateUser(context.Background(), "spammer")
	if err != nil {
		t.Fatalf("second TerminateUser() error = %v", err)
	}
	if res.PostsDeleted != 0 || res.CommentsDeleted != 0 || res.VotesRemoved != 0 {
		t.Errorf("second TerminateUser() = %+v, want zero counts", res)
	}
}

func TestTerminateUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.TerminateUser(context.Background(), "ghost")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("TerminateUser() error = %v, want ErrNotFound", err)
	}
}
