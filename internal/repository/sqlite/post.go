package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/model"
	"github.com/sakif/xswarm-forum/internal/repository"
)

var _ repository.PostRepository = (*DB)(nil)

// postSelect joins each post with its author and counts its comments in ONE
// query. Listing the front page is the hot path: no N+1 lookups per post.
const postSelect = `
	SELECT p.id, p.user_id, p.title, p.body, p.community, p.score,
	       (SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id),
	       p.created_at, u.username, u.pfp
	FROM posts p
	JOIN users u ON u.id = p.user_id`

func scanPost(row rowScanner, p *model.Post) error {
	return row.Scan(
		&p.ID, &p.UserID, &p.Title, &p.Body, &p.Community, &p.Score,
		&p.CommentCount, &p.CreatedAt, &p.Username, &p.Pfp,
	)
}

// CreatePost inserts a post with a zero score. The caller's struct receives the
// generated ID and timestamp; author display fields are filled in by the service.
// A terminated author gets apperror.ErrTerminated and nothing is written.
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	post.ID = xid.New().String()
	post.CreatedAt = time.Now().UTC()
	post.Score = 0

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireActiveAuthor(ctx, tx, post.UserID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO posts (id, user_id, title, body, community, score, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?)`,
			post.ID,
			post.UserID,
			post.Title,
			post.Body,
			post.Community,
			post.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating post: %w", err)
		}
		return nil
	})
}

// GetPost retrieves a single post with author data and current score.
func (db *DB) GetPost(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	err := scanPost(db.conn.QueryRowContext(ctx, postSelect+` WHERE p.id = ?`, id), &p)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %s: %w", id, err)
	}
	return &p, nil
}

// ListPosts returns posts newest first.
//
// Ties on created_at fall back to id DESC; xids sort by creation time, so the
// order stays stable even for posts created within the same instant.
//
// LIMIT -1 is SQLite's "no limit", used when filter.Limit <= 0.
func (db *DB) ListPosts(ctx context.Context, filter repository.PostFilter) ([]model.Post, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := postSelect
	args := make([]any, 0, 3)
	if filter.Community != "" {
		query += ` WHERE p.community = ?`
		args = append(args, filter.Community)
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return db.queryPosts(ctx, query, args...)
}

// ListPostsByUser returns one author's posts, newest first (profile page).
func (db *DB) ListPostsByUser(ctx context.Context, userID string) ([]model.Post, error) {
	return db.queryPosts(ctx,
		postSelect+` WHERE p.user_id = ? ORDER BY p.created_at DESC, p.id DESC`,
		userID,
	)
}

func (db *DB) queryPosts(ctx context.Context, query string, args ...any) ([]model.Post, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	for rows.Next() {
		var p model.Post
		if err := scanPost(rows, &p); err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	return posts, nil
}
