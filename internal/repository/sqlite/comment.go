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

var _ repository.CommentRepository = (*DB)(nil)

const commentSelect = `
	SELECT c.id, c.post_id, c.user_id, c.parent_id, c.body, c.score,
	       (SELECT COUNT(*) FROM comments r WHERE r.parent_id = c.id),
	       c.created_at, u.username, u.pfp
	FROM comments c
	JOIN users u ON u.id = c.user_id`

func scanComment(row rowScanner, c *model.Comment) error {
	var parentID sql.NullString
	if err := row.Scan(
		&c.ID, &c.PostID, &c.UserID, &parentID, &c.Body, &c.Score,
		&c.ReplyCount, &c.CreatedAt, &c.Username, &c.Pfp,
	); err != nil {
		return err
	}
	if parentID.Valid {
		p := parentID.String
		c.ParentID = &p
	}
	return nil
}

// CreateComment inserts a comment into its post's forest.
//
// TREE INTEGRITY:
// The parent check and the INSERT run in the same write transaction. Checking
// first and inserting later on a separate connection would let a moderator
// delete the parent in between, leaving a reply pointing at nothing.
//
// Errors:
//   - apperror.ErrNotFound if the post does not exist
//   - apperror.ErrInvalidParent if parent_id is missing or lives in another post
//   - apperror.ErrTerminated if the author was banned
func (db *DB) CreateComment(ctx context.Context, comment *model.Comment) error {
	comment.ID = xid.New().String()
	comment.CreatedAt = time.Now().UTC()
	comment.Score = 0
	comment.ReplyCount = 0

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireActiveAuthor(ctx, tx, comment.UserID); err != nil {
			return err
		}

		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, comment.PostID).Scan(&exists)
		if err == sql.ErrNoRows {
			return apperror.NotFound("post", comment.PostID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: checking post %s: %w", comment.PostID, err)
		}

		var parentID any
		if comment.ParentID != nil {
			var parentPostID string
			err := tx.QueryRowContext(ctx,
				`SELECT post_id FROM comments WHERE id = ?`, *comment.ParentID,
			).Scan(&parentPostID)
			if err == sql.ErrNoRows || (err == nil && parentPostID != comment.PostID) {
				return apperror.InvalidParent(*comment.ParentID, comment.PostID)
			}
			if err != nil {
				return fmt.Errorf("sqlite: checking parent comment %s: %w", *comment.ParentID, err)
			}
			parentID = *comment.ParentID
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO comments (id, post_id, user_id, parent_id, body, score, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?)`,
			comment.ID,
			comment.PostID,
			comment.UserID,
			parentID,
			comment.Body,
			comment.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating comment: %w", err)
		}
		return nil
	})
}

// GetComment retrieves a single comment with author data and reply count.
func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	err := scanComment(db.conn.QueryRowContext(ctx, commentSelect+` WHERE c.id = ?`, id), &c)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return &c, nil
}

// ListComments returns ONE level of a post's comment forest, oldest first.
//
// parentID == nil → the root comments (parent_id IS NULL)
// parentID != nil → the direct replies to that comment
//
// Clients expand the tree lazily using each comment's ReplyCount. An unknown
// post simply has no comments; it is not an error here.
func (db *DB) ListComments(ctx context.Context, postID string, parentID *string) ([]model.Comment, error) {
	query := commentSelect + ` WHERE c.post_id = ?`
	args := []any{postID}
	if parentID == nil {
		query += ` AND c.parent_id IS NULL`
	} else {
		query += ` AND c.parent_id = ?`
		args = append(args, *parentID)
	}
	query += ` ORDER BY c.created_at ASC, c.id ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments for post %s: %w", postID, err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		var c model.Comment
		if err := scanComment(rows, &c); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}

	return comments, nil
}
