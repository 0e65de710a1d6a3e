package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/model"
	"github.com/sakif/xswarm-forum/internal/repository"
)

var _ repository.ModerationRepository = (*DB)(nil)

// subtreeCTE selects a comment and every reply beneath it, at any depth.
// The single placeholder is the root comment id.
const subtreeCTE = `
	WITH RECURSIVE subtree(id) AS (
		SELECT id FROM comments WHERE id = ?
		UNION
		SELECT c.id FROM comments c JOIN subtree s ON c.parent_id = s.id
	)`

// DeletePost hard-deletes a post. Its comments and every vote on the post or
// its comments go with it through ON DELETE CASCADE.
func (db *DB) DeletePost(ctx context.Context, id string) (*model.DeleteResult, error) {
	res := &model.DeleteResult{ID: id}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM comments WHERE post_id = ?`, id,
		).Scan(&res.CommentsDeleted); err != nil {
			return fmt.Errorf("sqlite: counting comments of post %s: %w", id, err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting post %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("post", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteComment hard-deletes a comment together with its whole reply subtree,
// so no reply is ever left pointing at a missing parent.
func (db *DB) DeleteComment(ctx context.Context, id string) (*model.DeleteResult, error) {
	res := &model.DeleteResult{ID: id}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			subtreeCTE+` DELETE FROM comments WHERE id IN (SELECT id FROM subtree)`, id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("comment", id)
		}
		res.CommentsDeleted = int(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// TerminateUser soft-terminates an account in one transaction:
//
//  1. set terminated = 1 (the row stays, so the username can never be reused)
//  2. remove the user's votes and recompute every score they touched
//  3. delete the user's posts (their comment trees cascade)
//  4. delete the user's comments elsewhere, each with its reply subtree
//
// The result lists the re-scored posts and comments that still exist, so
// callers can push their new scores.
//
// Running it again on a terminated account is a no-op that reports zero counts.
func (db *DB) TerminateUser(ctx context.Context, username string) (*model.TerminationResult, error) {
	res := &model.TerminationResult{Username: username}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&userID)
		if err == sql.ErrNoRows {
			return apperror.NotFound("user", username)
		}
		if err != nil {
			return fmt.Errorf("sqlite: looking up user %q: %w", username, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET terminated = 1, updated_at = ? WHERE id = ?`,
			time.Now().UTC(), userID,
		); err != nil {
			return fmt.Errorf("sqlite: marking %q terminated: %w", username, err)
		}

		removed, rescored, err := removeVotesBy(ctx, tx, userID)
		if err != nil {
			return err
		}
		res.VotesRemoved = removed

		commentsBefore, err := countRows(ctx, tx, `SELECT COUNT(*) FROM comments`)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("sqlite: deleting posts of %q: %w", username, err)
		}
		posts, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		res.PostsDeleted = int(posts)

		if _, err := tx.ExecContext(ctx, `
			WITH RECURSIVE subtree(id) AS (
				SELECT id FROM comments WHERE user_id = ?
				UNION
				SELECT c.id FROM comments c JOIN subtree s ON c.parent_id = s.id
			)
			DELETE FROM comments WHERE id IN (SELECT id FROM subtree)`, userID,
		); err != nil {
			return fmt.Errorf("sqlite: deleting comments of %q: %w", username, err)
		}

		commentsAfter, err := countRows(ctx, tx, `SELECT COUNT(*) FROM comments`)
		if err != nil {
			return err
		}
		res.CommentsDeleted = commentsBefore - commentsAfter

		if res.RescoredPosts, err = existingIDs(ctx, tx, "posts", rescored[model.TargetPost]); err != nil {
			return err
		}
		if res.RescoredComments, err = existingIDs(ctx, tx, "comments", rescored[model.TargetComment]); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// removeVotesBy deletes every ledger row cast by userID and recomputes the
// score of each target those rows pointed at. It returns the number of rows
// removed and the re-scored target ids per kind.
func removeVotesBy(ctx context.Context, tx *sql.Tx, userID string) (int, map[model.TargetKind][]string, error) {
	total := 0
	rescored := make(map[model.TargetKind][]string)
	for _, kind := range []model.TargetKind{model.TargetPost, model.TargetComment} {
		l := ledgers[kind]

		targets, err := collectIDs(ctx, tx,
			fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = ?`, l.column, l.votes), userID,
		)
		if err != nil {
			return 0, nil, err
		}
		if len(targets) == 0 {
			continue
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, l.votes), userID,
		); err != nil {
			return 0, nil, fmt.Errorf("sqlite: removing %s votes: %w", kind, err)
		}
		total += len(targets)

		for _, id := range targets {
			if _, err := recomputeScore(ctx, tx, l, id); err != nil {
				return 0, nil, err
			}
		}
		rescored[kind] = targets
	}
	return total, rescored, nil
}

// existingIDs keeps the ids that still have a row in table. table is one of
// the fixed names from ledgers, never request input.
func existingIDs(ctx context.Context, tx *sql.Tx, table string, ids []string) ([]string, error) {
	out := []string{}
	for _, id := range ids {
		var one int
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table), id).Scan(&one)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sqlite: checking %s %s: %w", table, id, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// collectIDs drains a single-column query into a slice. The rows are closed
// before returning, so the transaction's connection is free for the next statement.
func collectIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: collecting ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func countRows(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting rows: %w", err)
	}
	return n, nil
}
