package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/model"
	"github.com/sakif/xswarm-forum/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, password_hash, pfp, github_id, is_moderator, terminated, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows, so one scan helper
// serves single-row and multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *model.User) error {
	var githubID sql.NullInt64
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Pfp,
		&githubID,
		&u.IsModerator,
		&u.Terminated,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return nil
}

// CreateUser inserts a new account.
//
// The username UNIQUE constraint is the final arbiter of "username taken": the
// service checks first for a friendlier error, but two concurrent signups can
// both pass that check, and only one INSERT wins. The loser gets ErrConflict.
// A second account for an already linked GitHub ID is also ErrConflict, with
// Field "github_id".
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	var githubID any
	if user.GitHubID != nil {
		githubID = *user.GitHubID
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, pfp, github_id, is_moderator, terminated, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Pfp,
		githubID,
		user.IsModerator,
		user.Terminated,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if column, ok := uniqueViolation(err); ok {
			if column == "users.github_id" {
				return apperror.Conflict("github_id", "GitHub account already linked")
			}
			return apperror.Conflict("username", "username taken")
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	), &u)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return &u, nil
}

// GetUserByUsername looks up an account by its (unique) username.
// Terminated accounts are returned too; callers decide what that means.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username,
	), &u)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return &u, nil
}

// GetUserByGitHubID finds the account linked to a GitHub identity.
func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	var u model.User
	err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID,
	), &u)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", "github:"+strconv.FormatInt(githubID, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user by github_id %d: %w", githubID, err)
	}
	return &u, nil
}

// SetModerator grants or revokes the moderator role.
func (db *DB) SetModerator(ctx context.Context, username string, isModerator bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_moderator = ?, updated_at = ? WHERE username = ?`,
		isModerator, time.Now().UTC(), username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting moderator flag on %q: %w", username, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", username)
	}
	return nil
}
