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

var _ repository.VoteLedger = (*DB)(nil)

// ledgerTable describes where one kind of vote lives. Table and column names
// come only from this fixed map, never from request input, so building SQL
// with Sprintf below is safe.
type ledgerTable struct {
	votes   string // ledger table
	column  string // ledger column holding the target id
	targets string // table carrying the cached score
}

var ledgers = map[model.TargetKind]ledgerTable{
	model.TargetPost:    {votes: "post_votes", column: "post_id", targets: "posts"},
	model.TargetComment: {votes: "comment_votes", column: "comment_id", targets: "comments"},
}

func ledgerFor(kind model.TargetKind) (ledgerTable, error) {
	l, ok := ledgers[kind]
	if !ok {
		return ledgerTable{}, apperror.ValidationFailed("kind", fmt.Sprintf("unknown vote target %q", kind))
	}
	return l, nil
}

// CastVote writes one voter's stance on a target and refreshes the target's score.
//
// THE WHOLE SEQUENCE IS ONE TRANSACTION:
//  0. the voter must not be terminated (ErrTerminated)
//  1. the target must exist (NotFound otherwise, so no dangling ledger rows)
//  2. UPSERT the (voter, target) row: a repeat vote overwrites, never appends
//  3. score = SUM(value) over the target's ledger rows
//  4. write that sum into the target's score column
//
// Because step 3 is a full recompute rather than score += delta, the cached
// score can never drift from the ledger. withTx's write mutex stops two voters
// from interleaving steps 2–4 and losing an update.
func (db *DB) CastVote(ctx context.Context, vote model.Vote) (*model.VoteResult, error) {
	if !model.ValidVoteValue(vote.Value) {
		return nil, apperror.ValidationFailed("value", "vote value must be 1 or -1")
	}
	l, err := ledgerFor(vote.Kind)
	if err != nil {
		return nil, err
	}

	result := &model.VoteResult{Kind: vote.Kind, TargetID: vote.TargetID, Value: vote.Value}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireActiveAuthor(ctx, tx, vote.VoterID); err != nil {
			return err
		}

		var exists int
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, l.targets), vote.TargetID,
		).Scan(&exists)
		if err == sql.ErrNoRows {
			return apperror.NotFound(vote.Kind.String(), vote.TargetID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: checking %s %s: %w", vote.Kind, vote.TargetID, err)
		}

		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %[1]s (user_id, %[2]s, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (user_id, %[2]s) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			l.votes, l.column),
			vote.VoterID, vote.TargetID, vote.Value, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: recording %s vote: %w", vote.Kind, err)
		}

		score, err := recomputeScore(ctx, tx, l, vote.TargetID)
		if err != nil {
			return err
		}
		result.Score = score
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// recomputeScore sets the target's cached score to the exact sum of its
// ledger rows and returns it. Must run inside the write transaction.
func recomputeScore(ctx context.Context, tx *sql.Tx, l ledgerTable, targetID string) (int, error) {
	var score int
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(SUM(value), 0) FROM %s WHERE %s = ?`, l.votes, l.column),
		targetID,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("sqlite: summing votes for %s: %w", targetID, err)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET score = ? WHERE id = ?`, l.targets),
		score, targetID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: updating score for %s: %w", targetID, err)
	}
	return score, nil
}

// GetVote returns the voter's current stance on a target,
// or apperror.ErrNotFound if they never voted on it.
func (db *DB) GetVote(ctx context.Context, voterID string, kind model.TargetKind, targetID string) (*model.Vote, error) {
	l, err := ledgerFor(kind)
	if err != nil {
		return nil, err
	}

	v := model.Vote{VoterID: voterID, Kind: kind, TargetID: targetID}
	err = db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE user_id = ? AND %s = ?`, l.votes, l.column),
		voterID, targetID,
	).Scan(&v.Value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("vote", voterID+"/"+targetID)
		}
		return nil, fmt.Errorf("sqlite: getting vote: %w", err)
	}
	return &v, nil
}

// CountVotes returns the number of ledger rows for a target.
func (db *DB) CountVotes(ctx context.Context, kind model.TargetKind, targetID string) (int, error) {
	l, err := ledgerFor(kind)
	if err != nil {
		return 0, err
	}

	var n int
	err = db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, l.votes, l.column),
		targetID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting votes: %w", err)
	}
	return n, nil
}
