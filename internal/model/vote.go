package model

import "fmt"

// TargetKind says which ledger a vote belongs to.
type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

// Vote values. Retracting a vote (value 0) is not supported: a voter can
// only flip between up and down.
const (
	Upvote   = 1
	Downvote = -1
)

// Vote is a ledger row: one voter's current stance on one target.
// There is exactly one row per (VoterID, Kind, TargetID).
type Vote struct {
	VoterID  string     `json:"voter_id"`
	Kind     TargetKind `json:"kind"`
	TargetID string     `json:"target_id"`
	Value    int        `json:"value"`
}

// ValidVoteValue reports whether v may be stored in the ledger.
func ValidVoteValue(v int) bool {
	return v == Upvote || v == Downvote
}

func (k TargetKind) Valid() bool {
	return k == TargetPost || k == TargetComment
}

func (k TargetKind) String() string {
	return string(k)
}

// VoteResult is returned after a ledger write: the target's freshly
// recomputed score.
type VoteResult struct {
	Kind     TargetKind `json:"kind"`
	TargetID string     `json:"target_id"`
	Value    int        `json:"value"`
	Score    int        `json:"score"`
}

func (r VoteResult) String() string {
	return fmt.Sprintf("%s %s score=%d", r.Kind, r.TargetID, r.Score)
}
