// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered forum account.
//
// WHY Terminated INSTEAD OF DELETING THE ROW?
// A moderator ban is permanent. Keeping the row (with Terminated = true)
// means the UNIQUE constraint on username keeps blocking re-registration,
// and the signup flow can tell the visitor the account was banned rather
// than reporting a generic "username taken".
//
// PasswordHash is never serialised (json:"-"). GitHubID is nil for accounts
// created with a username and password.
type User struct {
	ID           string    `json:"id"          db:"id"`
	Username     string    `json:"username"    db:"username"`
	PasswordHash string    `json:"-"           db:"password_hash"`
	Pfp          string    `json:"pfp"         db:"pfp"` // display-picture URL (may be empty)
	GitHubID     *int64    `json:"-"           db:"github_id"`
	IsModerator  bool      `json:"isMod"       db:"is_moderator"`
	Terminated   bool      `json:"terminated"  db:"terminated"` // sticky once true
	CreatedAt    time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"   db:"updated_at"`
}

// Profile is the public view of a user returned by GET /api/user/{username}.
type Profile struct {
	Username   string `json:"username"`
	Pfp        string `json:"pfp"`
	Terminated bool   `json:"terminated"`
	Posts      []Post `json:"posts"`
}

// DeletedAccountName replaces the username of a terminated account on its
// public profile.
const DeletedAccountName = "Account Deleted"

// Tombstone returns the profile shown in place of a terminated account.
func Tombstone() *Profile {
	return &Profile{
		Username:   DeletedAccountName,
		Pfp:        "",
		Terminated: true,
		Posts:      []Post{},
	}
}
