// Package service contains the business rules of the forum.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (rules)    → validates, checks identity and role, publishes events
//	Repository (data)  → reads/writes the database in transactions
//
// Services accept repository INTERFACES, never *sqlite.DB, so the tests in
// this package run against small in-memory fakes.
//
// IDENTITY IS AN ARGUMENT:
// Every write takes the acting user's ID (actorID) explicitly. There is no
// package-level "current user"; the handler reads the ID from the request
// context and passes it in. The service then loads that user, because a
// valid session cookie does not prove the account is still active.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/model"
	"github.com/sakif/xswarm-forum/internal/repository"
)

// Validation limits.
const (
	MinUsernameLength  = 3
	MaxUsernameLength  = 32
	MinPasswordLength  = 6
	MaxTitleLength     = 300
	MaxPostBodyLength  = 40000
	MaxCommunityLength = 50
	MaxCommentLength   = 10000
	MaxListLimit       = 500
)

// EventPublisher is the realtime fanout as the services see it.
//
// Publish is fire-and-forget: it has no error to return, and services call it
// only after the write has committed. A push that never reaches a client does
// not undo anything; clients reconcile by refetching.
type EventPublisher interface {
	Publish(event model.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(model.Event) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// requireActiveUser loads the acting user and rejects anonymous callers,
// stale sessions and terminated accounts.
func requireActiveUser(ctx context.Context, users repository.UserRepository, actorID string) (*model.User, error) {
	if actorID == "" {
		return nil, apperror.Unauthenticated("login required")
	}

	user, err := users.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("session no longer valid")
		}
		return nil, fmt.Errorf("service: loading user %s: %w", actorID, err)
	}
	if user.Terminated {
		return nil, apperror.Terminated(user.Username)
	}

	return user, nil
}
