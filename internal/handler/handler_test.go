package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/xswarm-forum/internal/auth"
	"github.com/sakif/xswarm-forum/internal/handler"
	"github.com/sakif/xswarm-forum/internal/model"
	sqliteRepo "github.com/sakif/xswarm-forum/internal/repository/sqlite"
	"github.com/sakif/xswarm-forum/internal/service"
)

// testAPI wires the real services over an in-memory database so the
// handlers are tested against actual storage behaviour.
type testAPI struct {
	db     *sqliteRepo.DB
	tokens *auth.TokenService
	events *eventLog

	auth       *handler.AuthHandler
	posts      *handler.PostHandler
	comments   *handler.CommentHandler
	votes      *handler.VoteHandler
	moderation *handler.ModerationHandler
	health     *handler.HealthHandler
}

// eventLog records published realtime events.
type eventLog struct{ events []model.Event }

func (l *eventLog) Publish(e model.Event) { l.events = append(l.events, e) }

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16", 0)
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)
	events := &eventLog{}

	authSvc := service.NewAuthService(db, tokens, passwords, "mod", logger)
	return &testAPI{
		db:         db,
		tokens:     tokens,
		events:     events,
		auth:       handler.NewAuthHandler(authSvc, tokens, nil, logger),
		posts:      handler.NewPostHandler(service.NewPostService(db, db, events, logger), logger),
		comments:   handler.NewCommentHandler(service.NewCommentService(db, db, events, logger), logger),
		votes:      handler.NewVoteHandler(service.NewVoteService(db, db, db, db, events, logger), logger),
		moderation: handler.NewModerationHandler(service.NewModerationService(db, db, db, db, events, logger), logger),
		health:     handler.NewHealthHandler(db, logger),
	}
}

// signup registers a user through the handler and returns its ID.
func (a *testAPI) signup(t *testing.T, username string) string {
	t.Helper()
	rr := a.do(a.auth.HandleSignup, http.MethodPost, "/api/signup", "",
		map[string]string{"username": username, "password": "hunter22"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		User model.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body.User.ID
}

// do calls h with an optional JSON body, acting as userID ("" = anonymous).
func (a *testAPI) do(h http.HandlerFunc, method, target, userID string, body any, pathValues ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	if userID != "" {
		req = req.WithContext(auth.WithUserID(context.Background(), userID))
	}

	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}
