package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/service"
)

// PostHandler serves posts and public profiles.
type PostHandler struct {
	svc    *service.PostService
	logger *slog.Logger
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(svc *service.PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{svc: svc, logger: logger}
}

type createPostRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Community string `json:"community"`
}

// HandleCreate creates a post as the logged-in user.
//
// HTTP: POST /api/posts {title, body, community?}
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	post, err := h.svc.Create(r.Context(), actorID(r), req.Title, req.Body, req.Community)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// HandleList returns posts newest first.
//
// HTTP: GET /api/posts?community=&limit=&offset=
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	posts, err := h.svc.List(r.Context(), q.Get("community"), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, posts)
}

// HandleGet returns one post.
//
// HTTP: GET /api/posts/{id}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// HandleProfile returns a user's public profile, or a tombstone for a
// terminated account.
//
// HTTP: GET /api/user/{username}
func (h *PostHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.svc.Profile(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// queryInt parses an optional non-negative integer query parameter.
// Missing means 0.
func queryInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
