package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/xswarm-forum/internal/service"
)

// CommentHandler serves the comment forest one level at a time.
type CommentHandler struct {
	svc    *service.CommentService
	logger *slog.Logger
}

func NewCommentHandler(svc *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{svc: svc, logger: logger}
}

type createCommentRequest struct {
	PostID   string  `json:"post_id"`
	ParentID *string `json:"parent_id"`
	Body     string  `json:"body"`
}

// HandleCreate adds a root comment or a reply.
//
// HTTP: POST /api/comments {post_id, parent_id?, body}
//
// A parent_id that is missing or belongs to another post is rejected with
// 400 invalid_parent.
func (h *CommentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	comment, err := h.svc.Add(r.Context(), actorID(r), req.PostID, req.ParentID, req.Body)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, comment)
}

// HandleList returns the direct children of ?parent_id, or the post's root
// comments when it is absent. Each comment carries reply_count so the
// client knows whether to offer "show replies".
//
// HTTP: GET /api/comments/{postId}?parent_id=
func (h *CommentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var parentID *string
	if p := r.URL.Query().Get("parent_id"); p != "" {
		parentID = &p
	}

	comments, err := h.svc.ListChildren(r.Context(), r.PathValue("postId"), parentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, comments)
}
