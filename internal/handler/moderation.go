package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/xswarm-forum/internal/service"
)

// ModerationHandler exposes the moderator-only, irreversible actions.
//
// Deletes are reachable two ways: the REST form (DELETE /api/posts/{id})
// and the RPC form the web client posts to (POST /api/mod/deletePost
// with a JSON body). Both run the same service call.
type ModerationHandler struct {
	svc    *service.ModerationService
	logger *slog.Logger
}

func NewModerationHandler(svc *service.ModerationService, logger *slog.Logger) *ModerationHandler {
	return &ModerationHandler{svc: svc, logger: logger}
}

type modDeleteRequest struct {
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id"`
}

// HandleTerminate soft-terminates a user.
//
// HTTP: POST /api/terminate/{username} → 200 {success, data: summary}
func (h *ModerationHandler) HandleTerminate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.TerminateUser(r.Context(), actorID(r), r.PathValue("username"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: res})
}

// HandleDeletePost: DELETE /api/posts/{id}
func (h *ModerationHandler) HandleDeletePost(w http.ResponseWriter, r *http.Request) {
	h.deletePost(w, r, r.PathValue("id"))
}

// HandleModDeletePost: POST /api/mod/deletePost {post_id}
func (h *ModerationHandler) HandleModDeletePost(w http.ResponseWriter, r *http.Request) {
	var req modDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.deletePost(w, r, req.PostID)
}

// HandleDeleteComment: DELETE /api/comments/{id}
func (h *ModerationHandler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	h.deleteComment(w, r, r.PathValue("id"))
}

// HandleModDeleteComment: POST /api/mod/deleteComment {comment_id}
func (h *ModerationHandler) HandleModDeleteComment(w http.ResponseWriter, r *http.Request) {
	var req modDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.deleteComment(w, r, req.CommentID)
}

func (h *ModerationHandler) deletePost(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.svc.DeletePost(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: res})
}

func (h *ModerationHandler) deleteComment(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.svc.DeleteComment(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: res})
}
