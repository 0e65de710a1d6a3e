package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/xswarm-forum/internal/service"
)

// VoteHandler writes to the vote ledgers and reports the recomputed score.
type VoteHandler struct {
	svc    *service.VoteService
	logger *slog.Logger
}

func NewVoteHandler(svc *service.VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{svc: svc, logger: logger}
}

type voteRequest struct {
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id"`
	Value     int    `json:"value"`
}

// HandleVotePost casts or flips a vote on a post.
//
// HTTP: POST /api/vote {post_id, value} → {success, score}
func (h *VoteHandler) HandleVotePost(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.CastPostVote(r.Context(), actorID(r), req.PostID, req.Value)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true, Score: &res.Score})
}

// HandleVoteComment is HandleVotePost for comments.
//
// HTTP: POST /api/voteComment {comment_id, value} → {success, score}
func (h *VoteHandler) HandleVoteComment(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.CastCommentVote(r.Context(), actorID(r), req.CommentID, req.Value)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true, Score: &res.Score})
}
