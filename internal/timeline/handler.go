package timeline

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wirelessr/twitter-timeline-facade/internal/shared/httpx"
)

type Handler struct{ engine *Engine }

func NewHandler(e *Engine) *Handler { return &Handler{engine: e} }

type createPostRequest struct {
	PostID    string          `json:"post_id"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type fanoutFailure struct {
	FollowerID string `json:"follower_id"`
	Error      string `json:"error"`
}

// Protected: publish a post as the current user.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	req, err := httpx.Decode[createPostRequest](r)
	if err != nil {
		return err
	}
	if req.PostID == "" {
		req.PostID = uuid.NewString()
	}
	report, err := h.engine.Post(r.Context(), Post{
		ID:        req.PostID,
		AuthorID:  uid,
		Meta:      req.Meta,
		CreatedAt: req.CreatedAt,
	})
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, map[string]any{
		"post_id": req.PostID,
		"written": len(report.Results) - len(report.Failed()),
		"failed":  failures(report),
	}, http.StatusCreated)
	return nil
}

// Protected: delete one of the current user's posts wherever it landed.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	postID := r.PathValue("post_id")
	report, err := h.engine.DeletePost(r.Context(), uid, postID)
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, map[string]any{
		"post_id": postID,
		"failed":  failures(report),
	}, http.StatusOK)
	return nil
}

// Protected: assembled home timeline of the current user.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	items, err := h.engine.Retrieve(r.Context(), uid)
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, map[string]any{"items": items}, http.StatusOK)
	return nil
}

// Public: a user's own authored feed, oldest first.
func (h *Handler) GetAuthorFeed(w http.ResponseWriter, r *http.Request) error {
	uid := r.PathValue("user_id")
	items, err := h.engine.AuthorFeed(r.Context(), uid)
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, map[string]any{"items": items}, http.StatusOK)
	return nil
}

func failures(report *FanoutReport) []fanoutFailure {
	out := make([]fanoutFailure, 0)
	for _, f := range report.Failed() {
		out = append(out, fanoutFailure{FollowerID: f.FollowerID, Error: f.Err.Error()})
	}
	return out
}
