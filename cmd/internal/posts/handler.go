package posts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	authapi "tribune/cmd/internal/auth/api"
)

// Store is the persistence surface the post endpoints need. It is
// implemented by PostgresStore.
type Store interface {
	CreatePost(ctx context.Context, in CreatePostInput) (Post, error)
	ListPosts(ctx context.Context, page, limit int) ([]Post, error)
	ListPostsByOwner(ctx context.Context, ownerID string) ([]Post, error)
	DeletePost(ctx context.Context, postID, callerID string) error
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

type createPostRequest struct {
	Title    string  `json:"title"`
	Body     string  `json:"body"`
	Category *string `json:"category"`
	Language *string `json:"language"`
	State    *string `json:"state"`
}

type postResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  *string   `json:"category"`
	Language  *string   `json:"language"`
	State     *string   `json:"state"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

// Handler wires post CRUD endpoints to the store.
type Handler struct {
	log          *slog.Logger
	store        Store
	maxBodyBytes int64
}

// NewHandler constructs a posts Handler.
func NewHandler(log *slog.Logger, store Store, maxBodyBytes int64) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("posts: nil store")
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{log: log, store: store, maxBodyBytes: maxBodyBytes}, nil
}

// Register wires post routes onto the provided mux. Creation, ownership
// listing and deletion require authentication; the public listing does not.
func (h *Handler) Register(mux *http.ServeMux, auth *authapi.Authenticator) {
	if h == nil || mux == nil || auth == nil {
		return
	}
	mux.Handle("POST /posts", auth.Require(http.HandlerFunc(h.handleCreate)))
	mux.HandleFunc("GET /posts", h.handleList)
	mux.Handle("GET /my-posts", auth.Require(http.HandlerFunc(h.handleListMine)))
	mux.Handle("DELETE /posts/{id}", auth.Require(http.HandlerFunc(h.handleDelete)))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	acct, ok := authapi.AccountFromContext(r.Context())
	if !ok {
		authapi.WriteError(w, http.StatusUnauthorized, "invalid_auth", "Invalid authentication credentials")
		return
	}

	var req createPostRequest
	if err := authapi.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		authapi.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	p, err := h.store.CreatePost(r.Context(), CreatePostInput{
		Title:    req.Title,
		Body:     req.Body,
		Category: trimPtr(req.Category),
		Language: trimPtr(req.Language),
		State:    trimPtr(req.State),
		OwnerID:  acct.ID,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			authapi.WriteError(w, http.StatusBadRequest, "invalid_request", "title and body are required")
		case errors.Is(err, ErrNotFound):
			authapi.WriteError(w, http.StatusUnauthorized, "invalid_auth", "Invalid authentication credentials")
		default:
			h.log.Error("posts.create.fail", "err", err)
			authapi.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	authapi.WriteJSON(w, http.StatusCreated, toPostResponse(p))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	list, err := h.store.ListPosts(r.Context(), page, limit)
	if err != nil {
		h.log.Error("posts.list.fail", "err", err)
		authapi.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	authapi.WriteJSON(w, http.StatusOK, toPostResponses(list))
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	acct, ok := authapi.AccountFromContext(r.Context())
	if !ok {
		authapi.WriteError(w, http.StatusUnauthorized, "invalid_auth", "Invalid authentication credentials")
		return
	}

	list, err := h.store.ListPostsByOwner(r.Context(), acct.ID)
	if err != nil {
		h.log.Error("posts.list_mine.fail", "err", err)
		authapi.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	authapi.WriteJSON(w, http.StatusOK, toPostResponses(list))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	acct, ok := authapi.AccountFromContext(r.Context())
	if !ok {
		authapi.WriteError(w, http.StatusUnauthorized, "invalid_auth", "Invalid authentication credentials")
		return
	}

	postID := strings.TrimSpace(r.PathValue("id"))
	if postID == "" {
		authapi.WriteError(w, http.StatusNotFound, "not_found", "Post not found")
		return
	}

	err := h.store.DeletePost(r.Context(), postID, acct.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			authapi.WriteError(w, http.StatusNotFound, "not_found", "Post not found")
		case errors.Is(err, ErrNotOwner):
			authapi.WriteError(w, http.StatusForbidden, "forbidden", "Not authorized to delete this post")
		default:
			h.log.Error("posts.delete.fail", "err", err)
			authapi.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	authapi.WriteJSON(w, http.StatusOK, detailResponse{Detail: "Post deleted successfully"})
}

// ---- helpers ----

func toPostResponse(p Post) postResponse {
	return postResponse{
		ID:        p.ID,
		Title:     p.Title,
		Body:      p.Body,
		Category:  p.Category,
		Language:  p.Language,
		State:     p.State,
		UserID:    p.OwnerID,
		CreatedAt: p.CreatedAt,
	}
}

func toPostResponses(list []Post) []postResponse {
	out := make([]postResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPostResponse(p))
	}
	return out
}

func queryInt(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
