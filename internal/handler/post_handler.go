package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/post"
)

// PostServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, actor *model.User, in post.Input) (*model.Post, error)
	Update(ctx context.Context, actor *model.User, id string, in post.Input) (*model.Post, error)
	Publish(ctx context.Context, actor *model.User, id string) (*model.Post, error)
	Unpublish(ctx context.Context, actor *model.User, id string) (*model.Post, error)
	Show(ctx context.Context, slug string) (*model.Post, error)
	ShowByID(ctx context.Context, id string) (*model.Post, error)
	Get(ctx context.Context, actor *model.User, id string) (*model.Post, error)
	ListPublished(ctx context.Context, postType model.PostType, page int) ([]*model.Post, model.Pagination, error)
	ListDashboard(ctx context.Context, actor *model.User, postType model.PostType, page int) ([]*model.Post, model.Pagination, error)
	Search(ctx context.Context, term string, postType model.PostType, page int) ([]*model.Post, model.Pagination, error)
}

// PostHandler は記事・固定ページのHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// postRequest は記事作成・更新リクエストのボディ。
type postRequest struct {
	Type              string `json:"type"`
	Title             string `json:"title"`
	Slug              string `json:"slug"`
	Excerpt           string `json:"excerpt"`
	DraftContent      string `json:"draft_content"`
	NotifySubscribers *bool  `json:"notify_subscribers"`
}

func (req postRequest) input() post.Input {
	return post.Input{
		Type:              model.PostType(req.Type),
		Title:             req.Title,
		Slug:              req.Slug,
		Excerpt:           req.Excerpt,
		DraftContent:      req.DraftContent,
		NotifySubscribers: req.NotifySubscribers,
	}
}

// postResponse は記事のAPIレスポンス。DraftContentはダッシュボードでのみ返す。
type postResponse struct {
	ID                  string  `json:"id"`
	Type                string  `json:"type"`
	Title               string  `json:"title"`
	Slug                string  `json:"slug"`
	Excerpt             string  `json:"excerpt"`
	Content             string  `json:"content"`
	DraftContent        *string `json:"draft_content,omitempty"`
	Published           bool    `json:"published"`
	PublishedAt         *string `json:"published_at"`
	NotifySubscribers   bool    `json:"notify_subscribers"`
	NotificationsSentAt *string `json:"notifications_sent_at,omitempty"`
	UserID              string  `json:"user_id"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

type postListResponse struct {
	Posts      []postResponse     `json:"posts"`
	Pagination paginationResponse `json:"pagination"`
}

func toPostResponse(p *model.Post, dashboard bool) postResponse {
	resp := postResponse{
		ID:                p.ID,
		Type:              string(p.Type),
		Title:             p.Title,
		Slug:              p.Slug,
		Excerpt:           p.Excerpt,
		Content:           p.Content,
		Published:         p.Published,
		PublishedAt:       formatTime(p.PublishedAt),
		NotifySubscribers: p.NotifySubscribers,
		UserID:            p.UserID,
		CreatedAt:         p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if dashboard {
		draft := p.DraftContent
		resp.DraftContent = &draft
		resp.NotificationsSentAt = formatTime(p.NotificationsSentAt)
	}
	return resp
}

func toPostListResponse(posts []*model.Post, pg model.Pagination, dashboard bool) postListResponse {
	resp := postListResponse{
		Posts:      make([]postResponse, 0, len(posts)),
		Pagination: toPaginationResponse(pg),
	}
	for _, p := range posts {
		resp.Posts = append(resp.Posts, toPostResponse(p, dashboard))
	}
	return resp
}

func postTypeParam(r *http.Request, fallback model.PostType) model.PostType {
	if t := r.URL.Query().Get("type"); t != "" {
		return model.PostType(t)
	}
	return fallback
}

// Index は公開済みの記事一覧を返す。
// GET {mount}/posts
func (h *PostHandler) Index(w http.ResponseWriter, r *http.Request) {
	posts, pg, err := h.service.ListPublished(r.Context(), postTypeParam(r, model.PostTypePost), pageParam(r))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostListResponse(posts, pg, false))
}

// Show はスラッグで公開済みの記事を返す。
// GET {mount}/posts/{slug}
func (h *PostHandler) Show(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Show(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p, false))
}

// Search は公開済みの記事を全文検索する。
// GET {mount}/search?q=...&type=...
func (h *PostHandler) Search(w http.ResponseWriter, r *http.Request) {
	posts, pg, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), postTypeParam(r, ""), pageParam(r))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostListResponse(posts, pg, false))
}

// DashboardIndex はダッシュボード向けに下書きを含む記事一覧を返す。
// GET {mount}/dashboard/posts?type=...
func (h *PostHandler) DashboardIndex(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	posts, pg, err := h.service.ListDashboard(r.Context(), actor, postTypeParam(r, ""), pageParam(r))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostListResponse(posts, pg, true))
}

// DashboardShow はダッシュボード向けに記事1件を返す。
// GET {mount}/dashboard/posts/{id}
func (h *PostHandler) DashboardShow(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	p, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p, true))
}

// Create は記事を下書きとして作成する。
// POST {mount}/dashboard/posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	p, err := h.service.Create(r.Context(), actor, req.input())
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(p, true))
}

// Update は記事の下書きを更新する。
// PATCH {mount}/dashboard/posts/{id}
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	p, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), req.input())
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p, true))
}

// Publish は下書きを公開する。
// POST {mount}/dashboard/posts/{id}/publish
func (h *PostHandler) Publish(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	p, err := h.service.Publish(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p, true))
}

// Unpublish は記事を非公開に戻す。
// POST {mount}/dashboard/posts/{id}/unpublish
func (h *PostHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	p, err := h.service.Unpublish(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p, true))
}
