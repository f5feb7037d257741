package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/site"
)

// SiteServiceInterface はサイト設定ハンドラーが必要とするサービスインターフェース。
type SiteServiceInterface interface {
	Show(ctx context.Context, actor *model.User) (*model.Site, error)
	Create(ctx context.Context, actor *model.User, in site.Input) (*model.Site, error)
	Update(ctx context.Context, actor *model.User, in site.Input) (*model.Site, error)
}

// SiteHandler はサイト設定のHTTPハンドラー。
type SiteHandler struct {
	service SiteServiceInterface
}

// NewSiteHandler はSiteHandlerを生成する。
func NewSiteHandler(service SiteServiceInterface) *SiteHandler {
	return &SiteHandler{service: service}
}

type siteRequest struct {
	Title           string `json:"title"`
	RootPageContent string `json:"root_page_content"`
	RootPostID      string `json:"root_post_id"`
}

type siteResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	RootPageContent string `json:"root_page_content"`
	RootPostID      string `json:"root_post_id,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toSiteResponse(s *model.Site) siteResponse {
	return siteResponse{
		ID:              s.ID,
		Title:           s.Title,
		RootPageContent: string(s.RootPageContent),
		RootPostID:      s.RootPostID,
		CreatedAt:       s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Show はサイト設定を返す。
// GET {mount}/dashboard/site
func (h *SiteHandler) Show(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Show(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSiteResponse(s))
}

// Create はサイトの初期設定を行う。
// POST {mount}/dashboard/site
func (h *SiteHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeSiteInput(w, r)
	if !ok {
		return
	}
	s, err := h.service.Create(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSiteResponse(s))
}

// Update はサイト設定を更新する。
// PATCH {mount}/dashboard/site
func (h *SiteHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeSiteInput(w, r)
	if !ok {
		return
	}
	s, err := h.service.Update(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSiteResponse(s))
}

func decodeSiteInput(w http.ResponseWriter, r *http.Request) (site.Input, bool) {
	var req siteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return site.Input{}, false
	}
	return site.Input{
		Title:           req.Title,
		RootPageContent: model.RootPageContent(req.RootPageContent),
		RootPostID:      req.RootPostID,
	}, true
}
