package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/model"
)

// HomeHandler はサイト設定に応じてホームページの表示内容を切り替える。
type HomeHandler struct {
	settings *config.Settings
	sites    config.SiteFinder
	posts    PostServiceInterface
}

// NewHomeHandler はHomeHandlerを生成する。
func NewHomeHandler(settings *config.Settings, sites config.SiteFinder, posts PostServiceInterface) *HomeHandler {
	return &HomeHandler{settings: settings, sites: sites, posts: posts}
}

type setupResponse struct {
	SetupRequired bool   `json:"setup_required"`
	SetupPath     string `json:"setup_path"`
}

// Show はホームページを返す。
// サイト未作成なら初期設定の案内、固定ページ設定ならそのページ、それ以外は記事一覧を返す。
// GET {mount}{home_page_path}
func (h *HomeHandler) Show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts, err := h.settings.HomePageRouteOptions(ctx, h.sites)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	switch opts.To {
	case config.HomeRouteSetup:
		setupPath := h.settings.DashboardPath("site")
		if middleware.WantsHTML(r) {
			http.Redirect(w, r, setupPath, http.StatusFound)
			return
		}
		writeJSON(w, http.StatusOK, setupResponse{SetupRequired: true, SetupPath: setupPath})

	case config.HomeRoutePage:
		p, err := h.rootPage(ctx)
		if err != nil {
			middleware.WriteServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPostResponse(p, false))

	default:
		posts, pg, err := h.posts.ListPublished(ctx, model.PostTypePost, pageParam(r))
		if err != nil {
			middleware.WriteServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPostListResponse(posts, pg, false))
	}
}

func (h *HomeHandler) rootPage(ctx context.Context) (*model.Post, error) {
	site, err := h.sites.FindFirst(ctx)
	if err != nil {
		return nil, err
	}
	if site == nil || site.RootPostID == "" {
		slog.WarnContext(ctx, "root page is not set")
		return nil, model.NewPostNotFoundError("root")
	}
	return h.posts.ShowByID(ctx, site.RootPostID)
}
