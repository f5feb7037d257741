package handler

import (
	"net/http"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/policy"
)

// SettingsHandler はダッシュボードのフロントエンドにエンジン設定を公開する。
type SettingsHandler struct {
	settings   *config.Settings
	authorizer policy.Authorizer
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(settings *config.Settings, authorizer policy.Authorizer) *SettingsHandler {
	return &SettingsHandler{settings: settings, authorizer: authorizer}
}

type settingsResponse struct {
	DashboardPath             string   `json:"dashboard_path"`
	HomePagePath              string   `json:"home_page_path"`
	LoginPath                 string   `json:"login_path"`
	LogoutPath                string   `json:"logout_path"`
	LogoutMethod              string   `json:"logout_method"`
	EnableFileUpload          bool     `json:"enable_file_upload"`
	PostTitleCharacterLimit   int      `json:"post_title_character_limit"`
	PostExcerptCharacterLimit int      `json:"post_excerpt_character_limit"`
	PostTypes                 []string `json:"post_types"`
	SearchEnabled             bool     `json:"search_enabled"`
	DisqusForumShortname      string   `json:"disqus_forum_shortname,omitempty"`
	DiscourseName             string   `json:"discourse_name,omitempty"`
	Layout                    string   `json:"layout,omitempty"`
	UserClass                 string   `json:"user_class"`
}

// Show はエンジン設定のうちクライアントに必要な値を返す。
// GET {mount}/dashboard/settings
func (h *SettingsHandler) Show(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if err := h.authorizer.Authorize(actor, policy.ActionShow, policy.Target{Resource: policy.ResourceSettings}); err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	s := h.settings
	postTypes := append([]string{"post", "page"}, s.PostTypes...)
	writeJSON(w, http.StatusOK, settingsResponse{
		DashboardPath:             s.DashboardPath(),
		HomePagePath:              s.HomePagePath,
		LoginPath:                 s.LoginPath,
		LogoutPath:                s.LogoutPath,
		LogoutMethod:              s.LogoutMethod,
		EnableFileUpload:          s.EnableFileUpload,
		PostTitleCharacterLimit:   s.PostTitleCharacterLimit,
		PostExcerptCharacterLimit: s.PostExcerptCharacterLimit,
		PostTypes:                 postTypes,
		SearchEnabled:             s.SearchAdapter != config.SearchAdapterNone,
		DisqusForumShortname:      s.DisqusForumShortname,
		DiscourseName:             s.DiscourseName,
		Layout:                    s.Layout,
		UserClass:                 s.UserClassSymbol(),
	})
}
