package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/metrics"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/policy"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Settings *config.Settings

	// ミドルウェア依存
	ActorResolver     middleware.ActorResolver
	Authorizer        policy.Authorizer
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	HSTS              bool

	// 省略可。nilならメトリクスを収集しない
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	// 省略可。/healthz でDB疎通を確認する
	HealthCheck func(ctx context.Context) error

	// ローカル保存のメディアを配信する場合に設定する
	MediaDir     string
	MediaBaseURL string

	Sites               config.SiteFinder
	PostService         PostServiceInterface
	SiteService         SiteServiceInterface
	MediaService        MediaServiceInterface
	SubscriptionService SubscriptionServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Actor → Logging → Metrics → SecurityHeaders → CORS
//
// ダッシュボード（{mount}/dashboard/*）はさらに RequireActor → CSRF → RateLimit(General) を通る。
// 購読登録は RateLimit(Subscribe) を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewActorMiddleware(deps.ActorResolver))
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/healthz", healthzHandler(deps.HealthCheck))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	if deps.MediaDir != "" && strings.HasPrefix(deps.MediaBaseURL, "/") {
		prefix := strings.TrimSuffix(deps.MediaBaseURL, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(deps.MediaDir))))
	}

	mount := strings.TrimSuffix(deps.Settings.DashboardNamespacePath, "/")
	if mount == "" {
		mountEngine(r, deps)
	} else {
		r.Route(mount, func(r chi.Router) { mountEngine(r, deps) })
	}

	return r
}

// mountEngine はマウントポイント配下の公開ルートとダッシュボードを登録する。
func mountEngine(r chi.Router, deps *RouterDeps) {
	s := deps.Settings

	homeHandler := NewHomeHandler(s, deps.Sites, deps.PostService)
	postHandler := NewPostHandler(deps.PostService)
	siteHandler := NewSiteHandler(deps.SiteService)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	settingsHandler := NewSettingsHandler(s, deps.Authorizer)

	var recorder UploadRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	mediaHandler := NewMediaHandler(deps.MediaService, recorder, s.DashboardPath("posts"))

	// --- 公開ルート ---
	r.Get(s.HomePagePath, homeHandler.Show)
	r.Get("/posts", postHandler.Index)
	r.Get("/posts/{slug}", postHandler.Show)
	r.Get("/search", postHandler.Search)
	r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	r.Route("/subscriptions", func(r chi.Router) {
		r.With(deps.RateLimiter.SubscribeMiddleware()).Post("/", subHandler.Subscribe)
		r.Get("/unsubscribe", subHandler.Unsubscribe)
		r.Post("/unsubscribe", subHandler.Unsubscribe)
	})

	// --- ダッシュボード ---
	r.Route("/dashboard", func(r chi.Router) {
		r.Use(middleware.NewRequireActorMiddleware(s.LoginPath))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/settings", settingsHandler.Show)

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.DashboardIndex)
			r.Post("/", postHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.DashboardShow)
				r.Patch("/", postHandler.Update)
				r.Put("/", postHandler.Update)
				r.Post("/publish", postHandler.Publish)
				r.Post("/unpublish", postHandler.Unpublish)
			})
		})

		r.Route("/site", func(r chi.Router) {
			r.Get("/", siteHandler.Show)
			r.Post("/", siteHandler.Create)
			r.Patch("/", siteHandler.Update)
		})

		r.Route("/media", func(r chi.Router) {
			r.Get("/", mediaHandler.Index)
			r.Post("/", mediaHandler.Create)
			r.Delete("/{id}", mediaHandler.Destroy)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", subHandler.ListSubscriptions)
			r.Delete("/{id}", subHandler.Destroy)
		})
	})
}

func healthzHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.ErrorContext(r.Context(), "health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
