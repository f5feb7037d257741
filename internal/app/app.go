package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/database"
	"github.com/hitoshi/storytime/internal/handler"
	"github.com/hitoshi/storytime/internal/logger"
	"github.com/hitoshi/storytime/internal/mailer"
	"github.com/hitoshi/storytime/internal/media"
	"github.com/hitoshi/storytime/internal/metrics"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/notify"
	"github.com/hitoshi/storytime/internal/policy"
	"github.com/hitoshi/storytime/internal/post"
	"github.com/hitoshi/storytime/internal/repository"
	"github.com/hitoshi/storytime/internal/search"
	"github.com/hitoshi/storytime/internal/site"
	"github.com/hitoshi/storytime/internal/storage"
	"github.com/hitoshi/storytime/internal/subscription"
	"github.com/hitoshi/storytime/internal/user"
	"github.com/hitoshi/storytime/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// configureSettings はSettingsを既定値から構成する。
// pathが空でなければYAMLの設定ファイルを重ね、hookを公開通知フックとして設定する。
func configureSettings(settings *config.Settings, path string, hook config.PublishHook) error {
	var file *config.SettingsFile
	if path != "" {
		f, err := config.LoadSettingsFile(path)
		if err != nil {
			return err
		}
		file = f
	}

	err := settings.Configure(func(s *config.Settings) {
		if file != nil {
			file.Apply(s)
		}
		s.OnPublishWithNotifications = hook
	})
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// openDatabase はメインDBへの接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// openSearchDB は検索アダプタ用の接続を返す。
// SEARCH_DATABASE_URLが未設定ならメインDBを共有する。共有できるのはPostgreSQL方言のアダプタのみ。
// PostgreSQL方言でSEARCH_DATABASE_URLを指定する場合はメインDBのレプリカを指す。
// 戻り値のownedがtrueの場合、呼び出し側が接続を閉じる。
func openSearchDB(cfg *config.Config, adapter search.Adapter, primary *sql.DB) (db *sql.DB, owned bool, err error) {
	if cfg.SearchDatabaseURL == "" {
		if adapter.Driver() != database.DriverPostgres {
			return nil, false, fmt.Errorf("search adapter %q requires SEARCH_DATABASE_URL", adapter.Name())
		}
		return primary, false, nil
	}

	db, err = database.OpenDriver(adapter.Driver(), cfg.SearchDatabaseURL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open search database: %w", err)
	}
	return db, true, nil
}

// openSearchMirror は検索用データベースにpostsテーブルを用意し、メインDBの全記事で作り直す。
func openSearchMirror(ctx context.Context, adapter search.Adapter, searchDB *sql.DB, src search.PostSource) (*search.Mirror, error) {
	mirror, err := search.NewMirror(adapter, searchDB)
	if err != nil {
		return nil, err
	}
	if err := mirror.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if _, err := mirror.Rebuild(ctx, src); err != nil {
		return nil, fmt.Errorf("failed to rebuild search index: %w", err)
	}
	return mirror, nil
}

// newMailer はMAIL_DELIVERYに応じたMailerを返す。
func newMailer(ctx context.Context, cfg *config.Config) (mailer.Mailer, error) {
	switch cfg.MailDelivery {
	case "ses":
		return mailer.NewSESMailer(ctx, cfg.SESRegion, cfg.SESAccessKeyID, cfg.SESSecretAccessKey, slog.Default())
	default:
		return mailer.NewLogMailer(slog.Default()), nil
	}
}

// newRegistry はプロセスとランタイムのメトリクスを含むレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// mountPath はCookieのPathに使うマウントポイントを返す。
func mountPath(settings *config.Settings) string {
	p := strings.TrimSuffix(settings.DashboardNamespacePath, "/")
	if p == "" {
		return "/"
	}
	return p
}

// server はserveモードの依存関係一式。
type server struct {
	cfg      *config.Config
	db       *sql.DB
	searchDB *sql.DB // メインDBと別の接続を開いた場合のみ設定する

	settings    *config.Settings
	registry    *prometheus.Registry
	collector   *metrics.Collector
	rateLimiter *middleware.RateLimiter
	deps        *handler.RouterDeps
}

// newServer は全依存関係をワイヤリングする。
func newServer(ctx context.Context, cfg *config.Config, db *sql.DB) (*server, error) {
	s := &server{cfg: cfg, db: db}

	// 1. メトリクス
	s.registry = newRegistry()
	s.collector = metrics.NewCollector(s.registry)

	// 2. 公開通知とSettings
	subRepo := repository.NewPostgresSubscriptionRepo(db)
	m, err := newMailer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}
	s.settings = config.DefaultSettings()
	notifier := notify.NewPostNotifier(subRepo, m, s.settings, cfg.BaseURL)
	notifier.SetRecorder(s.collector)
	if err := configureSettings(s.settings, cfg.SettingsFile, notifier.Hook()); err != nil {
		return nil, err
	}

	// 3. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	siteRepo := repository.NewPostgresSiteRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	mediaRepo := repository.NewPostgresMediaRepo(db)

	// 4. 検索とメディア保存先
	adapter, err := search.New(s.settings.SearchAdapter)
	if err != nil {
		return nil, err
	}
	searchDB, owned, err := openSearchDB(cfg, adapter, db)
	if err != nil {
		return nil, err
	}
	if owned {
		s.searchDB = searchDB
	}

	store, err := storage.Open(ctx, s.settings.MediaStorage, storage.Options{
		Dir:            cfg.MediaDir,
		BaseURL:        cfg.MediaBaseURL,
		Bucket:         s.settings.S3Bucket,
		Region:         cfg.S3Region,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to open media storage: %w", err)
	}

	// 5. ドメインサービス
	authorizer := policy.NewRolePolicy()
	siteService := site.NewService(siteRepo, postRepo, authorizer)
	postService := post.NewService(postRepo, siteRepo, s.settings, authorizer, adapter, searchDB)
	if adapter.Driver() != database.DriverPostgres {
		mirror, err := openSearchMirror(ctx, adapter, searchDB, postRepo)
		if err != nil {
			s.close()
			return nil, err
		}
		postService.SetIndexer(mirror)
	}
	mediaService := media.NewService(mediaRepo, store, s.settings, authorizer)
	subService := subscription.NewService(subRepo, siteRepo, s.settings, authorizer, cfg.SecretKeyBase)

	// 6. ミドルウェア
	rlCfg := middleware.DefaultRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSubscribe)
	s.rateLimiter = middleware.NewRateLimiter(rlCfg)
	s.rateLimiter.OnLimited = s.collector.RecordRateLimited

	s.deps = &handler.RouterDeps{
		Settings:          s.settings,
		ActorResolver:     middleware.NewSessionActorResolver(sessionRepo, userRepo),
		Authorizer:        authorizer,
		RateLimiter:       s.rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			CookiePath:   mountPath(s.settings),
		},
		HSTS:                cfg.CookieSecure,
		Metrics:             s.collector,
		Gatherer:            s.registry,
		HealthCheck:         db.PingContext,
		Sites:               siteService,
		PostService:         postService,
		SiteService:         siteService,
		MediaService:        mediaService,
		SubscriptionService: subService,
	}
	if s.settings.MediaStorage == config.MediaStorageFile {
		s.deps.MediaDir = cfg.MediaDir
		s.deps.MediaBaseURL = cfg.MediaBaseURL
	}

	return s, nil
}

func (s *server) close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.searchDB != nil {
		s.searchDB.Close()
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := newServer(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer s.close()

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(s.deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("API server starting",
		slog.String("addr", srv.Addr),
		slog.String("mount", mountPath(s.settings)),
		slog.String("search_adapter", string(s.settings.SearchAdapter)),
		slog.String("media_storage", string(s.settings.MediaStorage)),
	)
	if err := serveUntilDone(ctx, srv); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// serveUntilDone はctxがキャンセルされるまでsrvを動かし、その後シャットダウンする。
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...", slog.String("addr", srv.Addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除を SESSION_CLEANUP_INTERVAL ごとに実行する。
// METRICS_PORTが設定されていれば/metricsも公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := newRegistry()
	collector := metrics.NewCollector(registry)

	if cfg.MetricsPort != "" {
		metricsSrv := &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metrics.SetupMetricsRoute(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := serveUntilDone(ctx, metricsSrv); err != nil {
				slog.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	job := cleanup.NewSessionCleanupJob(repository.NewPostgresSessionRepo(db), collector, slog.Default())

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runRollback は直近steps件のマイグレーションを取り消す。
func runRollback(cfg *config.Config, steps int) error {
	slog.Info("rolling back database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("steps", steps),
	)

	if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	slog.Info("database rollback completed successfully")
	return nil
}

// newUserService は運用コマンド用のuser.Serviceを組み立てる。
// メール形式はSettingsに従う。
func newUserService(cfg *config.Config, db *sql.DB) (*user.Service, error) {
	settings := config.DefaultSettings()
	if err := configureSettings(settings, cfg.SettingsFile, nil); err != nil {
		return nil, err
	}
	return user.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		settings,
	), nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	url := strings.TrimSuffix(baseURL, "/") + "/healthz"
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
