package handler

import (
	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/media"
	"github.com/hitoshi/storytime/internal/metrics"
	"github.com/hitoshi/storytime/internal/post"
	"github.com/hitoshi/storytime/internal/site"
	"github.com/hitoshi/storytime/internal/subscription"
)

// ドメインサービスはハンドラーのインターフェースをそのまま満たすため、アダプタは不要。
var (
	_ PostServiceInterface         = (*post.Service)(nil)
	_ SiteServiceInterface         = (*site.Service)(nil)
	_ MediaServiceInterface        = (*media.Service)(nil)
	_ SubscriptionServiceInterface = (*subscription.Service)(nil)
	_ config.SiteFinder            = (*site.Service)(nil)
	_ UploadRecorder               = (*metrics.Collector)(nil)
)
