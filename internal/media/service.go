// Package media はダッシュボードのメディア（アップロードファイル）管理を提供する。
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/policy"
	"github.com/hitoshi/storytime/internal/repository"
	"github.com/hitoshi/storytime/internal/storage"
)

// PerPage はギャラリーの1ページあたりの件数。
const PerPage = 9

// Upload はアップロードされたファイル1件。Fileがnilならファイル未指定として扱う。
type Upload struct {
	File        io.Reader
	FileName    string
	ContentType string
	Size        int64
}

// Service はメディア管理のサービス層。
type Service struct {
	repo       repository.MediaRepository
	store      storage.Store
	settings   *config.Settings
	authorizer policy.Authorizer
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.MediaRepository,
	store storage.Store,
	settings *config.Settings,
	authorizer policy.Authorizer,
) *Service {
	return &Service{
		repo:       repo,
		store:      store,
		settings:   settings,
		authorizer: authorizer,
		logger:     slog.Default(),
	}
}

// UploadsEnabled はファイルアップロードが有効かを返す。
func (s *Service) UploadsEnabled() bool {
	return s.settings.EnableFileUpload
}

// Create はファイルを保存し、メディアレコードを作成する。
// レコードの作成に失敗した場合は保存済みのオブジェクトを削除する。
func (s *Service) Create(ctx context.Context, actor *model.User, up Upload) (*model.Media, error) {
	if !s.UploadsEnabled() {
		return nil, model.NewUploadsDisabledError()
	}
	if err := s.authorizer.Authorize(actor, policy.ActionCreate, policy.Target{Resource: policy.ResourceMedia}); err != nil {
		return nil, err
	}

	fileName := cleanFileName(up.FileName)
	if up.File == nil || fileName == "" {
		return nil, model.NewValidationError(map[string][]string{"file": {model.MsgBlank}})
	}

	body := up.File
	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType, body = detectContentType(fileName, up.File)
	}

	m := &model.Media{
		ID:          uuid.New().String(),
		FileName:    fileName,
		ContentType: contentType,
		Size:        up.Size,
		UserID:      actor.ID,
		CreatedAt:   time.Now(),
	}
	m.FileKey = "media/" + m.ID + "/" + fileName

	if err := s.store.Put(ctx, m.FileKey, body, up.Size, contentType); err != nil {
		return nil, fmt.Errorf("ファイルの保存に失敗しました: %w", err)
	}

	if err := s.repo.Create(ctx, m); err != nil {
		if delErr := s.store.Delete(ctx, m.FileKey); delErr != nil {
			s.logger.ErrorContext(ctx, "保存済みファイルの削除に失敗しました",
				slog.String("file_key", m.FileKey),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("メディアの作成に失敗しました: %w", err)
	}

	m.URL = s.store.URL(m.FileKey)
	s.logger.InfoContext(ctx, "メディアをアップロードしました",
		slog.String("media_id", m.ID),
		slog.String("user_id", actor.ID),
		slog.Int64("size", m.Size),
	)
	return m, nil
}

// Destroy はメディアレコードとファイルを削除する。
// ファイルの削除失敗はログに記録するのみでエラーにしない。
func (s *Service) Destroy(ctx context.Context, actor *model.User, id string) error {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	if m == nil {
		return model.NewMediaNotFoundError(id)
	}

	if err := s.authorizer.Authorize(actor, policy.ActionDestroy, policy.Target{Resource: policy.ResourceMedia, OwnerID: m.UserID}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("メディアの削除に失敗しました: %w", err)
	}

	if err := s.store.Delete(ctx, m.FileKey); err != nil {
		s.logger.WarnContext(ctx, "ファイルの削除に失敗しました",
			slog.String("media_id", id),
			slog.String("file_key", m.FileKey),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "メディアを削除しました", slog.String("media_id", id))
	return nil
}

// List はメディアを新しい順に1ページ分返す。
func (s *Service) List(ctx context.Context, actor *model.User, page int) ([]*model.Media, model.Pagination, error) {
	pg := model.NewPagination(page, PerPage)

	if err := s.authorizer.Authorize(actor, policy.ActionIndex, policy.Target{Resource: policy.ResourceMedia}); err != nil {
		return nil, pg, err
	}

	items, err := s.repo.List(ctx, pg.PerPage, pg.Offset())
	if err != nil {
		return nil, pg, fmt.Errorf("メディア一覧の取得に失敗しました: %w", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, pg, fmt.Errorf("メディア数の取得に失敗しました: %w", err)
	}
	pg.Total = total

	for _, m := range items {
		m.URL = s.store.URL(m.FileKey)
	}
	return items, pg, nil
}

// cleanFileName はクライアントが送ったファイル名からディレクトリ部分を除き、
// 空白を "_" に置き換える。
func cleanFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Join(strings.Fields(name), "_")
}

// detectContentType は拡張子、なければ先頭512バイトから種別を推定する。
// 読み出した先頭部分を戻した Reader も返す。
func detectContentType(fileName string, r io.Reader) (string, io.Reader) {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct, r
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(r, head)
	head = head[:n]
	return http.DetectContentType(head), io.MultiReader(bytes.NewReader(head), r)
}
