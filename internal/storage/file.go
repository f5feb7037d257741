package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore はローカルディレクトリにファイルを保存する。
// 公開は静的ファイル配信（BaseURL配下）に任せる。
type FileStore struct {
	dir     string
	baseURL string
}

// NewFileStore はdir配下に保存するFileStoreを返す。ディレクトリがなければ作成する。
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file storage directory is not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// resolve はkeyをdir配下の絶対パスに変換する。dirの外を指すkeyは拒否する。
func (s *FileStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

// Put はファイルを書き込む。書き込み途中で失敗した場合は部分ファイルを残さない。
func (s *FileStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	dst, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close object: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move object into place: %w", err)
	}
	return nil
}

// Delete はファイルを削除する。
func (s *FileStore) Delete(_ context.Context, key string) error {
	dst, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// URL はBaseURL配下の公開URLを返す。
func (s *FileStore) URL(key string) string {
	return s.baseURL + path.Clean("/"+key)
}

// compile-time interface check
var _ Store = (*FileStore)(nil)
