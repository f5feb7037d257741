package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioAPI はMinioStoreが使うMinIOクライアントの操作。
type minioAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioStore はS3互換のMinIOにファイルを保存する。
type MinioStore struct {
	client   minioAPI
	bucket   string
	endpoint string
	secure   bool
}

// normaliseEndpoint は "minio:9000" と "http(s)://minio:9000" のどちらも受け付ける。
// スキーマ省略時はローカル用途としてHTTPを使う。
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, errors.New("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, errors.New("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	return raw, false, nil
}

// NewMinioStore はMinIOクライアントを生成し、バケットの存在を確認する。
func NewMinioStore(ctx context.Context, rawEndpoint, accessKey, secretKey, bucket string) (*MinioStore, error) {
	if accessKey == "" || secretKey == "" || bucket == "" {
		return nil, errors.New("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid minio endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check minio bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("minio bucket does not exist: %s", bucket)
	}

	return newMinioStoreWithClient(client, bucket, endpoint, secure), nil
}

func newMinioStoreWithClient(client minioAPI, bucket, endpoint string, secure bool) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, endpoint: endpoint, secure: secure}
}

// Put はオブジェクトをアップロードする。
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put minio object: %w", err)
	}
	return nil
}

// Delete はオブジェクトを削除する。
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete minio object: %w", err)
	}
	return nil
}

// URL はパス形式の公開URLを返す。
func (s *MinioStore) URL(key string) string {
	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, key)
}

// compile-time interface check
var _ Store = (*MinioStore)(nil)
