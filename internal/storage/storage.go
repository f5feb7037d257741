// Package storage はアップロードファイルの保存先を抽象化する。
// ローカルファイルシステム、AWS S3、S3互換のMinIOを切り替えて使う。
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/hitoshi/storytime/internal/config"
)

// Store はオブジェクトの保存・削除と公開URLの導出を行う。
type Store interface {
	// Put はkeyにrの内容を保存する。sizeが不明な場合は-1を渡す。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Delete はkeyのオブジェクトを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
	// URL はkeyの公開URLを返す。
	URL(key string) string
}

// Options はStoreの生成に必要な接続情報。
type Options struct {
	Dir     string // file
	BaseURL string // file

	Bucket string // s3, minio
	Region string // s3

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
}

// Open は設定された保存先に応じたStoreを返す。
func Open(ctx context.Context, kind config.MediaStorage, opts Options) (Store, error) {
	switch kind {
	case config.MediaStorageFile, "":
		return NewFileStore(opts.Dir, opts.BaseURL)
	case config.MediaStorageS3:
		return NewS3Store(ctx, opts.Bucket, opts.Region)
	case config.MediaStorageMinio:
		return NewMinioStore(ctx, opts.MinioEndpoint, opts.MinioAccessKey, opts.MinioSecretKey, opts.Bucket)
	default:
		return nil, fmt.Errorf("unknown media storage %q", kind)
	}
}
