// Package blob はアバター画像等のバイナリ保存を提供する。
// 実体はcasdoor/ossのストレージ抽象で、ローカルファイルシステムと
// S3互換ストレージを同一インターフェースで扱う。
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/casdoor/oss"
	"github.com/casdoor/oss/s3"

	aws3 "github.com/aws/aws-sdk-go/service/s3"
)

// Storage はバイナリオブジェクトの保存インターフェース。
type Storage interface {
	// Put はオブジェクトを保存し、公開URLを返す。
	Put(ctx context.Context, path string, r io.Reader) (string, error)
	// Delete はオブジェクトを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, path string) error
}

// Config はストレージの設定。
type Config struct {
	Driver  string // "fs" | "s3"
	Path    string // fsドライバのベースディレクトリ
	BaseURL string // 公開URLのプレフィックス

	S3AccessID     string
	S3AccessSecret string
	S3Region       string
	S3Bucket       string
	S3Endpoint     string
}

// ossStorage はcasdoor/ossのStorageInterfaceをStorageに適合させる。
type ossStorage struct {
	backend oss.StorageInterface
	baseURL string
}

// New は設定に応じたStorageを生成する。
func New(cfg Config) (Storage, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	switch cfg.Driver {
	case "fs":
		backend, err := newLocalFileSystem(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to init filesystem storage: %w", err)
		}
		return &ossStorage{backend: backend, baseURL: baseURL}, nil
	case "s3":
		backend := s3.New(&s3.Config{
			AccessID:   cfg.S3AccessID,
			AccessKey:  cfg.S3AccessSecret,
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			Endpoint:   cfg.S3Endpoint,
			S3Endpoint: cfg.S3Endpoint,
			ACL:        aws3.BucketCannedACLPublicRead,
		})
		return &ossStorage{backend: backend, baseURL: baseURL}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// Put はオブジェクトを保存し、公開URLを返す。
func (s *ossStorage) Put(ctx context.Context, path string, r io.Reader) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", fmt.Errorf("empty object path")
	}
	if _, err := s.backend.Put(path, r); err != nil {
		return "", fmt.Errorf("failed to store object %s: %w", path, err)
	}
	return s.baseURL + "/" + path, nil
}

// Delete はオブジェクトを削除する。
func (s *ossStorage) Delete(ctx context.Context, path string) error {
	path = strings.TrimPrefix(path, "/")
	if err := s.backend.Delete(path); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", path, err)
	}
	return nil
}

// compile-time interface check
var _ Storage = (*ossStorage)(nil)
