// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// AssetInfo describes a stored asset.
type AssetInfo struct {
	Name string
	Size int64
	MIME string
}

// AssetSource resolves references to assets already in the library.
type AssetSource interface {
	// Stat reports whether the asset exists and what it is.
	Stat(ctx context.Context, assetPath string) (AssetInfo, error)

	// Thumbnail returns a small preview image and its MIME type.
	Thumbnail(ctx context.Context, assetPath string) ([]byte, string, error)
}

// ErrAssetNotFound indicates the referenced asset does not exist.
var ErrAssetNotFound = errors.New("asset not found")

// =============================================================================
// MINIO ASSET SOURCE
// =============================================================================

// MaxThumbnailBytes bounds a thumbnail download.
const MaxThumbnailBytes = 2 * 1024 * 1024

// MinioConfig holds MinIO connection settings for the asset library.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// ThumbnailPrefix is where pre-rendered thumbnails live. Defaults to "thumbnails/".
	ThumbnailPrefix string
}

// MinioSource serves asset metadata and thumbnails from a MinIO/S3 bucket.
type MinioSource struct {
	mc          *minio.Client
	bucket      string
	thumbPrefix string
}

var _ AssetSource = (*MinioSource)(nil)

// NewMinioSource creates an asset source. It does not contact the server.
func NewMinioSource(cfg MinioConfig) (*MinioSource, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("minio endpoint and bucket are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	prefix := cfg.ThumbnailPrefix
	if prefix == "" {
		prefix = "thumbnails/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &MinioSource{mc: mc, bucket: cfg.Bucket, thumbPrefix: prefix}, nil
}

// Bucket returns the bucket name.
func (s *MinioSource) Bucket() string {
	return s.bucket
}

// Stat looks up the object behind assetPath.
func (s *MinioSource) Stat(ctx context.Context, assetPath string) (AssetInfo, error) {
	key := objectKey(assetPath)
	info, err := s.mc.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return AssetInfo{}, fmt.Errorf("%w: %s", ErrAssetNotFound, assetPath)
		}
		return AssetInfo{}, fmt.Errorf("stat %s/%s: %w", s.bucket, key, err)
	}
	return AssetInfo{
		Name: path.Base(key),
		Size: info.Size,
		MIME: info.ContentType,
	}, nil
}

// Thumbnail fetches the pre-rendered thumbnail, falling back to the asset
// itself when no thumbnail exists and the asset is small enough.
func (s *MinioSource) Thumbnail(ctx context.Context, assetPath string) ([]byte, string, error) {
	key := objectKey(assetPath)

	data, contentType, err := s.download(ctx, s.thumbPrefix+key)
	if err == nil {
		return data, contentType, nil
	}
	if !isNoSuchKey(err) {
		return nil, "", err
	}
	return s.download(ctx, key)
}

func (s *MinioSource) download(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.mc.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get %s/%s: %w", s.bucket, key, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		return nil, "", err
	}
	if info.Size > MaxThumbnailBytes {
		return nil, "", fmt.Errorf("%s/%s: %w for a thumbnail", s.bucket, key, ErrFileTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(obj, MaxThumbnailBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s/%s: %w", s.bucket, key, err)
	}
	return data, info.ContentType, nil
}

// objectKey maps a library path to an object key.
func objectKey(assetPath string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(assetPath, "\\", "/")), "/")
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
