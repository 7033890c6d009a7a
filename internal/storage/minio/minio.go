// Package minio keeps screenshots in an S3-compatible bucket. Refs are object keys of
// the form screenshots/<userID>/<unix>_<uuid><ext>.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sensus/peek/internal/storage"
)

const keyPrefix = "screenshots/"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

type Screenshots struct {
	client *mclient.Client
	bucket string
}

// New connects and fails fast when the bucket does not exist.
func New(ctx context.Context, cfg Config) (*Screenshots, error) {
	const op = "storage/minio/New"

	endpoint := cfg.Endpoint
	secure := strings.HasPrefix(endpoint, "https://")
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: bucket %q does not exist", op, cfg.Bucket)
	}

	return &Screenshots{client: client, bucket: cfg.Bucket}, nil
}

var _ storage.Screenshots = (*Screenshots)(nil)

func (s *Screenshots) Put(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	key := objectKey(userID, time.Now(), contentType)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		mclient.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("storage/minio/Put: %w", err)
	}
	return key, nil
}

func (s *Screenshots) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	if !strings.HasPrefix(ref, keyPrefix) {
		return nil, "", storage.ErrNotFound
	}
	info, err := s.client.StatObject(ctx, s.bucket, ref, mclient.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, "", storage.ErrNotFound
		}
		return nil, "", fmt.Errorf("storage/minio/Open: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, ref, mclient.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("storage/minio/Open: %w", err)
	}
	ct := info.ContentType
	if ct == "" {
		ct = storage.ContentTypeFor(path.Ext(ref))
	}
	return obj, ct, nil
}

func (s *Screenshots) Remove(ctx context.Context, ref string) error {
	if !strings.HasPrefix(ref, keyPrefix) {
		return nil
	}
	err := s.client.RemoveObject(ctx, s.bucket, ref, mclient.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("storage/minio/Remove: %w", err)
	}
	return nil
}

// objectKey always lands under keyPrefix: the user segment keeps only [A-Za-z0-9-],
// so "." and ".." cannot collapse the path.
func objectKey(userID string, now time.Time, contentType string) string {
	return keyPrefix + userSegment(userID) + "/" +
		fmt.Sprintf("%d_%s%s", now.Unix(), uuid.NewString(), storage.ExtensionFor(contentType))
}

func userSegment(userID string) string {
	seg := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, userID)
	if seg == "" {
		return "_"
	}
	return seg
}

func isNotFound(err error) bool {
	resp := mclient.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
