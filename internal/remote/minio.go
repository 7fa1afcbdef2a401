package remote

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioService reads reading files from an S3-compatible bucket
type MinioService struct {
	client *minio.Client
	bucket string
}

// NewMinioService connects to the object store and checks that the bucket exists
func NewMinioService(cfg config.RemoteConfig) (*MinioService, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO server: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return &MinioService{client: client, bucket: cfg.Bucket}, nil
}

// List returns the objects directly under <source>/<site>/
func (s *MinioService) List(ctx context.Context, source models.SourceType, site string) ([]Entry, error) {
	prefix := Dir(source, site) + "/"

	var entries []Entry
	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects in bucket %s: %w", s.bucket, object.Err)
		}
		name := strings.TrimPrefix(object.Key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			Size:    object.Size,
			ModTime: object.LastModified,
		})
	}
	return entries, nil
}

// Get downloads one object fully into memory
func (s *MinioService) Get(ctx context.Context, source models.SourceType, site, name string) ([]byte, error) {
	key := path.Join(Dir(source, site), name)
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s from bucket %s: %w", key, s.bucket, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s from bucket %s: %w", key, s.bucket, err)
	}
	return data, nil
}
