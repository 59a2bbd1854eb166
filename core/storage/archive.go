package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// ArchivedObject describes one archived changeset.
type ArchivedObject struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Archive stores changeset artifacts under a key prefix of one bucket.
type Archive struct {
	client Client
	bucket string
	prefix string
}

// NewArchive creates an archive over client.
func NewArchive(client Client, bucket, prefix string) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: prefix}
}

// Bucket returns the archive bucket name.
func (a *Archive) Bucket() string {
	return a.bucket
}

func (a *Archive) key(name string) string {
	return a.prefix + path.Base(name)
}

// EnsureBucket creates the archive bucket when it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Put uploads an artifact and returns its object key.
func (a *Archive) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if err := a.EnsureBucket(ctx); err != nil {
		return "", err
	}
	key := a.key(name)
	_, err := a.client.PutObject(ctx, a.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

// Open streams an archived artifact by name.
func (a *Archive) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return a.client.GetObject(ctx, a.bucket, a.key(name), minio.GetObjectOptions{})
}

// Remove deletes a single archived artifact.
func (a *Archive) Remove(ctx context.Context, name string) error {
	return a.client.RemoveObject(ctx, a.bucket, a.key(name), minio.RemoveObjectOptions{})
}

// List returns every archived artifact, newest first.
func (a *Archive) List(ctx context.Context) ([]ArchivedObject, error) {
	var out []ArchivedObject
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: a.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", a.bucket, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out = append(out, ArchivedObject{
			Name:         strings.TrimPrefix(obj.Key, a.prefix),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

// PruneOlderThan removes every artifact last modified before cutoff and
// returns the names removed.
func (a *Archive) PruneOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	objects, err := a.List(ctx)
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, obj := range objects {
		if obj.LastModified.Before(cutoff) {
			stale = append(stale, obj.Name)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(stale))
	for _, name := range stale {
		objectsCh <- minio.ObjectInfo{Key: a.key(name)}
	}
	close(objectsCh)

	for rErr := range a.client.RemoveObjects(ctx, a.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", rErr.ObjectName, rErr.Err)
		}
	}
	return stale, nil
}
