// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind the Client interface so that storage
// interactions can be mocked in tests (see core/storage/mocks). Both AWS S3 and
// self-hosted MinIO instances are supported.
//
// # Archive
//
// Archive keeps changeset artifacts under a key prefix of one bucket. It creates
// the bucket on first upload, lists artifacts newest first and prunes artifacts
// older than a cutoff with a single batched RemoveObjects call.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	archive := storage.NewArchive(client, cfg.Storage.Bucket, cfg.Storage.Prefix)
//	key, err := archive.Put(ctx, name, file, size, contentType)
package storage
