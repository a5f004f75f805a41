// Package blobstore stores the snapshot, delta and reverse delta blobs a
// producer publishes and a consumer fetches.
//
// BlobStore is the storage abstraction:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Built-in implementations:
//
//   - MemoryStore: in-process, for tests and embedded use
//   - LocalStore: a directory, with mmap reads and atomic rename writes
//   - s3.Store: Amazon S3 (package blobstore/s3)
//   - minio.Store: MinIO and other S3-compatible servers (package blobstore/minio)
//
// Catalog maps transitions to blob names and implements both the producer
// publisher and the consumer retriever:
//
//	store := blobstore.NewLocalStore("/var/lib/stratum/movies")
//	catalog := blobstore.NewCatalog(store)
//
//	p := producer.New(producer.WithPublisher(catalog))
//	c := consumer.New(catalog)
package blobstore
