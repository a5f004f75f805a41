// Package minio stores stratum blobs on MinIO and other S3-compatible
// servers.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//	store := stratumminio.NewStore(client, "stratum", "movies")
//	catalog := blobstore.NewCatalog(store)
package minio
