// Package s3 stores stratum blobs in Amazon S3 and announces versions
// through DynamoDB.
//
// # Store
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "stratum/movies")
//	catalog := blobstore.NewCatalog(store)
//
// Reads are ranged GETs. Blobs at or above UploadConfig.MultipartThreshold
// are written with the multipart uploader, smaller ones with a single
// PutObject. Both carry a CRC32C checksum unless disabled.
//
// # DynamoAnnouncer
//
// S3 has no compare-and-swap for the announced version, so the announcement
// log lives in a DynamoDB table:
//
//	aws dynamodb create-table \
//	  --table-name stratum-announcements \
//	  --attribute-definitions AttributeName=namespace,AttributeType=S AttributeName=seq,AttributeType=N \
//	  --key-schema AttributeName=namespace,KeyType=HASH AttributeName=seq,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package s3
