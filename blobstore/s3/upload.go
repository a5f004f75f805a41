package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/stratum/internal/hash"
)

// UploadConfig tunes how blobs are written.
type UploadConfig struct {
	// MultipartThreshold is the blob size from which the multipart
	// uploader is used. Smaller blobs are sent with a single PutObject.
	MultipartThreshold int64

	// PartSize is the multipart part size. It must be at least 5 MiB.
	PartSize int64

	// Concurrency is the number of parts uploaded in parallel.
	Concurrency int

	// EnableChecksum asks S3 to verify a CRC32C of the body.
	EnableChecksum bool

	// LeavePartsOnError keeps uploaded parts of a failed multipart upload.
	LeavePartsOnError bool
}

// DefaultUploadConfig returns the settings used by NewStore.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		MultipartThreshold: 16 << 20,
		PartSize:           8 << 20,
		Concurrency:        5,
		EnableChecksum:     true,
	}
}

func newUploader(client Client, cfg UploadConfig) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
		u.LeavePartsOnError = cfg.LeavePartsOnError
	})
}

// computeCRC32C returns the checksum in the base64 big-endian form S3
// expects.
func computeCRC32C(data []byte) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], hash.CRC32C(data))
	return base64.StdEncoding.EncodeToString(b[:])
}

func putInput(bucket, key string, data []byte, checksum bool) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if checksum {
		in.ChecksumCRC32C = aws.String(computeCRC32C(data))
	}
	return in
}

func uploadMultipart(ctx context.Context, u *manager.Uploader, bucket, key string, data []byte, checksum bool) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if checksum {
		in.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	_, err := u.Upload(ctx, in)
	return err
}
