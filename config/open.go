package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/stratum"
	"github.com/hupe1980/stratum/blobstore"
	ministore "github.com/hupe1980/stratum/blobstore/minio"
	s3store "github.com/hupe1980/stratum/blobstore/s3"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/producer"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Logger returns the configured logger.
func (c *Config) Logger() *stratum.Logger {
	lvl, err := c.Log.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	if c.Log.Format == "json" {
		return stratum.NewJSONLogger(lvl)
	}
	return stratum.NewTextLogger(lvl)
}

// Options converts the configuration to options for stratum.NewProducer
// and stratum.NewConsumer.
func (c *Config) Options() []stratum.Option {
	opts := []stratum.Option{
		stratum.WithLogger(c.Logger()),
		stratum.WithPrefix(c.Store.Prefix),
		stratum.WithFetchLimits(c.Store.MaxConcurrentFetches, c.Store.IOLimitBytesPerSec),
		stratum.WithPollInterval(c.Consumer.RefreshInterval),
		stratum.WithProducerOptions(
			producer.WithNumStatesBetweenSnapshots(c.Producer.NumStatesBetweenSnapshots),
			producer.WithTargetMaxShardSize(c.Producer.TargetMaxShardSize),
			producer.WithCompression(c.Producer.Compression),
			producer.WithAnnounceRetry(c.Producer.AnnounceRetries, c.Producer.AnnounceBackoff),
		),
		stratum.WithConsumerOptions(
			consumer.WithDoubleSnapshot(c.Consumer.AllowDoubleSnapshot, c.Consumer.MaxDeltasBeforeDoubleSnapshot),
		),
	}
	if f, err := c.Consumer.filter(); err == nil && f != nil {
		opts = append(opts, stratum.WithConsumerOptions(consumer.WithFilter(f)))
	}
	return opts
}

// Open connects to the configured store. The returned options include
// Options and, for an S3 store with a DynamoDB table, the announcer.
func (c *Config) Open(ctx context.Context) (blobstore.BlobStore, []stratum.Option, error) {
	opts := c.Options()
	s := c.Store
	switch s.Kind {
	case StoreMemory:
		return blobstore.NewMemoryStore(), opts, nil
	case StoreLocal:
		return blobstore.NewLocalStore(s.Path), opts, nil
	case StoreS3:
		awsCfg, err := c.loadAWS(ctx)
		if err != nil {
			return nil, nil, err
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if s.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.Endpoint)
				o.UsePathStyle = true
			}
		})
		if s.DynamoTable != "" {
			a := s3store.NewDynamoAnnouncer(dynamodb.NewFromConfig(awsCfg), s.DynamoTable, "s3://"+s.Bucket+"/"+s.Prefix)
			opts = append(opts, stratum.WithAnnouncer(a), stratum.WithWatcher(a))
		}
		return s3store.NewStore(client, s.Bucket, ""), opts, nil
	case StoreMinIO:
		client, err := minio.New(s.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(s.AccessKeyID, s.SecretAccessKey, ""),
			Secure: s.UseSSL,
			Region: s.Region,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("config: minio client: %w", err)
		}
		return ministore.NewStore(client, s.Bucket, ""), opts, nil
	}
	return nil, nil, fmt.Errorf("%w: store.kind %q", ErrInvalid, s.Kind)
}

// loadAWS uses the default credential chain, so keys come from the
// environment or shared config rather than the file.
func (c *Config) loadAWS(ctx context.Context) (aws.Config, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if c.Store.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(c.Store.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("config: load aws config: %w", err)
	}
	return cfg, nil
}
