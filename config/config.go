package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hupe1980/stratum/announce"
	"github.com/hupe1980/stratum/compress"
	"github.com/hupe1980/stratum/read"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// StoreKind selects a blob store backend.
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreLocal  StoreKind = "local"
	StoreS3     StoreKind = "s3"
	StoreMinIO  StoreKind = "minio"
)

// Config is the YAML configuration of a producer or consumer process.
//
//	log:
//	  level: debug
//	  format: json
//	store:
//	  kind: s3
//	  bucket: datasets
//	  prefix: movies/
//	  region: eu-central-1
//	  dynamo_table: stratum-announcements
//	producer:
//	  num_states_between_snapshots: 4
//	  compression: zstd
//	consumer:
//	  refresh_interval: 10s
//	  filter: "include:Movie,Actor.name"
type Config struct {
	Log      Log      `yaml:"log"`
	Store    Store    `yaml:"store"`
	Producer Producer `yaml:"producer"`
	Consumer Consumer `yaml:"consumer"`
}

// Log configures the logger.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Store configures where blobs and announcements live.
type Store struct {
	Kind StoreKind `yaml:"kind"`
	// Path is the root directory of a local store.
	Path string `yaml:"path"`
	// Bucket is the S3 or MinIO bucket.
	Bucket string `yaml:"bucket"`
	// Prefix namespaces one dataset inside the store, e.g. "movies/".
	Prefix string `yaml:"prefix"`
	// Endpoint overrides the S3 endpoint, and is required for MinIO.
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	// DynamoTable switches S3 announcements to a DynamoDB log.
	DynamoTable string `yaml:"dynamo_table"`

	MaxConcurrentFetches int64 `yaml:"max_concurrent_fetches"`
	IOLimitBytesPerSec   int64 `yaml:"io_limit_bytes_per_sec"`
}

// Producer configures producer cycles.
type Producer struct {
	NumStatesBetweenSnapshots int           `yaml:"num_states_between_snapshots"`
	TargetMaxShardSize        int64         `yaml:"target_max_shard_size"`
	Compression               compress.Kind `yaml:"compression"`
	AnnounceRetries           uint64        `yaml:"announce_retries"`
	AnnounceBackoff           time.Duration `yaml:"announce_backoff"`
}

// Consumer configures refreshes.
type Consumer struct {
	AllowDoubleSnapshot           bool          `yaml:"allow_double_snapshot"`
	MaxDeltasBeforeDoubleSnapshot int           `yaml:"max_deltas_before_double_snapshot"`
	RefreshInterval               time.Duration `yaml:"refresh_interval"`
	// Filter restricts the loaded types, in the form of read.ParseFilter.
	Filter string `yaml:"filter"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		Log:   Log{Level: "info", Format: "text"},
		Store: Store{Kind: StoreMemory},
		Producer: Producer{
			AnnounceBackoff: 100 * time.Millisecond,
		},
		Consumer: Consumer{
			AllowDoubleSnapshot:           true,
			MaxDeltasBeforeDoubleSnapshot: 32,
			RefreshInterval:               announce.DefaultInterval,
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem of the configuration at once.
func (c *Config) Validate() error {
	var merr *multierror.Error
	add := func(format string, args ...any) {
		merr = multierror.Append(merr, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if _, err := c.Log.level(); err != nil {
		add("log.level: %v", err)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		add("log.format must be text or json, got %q", f)
	}

	s := c.Store
	switch s.Kind {
	case StoreMemory:
	case StoreLocal:
		if s.Path == "" {
			add("store.path is required for a local store")
		}
	case StoreS3:
		if s.Bucket == "" {
			add("store.bucket is required for an s3 store")
		}
	case StoreMinIO:
		if s.Bucket == "" {
			add("store.bucket is required for a minio store")
		}
		if s.Endpoint == "" {
			add("store.endpoint is required for a minio store")
		}
	default:
		add("store.kind must be memory, local, s3 or minio, got %q", s.Kind)
	}
	if s.DynamoTable != "" && s.Kind != StoreS3 {
		add("store.dynamo_table requires an s3 store")
	}
	if s.MaxConcurrentFetches < 0 || s.IOLimitBytesPerSec < 0 {
		add("store fetch limits must not be negative")
	}

	if c.Producer.NumStatesBetweenSnapshots < 0 {
		add("producer.num_states_between_snapshots must not be negative")
	}
	if c.Producer.TargetMaxShardSize < 0 {
		add("producer.target_max_shard_size must not be negative")
	}
	if c.Consumer.MaxDeltasBeforeDoubleSnapshot < 0 {
		add("consumer.max_deltas_before_double_snapshot must not be negative")
	}
	if c.Consumer.RefreshInterval < 0 {
		add("consumer.refresh_interval must not be negative")
	}
	if _, err := c.Consumer.filter(); err != nil {
		add("consumer.filter: %v", err)
	}
	return merr.ErrorOrNil()
}

func (l Log) level() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level)))
	return lvl, err
}

func (c Consumer) filter() (*read.Filter, error) {
	if strings.TrimSpace(c.Filter) == "" {
		return nil, nil
	}
	return read.ParseFilter(c.Filter)
}
