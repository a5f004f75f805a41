package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/stratum"
	"github.com/hupe1980/stratum/blobstore"
	ministore "github.com/hupe1980/stratum/blobstore/minio"
	"github.com/hupe1980/stratum/compress"
	"github.com/hupe1980/stratum/producer"
	"github.com/hupe1980/stratum/record"
	"github.com/hupe1980/stratum/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
  format: json
store:
  kind: local
  path: /var/lib/stratum
  prefix: movies/
  max_concurrent_fetches: 4
producer:
  num_states_between_snapshots: 3
  compression: zstd
  announce_retries: 5
  announce_backoff: 250ms
consumer:
  allow_double_snapshot: false
  refresh_interval: 30s
  filter: "include:Movie, Actor.name"
`))
	require.NoError(t, err)

	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, StoreLocal, cfg.Store.Kind)
	assert.Equal(t, "/var/lib/stratum", cfg.Store.Path)
	assert.Equal(t, "movies/", cfg.Store.Prefix)
	assert.Equal(t, int64(4), cfg.Store.MaxConcurrentFetches)
	assert.Equal(t, 3, cfg.Producer.NumStatesBetweenSnapshots)
	assert.Equal(t, compress.Zstd, cfg.Producer.Compression)
	assert.Equal(t, uint64(5), cfg.Producer.AnnounceRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Producer.AnnounceBackoff)
	assert.False(t, cfg.Consumer.AllowDoubleSnapshot)
	assert.Equal(t, 32, cfg.Consumer.MaxDeltasBeforeDoubleSnapshot, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Consumer.RefreshInterval)

	f, err := cfg.Consumer.filter()
	require.NoError(t, err)
	assert.Equal(t, "include:Actor.name,Movie", f.String())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("store:\n  kind: memory\n  buckt: typo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buckt")
}

func TestParse_BadCompression(t *testing.T) {
	_, err := Parse([]byte("producer:\n  compression: brotli\n"))
	assert.ErrorIs(t, err, compress.ErrUnknownKind)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Store = Store{Kind: StoreMinIO, DynamoTable: "t", MaxConcurrentFetches: -1}
	cfg.Producer.NumStatesBetweenSnapshots = -1
	cfg.Consumer.Filter = "only:Movie"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	for _, want := range []string{
		"log.level",
		"log.format",
		"store.bucket is required for a minio store",
		"store.endpoint is required for a minio store",
		"store.dynamo_table requires an s3 store",
		"fetch limits",
		"num_states_between_snapshots",
		"consumer.filter",
	} {
		assert.Contains(t, err.Error(), want)
	}

	cfg = Default()
	cfg.Store.Kind = "ftp"
	assert.ErrorContains(t, cfg.Validate(), `store.kind must be memory, local, s3 or minio, got "ftp"`)

	cfg = Default()
	cfg.Store.Kind = StoreLocal
	assert.ErrorContains(t, cfg.Validate(), "store.path is required")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratum.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  kind: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Kind)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_Local(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg, err := Parse([]byte(`
log:
  level: error
store:
  kind: local
  path: ` + dir + `
  prefix: movies/
producer:
  num_states_between_snapshots: 1
`))
	require.NoError(t, err)

	store, opts, err := cfg.Open(ctx)
	require.NoError(t, err)
	require.IsType(t, &blobstore.LocalStore{}, store)

	movie := schema.NewObjectSchema("Movie", schema.NewField("id", schema.FieldInt))
	var next int64
	opts = append(opts, stratum.WithProducerOptions(
		producer.WithVersionMinter(producer.VersionMinterFunc(func() int64 { next++; return next })),
	))
	p := stratum.NewProducer(store, opts...)
	require.NoError(t, p.Initialize(movie))
	for i := range int32(3) {
		_, err := p.RunCycle(ctx, func(ws *producer.WriteState) error {
			_, err := ws.Add("Movie", record.NewObject(movie).SetInt("id", i))
			return err
		})
		require.NoError(t, err)
	}

	names, err := store.List(ctx, "movies/snapshot-")
	require.NoError(t, err)
	assert.Equal(t, []string{"movies/snapshot-1", "movies/snapshot-3"}, names, "every other version has a snapshot")

	c := stratum.NewConsumer(store, opts...)
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, int64(3), c.CurrentVersion())
}

func TestOpen_MinIO(t *testing.T) {
	cfg := Default()
	cfg.Store = Store{Kind: StoreMinIO, Bucket: "b", Endpoint: "localhost:9000", AccessKeyID: "k", SecretAccessKey: "s"}
	require.NoError(t, cfg.Validate())

	store, _, err := cfg.Open(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &ministore.Store{}, store)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	l := cfg.Logger()
	assert.False(t, l.Enabled(context.Background(), -4))
	assert.True(t, l.Enabled(context.Background(), 4))
}
