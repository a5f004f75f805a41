// Package stratum disseminates an in-memory dataset from one producer to
// many consumers as a chain of versioned state blobs.
//
// A producer periodically rebuilds the dataset from its source of truth.
// Each cycle that changes the data becomes a version: a snapshot holding
// the full state, a delta from the previous version and a reverse delta
// back to it. Consumers load a snapshot once and then follow deltas, so
// keeping up with a large dataset costs only the bytes that changed.
//
// # Quick Start
//
//	store := blobstore.NewLocalStore("/var/lib/movies")
//
//	p := stratum.NewProducer(store)
//	_ = p.Initialize(movieSchema)
//	version, err := p.RunCycle(ctx, func(ws *producer.WriteState) error {
//		_, err := ws.Add("Movie", record.NewObject(movieSchema).SetInt("id", 1))
//		return err
//	})
//
//	c := stratum.NewConsumer(store)
//	err = c.Refresh(ctx)          // load the announced version
//	go c.Watch(ctx)               // follow new announcements
//
// # Packages
//
//   - schema and record describe and build records.
//   - write and read are the write and read state engines.
//   - producer runs cycles; consumer plans and applies refreshes.
//   - blobstore stores blobs in memory, on disk, in S3 (blobstore/s3) or
//     MinIO (blobstore/minio); announce publishes the current version.
//   - diff compares two states of a dataset.
//   - metrics/prometheus exports metrics; config loads YAML configuration.
//
// # Observability
//
// Pass a Logger with WithLogger and a MetricsCollector with
// WithMetricsCollector. WithEventLogging additionally logs every cycle and
// refresh.
package stratum
