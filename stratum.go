package stratum

import (
	"github.com/hupe1980/stratum/announce"
	"github.com/hupe1980/stratum/blobstore"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/internal/resource"
	"github.com/hupe1980/stratum/producer"
)

// NewCatalog returns the catalog of the dataset selected by opts in store.
func NewCatalog(store blobstore.BlobStore, opts ...Option) *blobstore.Catalog {
	return newCatalog(store, applyOptions(opts))
}

func newCatalog(store blobstore.BlobStore, o options) *blobstore.Catalog {
	return blobstore.NewCatalog(store,
		blobstore.WithPrefix(o.prefix),
		blobstore.WithResourceController(resource.NewController(o.resources)),
		blobstore.WithLogger(o.logger.WithComponent("catalog").Logger),
	)
}

func storeAnnouncer(store blobstore.BlobStore, o options) *announce.StoreAnnouncer {
	return announce.NewStoreAnnouncer(store, announce.WithName(o.prefix+announce.DefaultName))
}

// NewAnnouncer returns the announcer a producer built with the same store
// and options uses. Announcing an older version pins consumers to it.
func NewAnnouncer(store blobstore.BlobStore, opts ...Option) announce.Announcer {
	return newAnnouncer(store, applyOptions(opts))
}

func newAnnouncer(store blobstore.BlobStore, o options) announce.Announcer {
	if o.announcer != nil {
		return o.announcer
	}
	return storeAnnouncer(store, o)
}

// NewWatcher returns the watcher a consumer built with the same store and
// options reads announcements from.
func NewWatcher(store blobstore.BlobStore, opts ...Option) announce.Watcher {
	return newWatcher(store, applyOptions(opts))
}

func newWatcher(store blobstore.BlobStore, o options) announce.Watcher {
	if o.watcher != nil {
		return o.watcher
	}
	return storeAnnouncer(store, o)
}

// NewProducer returns a producer that publishes to store and announces
// each version in it.
func NewProducer(store blobstore.BlobStore, opts ...Option) *producer.Producer {
	o := applyOptions(opts)

	popts := []producer.Option{
		producer.WithPublisher(newCatalog(store, o)),
		producer.WithAnnouncer(newAnnouncer(store, o)),
		producer.WithLogger(o.logger.WithComponent("producer").Logger),
		producer.WithMetricsCollector(o.metricsCollector),
	}
	if o.eventLogging {
		popts = append(popts, producer.WithListener(NewEventLogger(o.logger.WithComponent("producer"))))
	}
	return producer.New(append(popts, o.producerOptions...)...)
}

// NewConsumer returns a consumer that reads the versions a producer
// created with the same store and options announces. Consumer.Watch
// follows the announcements by polling.
func NewConsumer(store blobstore.BlobStore, opts ...Option) *consumer.Consumer {
	o := applyOptions(opts)

	logger := o.logger.WithComponent("consumer")
	copts := []consumer.Option{
		consumer.WithAnnouncementWatcher(announce.NewPollingWatcher(newWatcher(store, o),
			announce.WithInterval(o.pollInterval),
			announce.WithLogger(logger.Logger),
		)),
		consumer.WithLogger(logger.Logger),
		consumer.WithMetricsCollector(o.metricsCollector),
	}
	if o.eventLogging {
		copts = append(copts, consumer.WithRefreshListener(NewEventLogger(logger)))
	}
	return consumer.New(newCatalog(store, o), append(copts, o.consumerOptions...)...)
}
