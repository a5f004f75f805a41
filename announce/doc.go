// Package announce tells consumers which version a producer published
// last.
//
// A producer calls Announcer.Announce after a cycle's blobs are stored and
// validated. Consumers ask a Watcher for the Latest version, or wrap it in
// a PollingWatcher to be notified of changes:
//
//	store := blobstore.NewLocalStore(dir)
//	ann := announce.NewStoreAnnouncer(store)
//
//	p := producer.New(producer.WithPublisher(blobstore.NewCatalog(store)), producer.WithAnnouncer(ann))
//
//	w := announce.NewPollingWatcher(ann, announce.WithInterval(time.Second))
//	c := consumer.New(blobstore.NewCatalog(store), consumer.WithAnnouncementWatcher(w))
//	go c.Watch(ctx)
package announce
