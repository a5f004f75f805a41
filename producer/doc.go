// Package producer runs the cycles that turn a source dataset into
// published versions.
//
// A cycle mints a version, lets the caller populate a WriteState, and
// skips the version if nothing changed. Otherwise it writes a snapshot
// (every version, or every n+1 with WithNumStatesBetweenSnapshots) plus a
// delta and reverse delta from the previous version, hands them to the
// BlobPublisher, stages the new state by applying the delta to the
// previous one, runs the validators and announces the version.
//
// A failure after staging rolls the producer back to the previous version
// with the reverse delta. Blobs already published stay in the store and
// are superseded by the next successful cycle.
//
//	catalog := blobstore.NewCatalog(blobstore.NewLocalStore("/var/lib/movies"))
//	p := producer.New(
//		producer.WithPublisher(catalog),
//		producer.WithAnnouncer(announce.NewStoreAnnouncer(catalog.Store())),
//		producer.WithValidator(producer.NewDuplicateDataValidator("Movie")),
//	)
//	if err := p.Initialize(movieSchema); err != nil {
//		return err
//	}
//	version, err := p.RunCycle(ctx, func(ws *producer.WriteState) error {
//		for _, m := range movies {
//			if _, err := ws.Add("Movie", m.Record()); err != nil {
//				return err
//			}
//		}
//		return nil
//	})
package producer
