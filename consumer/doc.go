// Package consumer keeps a read engine in step with a producer.
//
// A Planner turns the current and desired versions into an UpdatePlan of
// snapshot, delta and reverse delta transitions found through a
// BlobRetriever. The Consumer executes plans one transition at a time,
// notifies RefreshListeners, and counts failed transitions. When double
// snapshots are allowed, a transition that failed once is never retried;
// the planner routes around it through a newer snapshot.
//
//	c := consumer.New(catalog,
//		consumer.WithAnnouncementWatcher(watcher),
//		consumer.WithLogger(logger),
//	)
//	if err := c.Refresh(ctx); err != nil {
//		return err
//	}
//	movies, _ := c.StateEngine().TypeState("Movie")
package consumer
