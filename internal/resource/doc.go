// Package resource limits how hard blob stores are hit while a consumer
// catches up.
//
// A Controller bounds two things:
//
//   - Fetches: the number of blobs open for reading at once (weighted
//     semaphore).
//   - IO: the byte rate at which blob bodies are read (token bucket).
//
// Usage:
//
//	rc := resource.NewController(resource.Config{
//	    MaxConcurrentFetches: 4,
//	    IOLimitBytesPerSec:   64 << 20,
//	})
//	if err := rc.AcquireFetch(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseFetch()
//	r := resource.NewRateLimitedReader(ctx, body, rc)
//
// Every method is safe for concurrent use, and a nil *Controller imposes
// no limits.
package resource
