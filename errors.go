package stratum

import (
	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/blobstore"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/producer"
	"github.com/hupe1980/stratum/read"
	"github.com/hupe1980/stratum/write"
)

// Errors callers commonly check with errors.Is. Each is the sentinel of
// the package that returns it.
var (
	// ErrCorrupt is returned for a blob whose framing or checksum is wrong.
	ErrCorrupt = blob.ErrCorrupt

	// ErrNotFound is returned by blob stores for a missing blob.
	ErrNotFound = blobstore.ErrNotFound

	// ErrNoPath is returned when no chain of blobs reaches the requested
	// version.
	ErrNoPath = consumer.ErrNoPath

	// ErrNothingAnnounced is returned by a refresh to the latest version
	// before anything was announced.
	ErrNothingAnnounced = consumer.ErrNothingAnnounced

	// ErrRefreshVetoed is returned when a refresh listener stops a refresh.
	ErrRefreshVetoed = consumer.ErrVetoed

	// ErrCycleVetoed is returned when a producer listener stops a cycle.
	ErrCycleVetoed = producer.ErrVetoed

	// ErrOriginMismatch is returned when a delta does not start at the
	// current state.
	ErrOriginMismatch = read.ErrOriginMismatch

	// ErrUnknownType is returned when adding a record of an unregistered
	// type.
	ErrUnknownType = write.ErrUnknownType

	// ErrWriteStateClosed is returned by a WriteState used after its cycle's
	// population stage.
	ErrWriteStateClosed = producer.ErrWriteStateClosed

	// ErrDuplicateKey is reported by the duplicate data validator.
	ErrDuplicateKey = producer.ErrDuplicateKey
)
