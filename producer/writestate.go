package producer

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/stratum/read"
	"github.com/hupe1980/stratum/record"
	"github.com/hupe1980/stratum/write"
)

// WriteState is handed to the populate function of a cycle. It is only
// usable while that function runs.
type WriteState struct {
	engine  *write.Engine
	version int64
	prior   *read.Engine
	closed  atomic.Bool
}

func newWriteState(e *write.Engine, version int64, prior *read.Engine) *WriteState {
	return &WriteState{engine: e, version: version, prior: prior}
}

func (ws *WriteState) check() error {
	if ws.closed.Load() {
		return fmt.Errorf("%w; version=%d", ErrWriteStateClosed, ws.version)
	}
	return nil
}

func (ws *WriteState) close() { ws.closed.Store(true) }

// Add adds a record of typeName and returns its ordinal. Safe for
// concurrent use.
func (ws *WriteState) Add(typeName string, rec record.Record) (int, error) {
	if err := ws.check(); err != nil {
		return -1, err
	}
	return ws.engine.Add(typeName, rec)
}

// Version returns the version being produced.
func (ws *WriteState) Version() (int64, error) {
	if err := ws.check(); err != nil {
		return 0, err
	}
	return ws.version, nil
}

// StateEngine returns the underlying write engine.
func (ws *WriteState) StateEngine() (*write.Engine, error) {
	if err := ws.check(); err != nil {
		return nil, err
	}
	return ws.engine, nil
}

// PriorState returns the state of the last successful cycle, or nil on
// the first cycle.
func (ws *WriteState) PriorState() (*read.Engine, error) {
	if err := ws.check(); err != nil {
		return nil, err
	}
	return ws.prior, nil
}
