package read

import (
	"fmt"
	"io"
	"runtime"

	"github.com/hupe1980/stratum/internal/varint"
	"github.com/hupe1980/stratum/record"
	"github.com/hupe1980/stratum/schema"
	"golang.org/x/sync/errgroup"
)

type addedRecord struct {
	ordinal int
	data    []byte
}

// decodedType is the validated content of one type in a blob body.
type decodedType struct {
	wire      schema.Schema
	schema    schema.Schema
	numShards int
	removed   []int
	added     []addedRecord
}

type shardResult struct {
	removed []int
	added   []addedRecord
}

// decodeBody parses and validates a whole blob body. Types excluded by f
// are skipped and field filters are applied to object records.
func decodeBody(body []byte, delta bool, f *Filter) ([]*decodedType, error) {
	d := varint.NewDecoder(body)
	n := d.VInt()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: type count: %w", ErrCorrupt, unexpected(err))
	}
	if int(n) > d.Remaining() {
		return nil, fmt.Errorf("%w: type count %d exceeds body", ErrCorrupt, n)
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	var types []*decodedType
	var results [][]shardResult
	seen := make(map[string]bool, n)

	for range n {
		wire, err := schema.Read(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		name := wire.Name()
		if seen[name] {
			return nil, corrupt(name, "type appears twice")
		}
		seen[name] = true

		numShards := int(d.VInt())
		if d.Err() == nil && (numShards < 1 || numShards&(numShards-1) != 0 || numShards > d.Remaining()+1) {
			return nil, corrupt(name, "invalid shard count %d", numShards)
		}
		shards := make([][]byte, 0, numShards)
		for range numShards {
			l := d.VLong()
			if d.Err() == nil && l > uint64(d.Remaining()) {
				return nil, corrupt(name, "shard length %d exceeds body: %v", l, io.ErrUnexpectedEOF)
			}
			shards = append(shards, d.Raw(int(l)))
		}
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, name, unexpected(err))
		}
		if !f.IncludesType(name) {
			continue
		}

		exposed := wire
		if obj, ok := wire.(*schema.ObjectSchema); ok && f.restrictsFields(name) {
			exposed = obj.Project(func(field string) bool { return f.IncludesField(name, field) })
		}
		dt := &decodedType{wire: wire, schema: exposed, numShards: numShards}
		types = append(types, dt)
		res := make([]shardResult, numShards)
		results = append(results, res)

		for i, payload := range shards {
			g.Go(func() error {
				r, err := decodeShard(dt, i, payload, delta)
				if err != nil {
					return err
				}
				res[i] = r
				return nil
			})
		}
	}
	if d.Remaining() != 0 {
		_ = g.Wait()
		return nil, fmt.Errorf("%w: %d trailing bytes after last type", ErrCorrupt, d.Remaining())
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, dt := range types {
		for _, r := range results[i] {
			dt.removed = append(dt.removed, r.removed...)
			dt.added = append(dt.added, r.added...)
		}
	}
	return types, nil
}

func decodeShard(dt *decodedType, shard int, payload []byte, delta bool) (shardResult, error) {
	var res shardResult
	name := dt.wire.Name()
	mask := dt.numShards - 1
	d := varint.NewDecoder(payload)

	// next reads a gap-encoded ordinal and checks its shard.
	last := 0
	next := func(first bool) (int, error) {
		gap := int(d.VInt())
		if err := d.Err(); err != nil {
			return 0, fmt.Errorf("%w: %s shard %d: %w", ErrCorrupt, name, shard, unexpected(err))
		}
		if !first && gap == 0 {
			return 0, corrupt(name, "duplicate ordinal %d in shard %d", last, shard)
		}
		o := last + gap
		if o&mask != shard {
			return 0, corrupt(name, "ordinal %d does not belong to shard %d", o, shard)
		}
		last = o
		return o, nil
	}

	if delta {
		n := int(d.VInt())
		if d.Err() == nil && n > d.Remaining() {
			return res, corrupt(name, "removal count %d exceeds shard", n)
		}
		res.removed = make([]int, 0, n)
		for i := range n {
			o, err := next(i == 0)
			if err != nil {
				return res, err
			}
			res.removed = append(res.removed, o)
		}
	}

	n := int(d.VInt())
	if d.Err() == nil && n > d.Remaining() {
		return res, corrupt(name, "record count %d exceeds shard", n)
	}
	last = 0
	res.added = make([]addedRecord, 0, n)
	for i := range n {
		o, err := next(i == 0)
		if err != nil {
			return res, err
		}
		data := d.Bytes()
		if err := d.Err(); err != nil {
			return res, fmt.Errorf("%w: %s[%d]: %w", ErrCorrupt, name, o, unexpected(err))
		}
		if err := record.Validate(dt.wire, data); err != nil {
			return res, fmt.Errorf("%w: %s[%d]: %w", ErrCorrupt, name, o, err)
		}
		if dt.schema != dt.wire {
			data, err = record.ProjectObject(dt.wire.(*schema.ObjectSchema), dt.schema.(*schema.ObjectSchema), data)
			if err != nil {
				return res, fmt.Errorf("%w: %s[%d]: %w", ErrCorrupt, name, o, err)
			}
		}
		res.added = append(res.added, addedRecord{ordinal: o, data: data})
	}
	if err := d.Err(); err != nil {
		return res, fmt.Errorf("%w: %s shard %d: %w", ErrCorrupt, name, shard, unexpected(err))
	}
	if d.Remaining() != 0 {
		return res, corrupt(name, "%d trailing bytes in shard %d", d.Remaining(), shard)
	}
	return res, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
