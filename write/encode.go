package write

import (
	"runtime"

	"github.com/hupe1980/stratum/internal/bitset"
	"github.com/hupe1980/stratum/internal/varint"
	"github.com/hupe1980/stratum/schema"
	"golang.org/x/sync/errgroup"
)

type bodyKind int

const (
	snapshotBody bodyKind = iota
	deltaBody
	reverseDeltaBody
)

// typeBody collects the encoded shards of one type.
type typeBody struct {
	schema schema.Schema
	shards [][]byte
}

// encode builds a blob body. Layout:
//
//	type count    vint
//	per type      schema, shard count vint, then per shard a vlong length
//	              followed by the shard payload
//
// A snapshot shard holds a record count and gap-encoded ordinals each
// followed by the length-prefixed record. A delta shard holds the removed
// ordinals, gap encoded, then the added records in snapshot layout.
// Ordinal o belongs to shard o & (shards-1).
func (e *Engine) encode(kind bodyKind) ([]byte, error) {
	var bodies []*typeBody

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, s := range e.sortedSchemas() {
		ts := e.types[s.Name()]

		var removed, added *bitset.BitSet
		switch kind {
		case snapshotBody:
			added = ts.current
		case deltaBody:
			if !ts.changed() {
				continue
			}
			removed = ts.previous.AndNot(ts.current)
			added = ts.current.AndNot(ts.previous)
		case reverseDeltaBody:
			if !ts.changed() {
				continue
			}
			removed = ts.current.AndNot(ts.previous)
			added = ts.previous.AndNot(ts.current)
		}

		n := max(ts.numShards, 1)
		tb := &typeBody{schema: s, shards: make([][]byte, n)}
		bodies = append(bodies, tb)

		removedBy := splitShards(removed, n)
		addedBy := splitShards(added, n)
		for i := range n {
			g.Go(func() error {
				var buf []byte
				if kind != snapshotBody {
					buf = appendOrdinals(buf, removedBy[i])
				}
				tb.shards[i] = ts.appendRecords(buf, addedBy[i])
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	size := 8
	for _, tb := range bodies {
		for _, sh := range tb.shards {
			size += len(sh) + 8
		}
	}
	body := make([]byte, 0, size)
	body = varint.AppendVInt(body, uint32(len(bodies)))
	for _, tb := range bodies {
		body = schema.Append(body, tb.schema)
		body = varint.AppendVInt(body, uint32(len(tb.shards)))
		for _, sh := range tb.shards {
			body = varint.AppendVLong(body, uint64(len(sh)))
			body = append(body, sh...)
		}
	}
	return body, nil
}

func splitShards(set *bitset.BitSet, n int) [][]int {
	out := make([][]int, n)
	if set == nil {
		return out
	}
	mask := n - 1
	for o := range set.All() {
		out[o&mask] = append(out[o&mask], o)
	}
	return out
}

func appendOrdinals(dst []byte, ordinals []int) []byte {
	dst = varint.AppendVInt(dst, uint32(len(ordinals)))
	last := 0
	for _, o := range ordinals {
		dst = varint.AppendVInt(dst, uint32(o-last))
		last = o
	}
	return dst
}

func (t *TypeState) appendRecords(dst []byte, ordinals []int) []byte {
	dst = varint.AppendVInt(dst, uint32(len(ordinals)))
	last := 0
	for _, o := range ordinals {
		dst = varint.AppendVInt(dst, uint32(o-last))
		dst = varint.AppendBytes(dst, t.records[o])
		last = o
	}
	return dst
}
