package shuffle

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// DefaultMaxBytesInFlight is used when a Reader is built with a
// non-positive budget.
const DefaultMaxBytesInFlight int64 = 48 << 20

// Reader orchestrates reduce-side reads of shuffle partitions. It is bound
// to its collaborators at construction and holds no other state, so one
// Reader may serve concurrent reads.
type Reader[T any] struct {
	resolver         Resolver
	transport        Transport
	deserializer     Deserializer[T]
	maxBytesInFlight int64
}

// NewReader builds a Reader. maxBytesInFlight caps the bytes of fragments
// fetched but not yet consumed.
func NewReader[T any](resolver Resolver, transport Transport, deserializer Deserializer[T], maxBytesInFlight int64) *Reader[T] {
	if maxBytesInFlight <= 0 {
		maxBytesInFlight = DefaultMaxBytesInFlight
	}
	return &Reader[T]{
		resolver:         resolver,
		transport:        transport,
		deserializer:     deserializer,
		maxBytesInFlight: maxBytesInFlight,
	}
}

// MaxBytesInFlight returns the budget handed to the transport.
func (r *Reader[T]) MaxBytesInFlight() int64 {
	return r.maxBytesInFlight
}

// Read resolves the fragments of partitionID in shuffleID, starts fetching
// them and returns the merged record stream. Resolution errors are returned
// as-is (wrapped) and no stream is created. onFinished, if non-nil, runs
// exactly once when the returned stream ends for any reason.
func (r *Reader[T]) Read(ctx context.Context, shuffleID, partitionID int, onFinished func()) (*Stream[T], error) {
	if r.resolver == nil || r.transport == nil || r.deserializer == nil {
		return nil, errors.New("shuffle reader is missing a collaborator")
	}
	readID := uuid.NewString()

	table, err := r.resolver.ResolveLocations(ctx, shuffleID, partitionID)
	if err != nil {
		return nil, fmt.Errorf("resolve shuffle %d partition %d: %w", shuffleID, partitionID, err)
	}

	groups := Group(shuffleID, partitionID, table)
	log.Printf("shuffle read %s: shuffle %d partition %d: %d fragments (%d bytes) on %d nodes",
		readID, shuffleID, partitionID, len(table), table.TotalBytes(), len(groups))

	var results Results = emptyResults{}
	if len(groups) > 0 {
		results = r.transport.Fetch(ctx, groups, r.maxBytesInFlight)
	}
	tr := newTranslator(readID, table, shuffleID, partitionID)
	return newStream(ctx, results, tr, r.deserializer, onFinished), nil
}

// ReadAll drains a partition into memory. It is meant for small partitions
// and tests.
func (r *Reader[T]) ReadAll(ctx context.Context, shuffleID, partitionID int) ([]T, error) {
	stream, err := r.Read(ctx, shuffleID, partitionID, nil)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out []T
	for stream.Next() {
		out = append(out, stream.Record())
	}
	return out, stream.Err()
}
