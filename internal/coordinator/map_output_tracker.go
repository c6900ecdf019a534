package coordinator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/shuffleread/internal/cluster"
	"github.com/dreamware/shuffleread/internal/shuffle"
)

// MapStatus is what a finished producer task reports: where its output
// lives and how many bytes it wrote for each reduce partition.
//
// Sizes has one entry per reduce partition of the shuffle; a zero entry means
// the producer emitted nothing for that partition.
type MapStatus struct {
	ProducerID int              `json:"producer_id"`
	Node       cluster.NodeInfo `json:"node"`
	Sizes      []int64          `json:"sizes"`
}

// ShuffleSummary describes one registered shuffle for listings.
type ShuffleSummary struct {
	ShuffleID  int `json:"shuffle_id"`
	Producers  int `json:"producers"`
	Partitions int `json:"partitions"`
	Available  int `json:"available"` // producers whose output is registered
}

type shuffleOutputs struct {
	partitions int
	statuses   []*MapStatus // indexed by producer id, nil while missing
}

// MapOutputTracker is the authoritative record of where every producer's
// shuffle output lives. It answers reduce-side location queries and forgets
// output held by nodes that are declared lost.
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│            MapOutputTracker              │
//	├──────────────────────────────────────────┤
//	│  shuffles: shuffleID → producer statuses │
//	│  status:   node + size per partition     │
//	├──────────────────────────────────────────┤
//	│  (shuffle, partition) → LocationTable    │
//	│  table[producer] = (node, size)          │
//	└──────────────────────────────────────────┘
//
// Concurrency Model:
//   - Reads (ResolveLocations, Shuffles) take the read lock
//   - Registrations and removals take the write lock
//   - Returned tables are freshly built and owned by the caller
type MapOutputTracker struct {
	shuffles map[int]*shuffleOutputs
	mu       sync.RWMutex
}

// NewMapOutputTracker creates an empty tracker.
func NewMapOutputTracker() *MapOutputTracker {
	return &MapOutputTracker{
		shuffles: make(map[int]*shuffleOutputs),
	}
}

// RegisterShuffle declares a shuffle with numProducers map tasks writing
// numPartitions reduce partitions each.
//
// Registering the same shuffle again with the same shape is a no-op, so
// drivers can retry the call safely. A different shape is rejected.
//
// Parameters:
//   - shuffleID: identifier chosen by the driver
//   - numProducers: number of map tasks (may be zero)
//   - numPartitions: number of reduce partitions (must be > 0)
//
// Returns:
//   - nil on success
//   - Error for invalid shapes or a conflicting registration
func (t *MapOutputTracker) RegisterShuffle(shuffleID, numProducers, numPartitions int) error {
	if numProducers < 0 {
		return fmt.Errorf("shuffle %d: producer count must not be negative, got %d", shuffleID, numProducers)
	}
	if numPartitions <= 0 {
		return fmt.Errorf("shuffle %d: partition count must be positive, got %d", shuffleID, numPartitions)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.shuffles[shuffleID]; ok {
		if len(existing.statuses) == numProducers && existing.partitions == numPartitions {
			return nil
		}
		return fmt.Errorf("shuffle %d already registered with %d producers and %d partitions",
			shuffleID, len(existing.statuses), existing.partitions)
	}
	t.shuffles[shuffleID] = &shuffleOutputs{
		partitions: numPartitions,
		statuses:   make([]*MapStatus, numProducers),
	}
	return nil
}

// RegisterMapOutput records the output of one producer. A later attempt of
// the same producer replaces the earlier status.
//
// Returns:
//   - shuffle.ErrUnknownShuffle if the shuffle was never registered
//   - Error if the producer id, node or size vector is invalid
func (t *MapOutputTracker) RegisterMapOutput(shuffleID int, status MapStatus) error {
	if status.Node.ID == "" {
		return errors.New("map status without node id")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	outputs, ok := t.shuffles[shuffleID]
	if !ok {
		return fmt.Errorf("shuffle %d: %w", shuffleID, shuffle.ErrUnknownShuffle)
	}
	if status.ProducerID < 0 || status.ProducerID >= len(outputs.statuses) {
		return fmt.Errorf("shuffle %d: producer %d out of range [0, %d)", shuffleID, status.ProducerID, len(outputs.statuses))
	}
	if len(status.Sizes) != outputs.partitions {
		return fmt.Errorf("shuffle %d: producer %d reported %d partition sizes, want %d",
			shuffleID, status.ProducerID, len(status.Sizes), outputs.partitions)
	}

	stored := status
	stored.Sizes = slices.Clone(status.Sizes)
	outputs.statuses[status.ProducerID] = &stored
	return nil
}

// UnregisterShuffle forgets a shuffle. It reports whether it existed.
func (t *MapOutputTracker) UnregisterShuffle(shuffleID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.shuffles[shuffleID]
	delete(t.shuffles, shuffleID)
	return ok
}

// RemoveOutputsOnNode drops every status that points at nodeID and returns
// how many were dropped. Reads that need those producers fail resolution with
// shuffle.ErrMissingOutput until the producers are recomputed.
func (t *MapOutputTracker) RemoveOutputsOnNode(nodeID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, outputs := range t.shuffles {
		for i, s := range outputs.statuses {
			if s != nil && s.Node.ID == nodeID {
				outputs.statuses[i] = nil
				removed++
			}
		}
	}
	return removed
}

// ResolveLocations implements shuffle.Resolver.
//
// Returns:
//   - Table indexed by producer id with the node and size for partitionID
//   - shuffle.ErrUnknownShuffle if the shuffle is not registered
//   - shuffle.ErrMissingOutput if any producer has no registered output
//   - Error if partitionID is out of range
func (t *MapOutputTracker) ResolveLocations(_ context.Context, shuffleID, partitionID int) (shuffle.LocationTable, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	outputs, ok := t.shuffles[shuffleID]
	if !ok {
		return nil, fmt.Errorf("shuffle %d: %w", shuffleID, shuffle.ErrUnknownShuffle)
	}
	if partitionID < 0 || partitionID >= outputs.partitions {
		return nil, fmt.Errorf("shuffle %d: partition %d out of range [0, %d)", shuffleID, partitionID, outputs.partitions)
	}

	table := make(shuffle.LocationTable, len(outputs.statuses))
	for producerID, s := range outputs.statuses {
		if s == nil {
			return nil, fmt.Errorf("shuffle %d producer %d: %w", shuffleID, producerID, shuffle.ErrMissingOutput)
		}
		table[producerID] = shuffle.LocationEntry{Node: s.Node, Size: s.Sizes[partitionID]}
	}
	return table, nil
}

// Shuffles lists registered shuffles ordered by id.
func (t *MapOutputTracker) Shuffles() []ShuffleSummary {
	t.mu.RLock()
	out := make([]ShuffleSummary, 0, len(t.shuffles))
	for id, outputs := range t.shuffles {
		available := 0
		for _, s := range outputs.statuses {
			if s != nil {
				available++
			}
		}
		out = append(out, ShuffleSummary{
			ShuffleID:  id,
			Producers:  len(outputs.statuses),
			Partitions: outputs.partitions,
			Available:  available,
		})
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b ShuffleSummary) int { return cmp.Compare(a.ShuffleID, b.ShuffleID) })
	return out
}
