package shuffle

import (
	"context"
	"errors"

	"github.com/dreamware/shuffleread/internal/cluster"
)

var (
	// ErrUnknownShuffle is returned by a Resolver that has never heard of
	// the requested shuffle.
	ErrUnknownShuffle = errors.New("unknown shuffle")

	// ErrMissingOutput is returned by a Resolver when at least one producer
	// has no registered output, typically because its node was lost.
	ErrMissingOutput = errors.New("missing map output")
)

// LocationEntry says where one producer's fragment lives and how large it is.
type LocationEntry struct {
	Node cluster.NodeInfo `json:"node"`
	Size int64            `json:"size"`
}

// LocationTable is indexed by producer id: table[i] describes the fragment
// written by producer i. It is treated as immutable once resolved.
type LocationTable []LocationEntry

// Lookup returns the entry for producerID.
func (t LocationTable) Lookup(producerID int) (LocationEntry, bool) {
	if producerID < 0 || producerID >= len(t) {
		return LocationEntry{}, false
	}
	return t[producerID], true
}

// TotalBytes is the sum of all fragment sizes.
func (t LocationTable) TotalBytes() int64 {
	var total int64
	for _, e := range t {
		total += e.Size
	}
	return total
}

// Resolver answers where the fragments of one shuffle partition live.
// Implementations may block on a remote lookup and must return an error
// wrapping ErrUnknownShuffle when the shuffle is not known.
type Resolver interface {
	ResolveLocations(ctx context.Context, shuffleID, partitionID int) (LocationTable, error)
}
