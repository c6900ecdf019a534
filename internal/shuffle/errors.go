package shuffle

import (
	"fmt"

	"github.com/dreamware/shuffleread/internal/cluster"
)

// FetchFailedError attributes a failed fragment fetch to the producer that
// wrote it and the node that held it. Schedulers use it to decide which
// producer to recompute.
type FetchFailedError struct {
	Node        cluster.NodeInfo
	ShuffleID   int
	ProducerID  int
	PartitionID int
	Err         error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed: shuffle %d producer %d partition %d from node %s: %v",
		e.ShuffleID, e.ProducerID, e.PartitionID, e.Node.ID, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// Fragment returns the id of the fragment that could not be fetched.
func (e *FetchFailedError) Fragment() FragmentID {
	return FragmentID{ShuffleID: e.ShuffleID, ProducerID: e.ProducerID, PartitionID: e.PartitionID}
}

// ContractViolationError reports an outcome the reader cannot attribute to
// any requested fragment. It is never worth retrying.
type ContractViolationError struct {
	Block BlockID
	Err   error
}

func (e *ContractViolationError) Error() string {
	name := "<nil>"
	if e.Block != nil {
		name = e.Block.BlockName()
	}
	return fmt.Sprintf("transport contract violation on block %s: %v", name, e.Err)
}

func (e *ContractViolationError) Unwrap() error { return e.Err }
