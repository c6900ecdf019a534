package shuffle

import "fmt"

// BlockID names a stored block. Shuffle fragments are one kind of block;
// transports may store other kinds alongside them.
type BlockID interface {
	BlockName() string
}

// FragmentID identifies the slice of one producer task's output destined
// for one reduce partition.
type FragmentID struct {
	ShuffleID   int `json:"shuffle_id"`
	ProducerID  int `json:"producer_id"`
	PartitionID int `json:"partition_id"`
}

// BlockName follows the shuffle_<shuffle>_<producer>_<partition> layout.
func (f FragmentID) BlockName() string {
	return fmt.Sprintf("shuffle_%d_%d_%d", f.ShuffleID, f.ProducerID, f.PartitionID)
}

func (f FragmentID) String() string { return f.BlockName() }

// StoredBlockID is any block that is not a shuffle fragment, for example a
// cached dataset partition.
type StoredBlockID struct {
	Name string
}

func (b StoredBlockID) BlockName() string { return b.Name }

func (b StoredBlockID) String() string { return b.Name }
