package shuffle

import (
	"errors"
	"io"
	"log"
)

var (
	errUnrequested = errors.New("block was not requested")
	errDuplicate   = errors.New("fragment delivered twice")
	errNoData      = errors.New("successful outcome without data")
	errMissing     = errors.New("transport ended without an outcome for fragment")
)

// translator classifies outcomes for one shuffle partition read. Node
// attribution always comes from the location table, never from the request
// groups.
type translator struct {
	readID      string
	table       LocationTable
	shuffleID   int
	partitionID int
	seen        map[int]bool
}

func newTranslator(readID string, table LocationTable, shuffleID, partitionID int) *translator {
	return &translator{
		readID:      readID,
		table:       table,
		shuffleID:   shuffleID,
		partitionID: partitionID,
		seen:        make(map[int]bool, len(table)),
	}
}

// translate returns the fragment body of a successful outcome, a
// *FetchFailedError for a failed fragment, or a *ContractViolationError for
// anything else.
func (t *translator) translate(o Outcome) (io.ReadCloser, error) {
	id, ok := o.Block.(FragmentID)
	if !ok {
		return nil, t.violation(o, o.Err)
	}
	loc, known := t.table.Lookup(id.ProducerID)
	if !known || id.ShuffleID != t.shuffleID || id.PartitionID != t.partitionID {
		return nil, t.violation(o, errUnrequested)
	}
	if t.seen[id.ProducerID] {
		return nil, t.violation(o, errDuplicate)
	}
	t.seen[id.ProducerID] = true

	if o.Err != nil {
		closeQuietly(o.Data)
		err := &FetchFailedError{
			Node:        loc.Node,
			ShuffleID:   id.ShuffleID,
			ProducerID:  id.ProducerID,
			PartitionID: id.PartitionID,
			Err:         o.Err,
		}
		log.Printf("shuffle read %s: %v", t.readID, err)
		return nil, err
	}
	if o.Data == nil {
		return nil, t.violation(o, errNoData)
	}
	return o.Data, nil
}

// checkComplete is called once the transport reports the end of its
// results. Every producer in the table must have been seen exactly once.
func (t *translator) checkComplete() error {
	if len(t.seen) == len(t.table) {
		return nil
	}
	for producerID := range t.table {
		if t.seen[producerID] {
			continue
		}
		id := FragmentID{ShuffleID: t.shuffleID, ProducerID: producerID, PartitionID: t.partitionID}
		return t.violation(Outcome{Block: id}, errMissing)
	}
	return nil
}

func (t *translator) violation(o Outcome, cause error) error {
	closeQuietly(o.Data)
	if cause == nil {
		cause = errUnrequested
	}
	err := &ContractViolationError{Block: o.Block, Err: cause}
	log.Printf("shuffle read %s: %v", t.readID, err)
	return err
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
