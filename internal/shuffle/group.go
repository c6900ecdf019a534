package shuffle

import "github.com/dreamware/shuffleread/internal/cluster"

// FragmentRequest is one fragment to fetch together with its expected size.
type FragmentRequest struct {
	ID   FragmentID
	Size int64
}

// RequestGroup batches every fragment that lives on one source node.
type RequestGroup struct {
	Node      cluster.NodeInfo
	Fragments []FragmentRequest
}

// Bytes is the total size of the group's fragments.
func (g RequestGroup) Bytes() int64 {
	var total int64
	for _, f := range g.Fragments {
		total += f.Size
	}
	return total
}

// Group partitions a location table into one RequestGroup per distinct
// source node. Groups appear in the order their node first occurs in the
// table and fragments keep table order inside a group, so the result is
// deterministic. Every producer appears in exactly one group.
func Group(shuffleID, partitionID int, table LocationTable) []RequestGroup {
	groups := make([]RequestGroup, 0)
	index := make(map[string]int)
	for producerID, loc := range table {
		req := FragmentRequest{
			ID:   FragmentID{ShuffleID: shuffleID, ProducerID: producerID, PartitionID: partitionID},
			Size: loc.Size,
		}
		i, ok := index[loc.Node.ID]
		if !ok {
			i = len(groups)
			index[loc.Node.ID] = i
			groups = append(groups, RequestGroup{Node: loc.Node})
		}
		groups[i].Fragments = append(groups[i].Fragments, req)
	}
	return groups
}
