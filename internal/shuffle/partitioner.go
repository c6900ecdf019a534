package shuffle

import "github.com/spaolacci/murmur3"

// HashPartitioner assigns keys to reduce partitions by murmur3 hash.
type HashPartitioner struct {
	Partitions int
}

// Partition returns the partition in [0, Partitions) that owns key.
func (p HashPartitioner) Partition(key string) int {
	if p.Partitions <= 1 {
		return 0
	}
	return int(murmur3.Sum32([]byte(key)) % uint32(p.Partitions))
}
