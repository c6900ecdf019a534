package storage

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dreamware/shuffleread/internal/shuffle"
)

// ErrFragmentNotFound is returned when a fragment is not held by the store
var ErrFragmentNotFound = errors.New("fragment not found")

// Store holds the shuffle fragments written by map tasks on this node
// All implementations must be thread-safe for concurrent access
type Store interface {
	// Get returns a copy of the fragment bytes
	// Returns ErrFragmentNotFound if the fragment doesn't exist
	Get(id shuffle.FragmentID) ([]byte, error)

	// Put stores a fragment, replacing any previous attempt's output
	Put(id shuffle.FragmentID, data []byte) error

	// Delete removes one fragment
	// No error if the fragment doesn't exist
	Delete(id shuffle.FragmentID) error

	// DeleteShuffle removes every fragment of a shuffle and returns how many were removed
	DeleteShuffle(shuffleID int) int

	// List returns the held fragments ordered by shuffle, producer, partition
	List() []shuffle.FragmentID

	// Stats returns storage statistics
	Stats() StoreStats
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Fragments int    `json:"fragments"` // Number of fragments held
	Bytes     int    `json:"bytes"`     // Total size of all fragments in bytes
	Served    uint64 `json:"served"`    // Successful Get calls
	Misses    uint64 `json:"misses"`    // Get calls for absent fragments
}

// MemoryStore implements Store with in-memory storage
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[shuffle.FragmentID][]byte
	served atomic.Uint64
	misses atomic.Uint64
}

// NewMemoryStore creates a new in-memory fragment store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[shuffle.FragmentID][]byte),
	}
}

// Get returns a copy of the fragment to prevent external modification
func (m *MemoryStore) Get(id shuffle.FragmentID) ([]byte, error) {
	m.mu.RLock()
	value, exists := m.data[id]
	m.mu.RUnlock()
	if !exists {
		m.misses.Add(1)
		return nil, ErrFragmentNotFound
	}

	m.served.Add(1)
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Put stores a copy of data under id
func (m *MemoryStore) Put(id shuffle.FragmentID, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = stored
	return nil
}

// Delete removes a fragment (idempotent)
func (m *MemoryStore) Delete(id shuffle.FragmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

// DeleteShuffle drops all fragments of one shuffle
func (m *MemoryStore) DeleteShuffle(shuffleID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id := range m.data {
		if id.ShuffleID == shuffleID {
			delete(m.data, id)
			removed++
		}
	}
	return removed
}

// List returns the fragment ids in a stable order
func (m *MemoryStore) List() []shuffle.FragmentID {
	m.mu.RLock()
	ids := make([]shuffle.FragmentID, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.ShuffleID != b.ShuffleID {
			return a.ShuffleID < b.ShuffleID
		}
		if a.ProducerID != b.ProducerID {
			return a.ProducerID < b.ProducerID
		}
		return a.PartitionID < b.PartitionID
	})
	return ids
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalBytes := 0
	for _, value := range m.data {
		totalBytes += len(value)
	}

	return StoreStats{
		Fragments: len(m.data),
		Bytes:     totalBytes,
		Served:    m.served.Load(),
		Misses:    m.misses.Load(),
	}
}
