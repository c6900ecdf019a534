// Package storage keeps the shuffle fragments a node's map tasks produced,
// so that reduce-side reads, local or remote, can fetch them.
//
// # Overview
//
// Every fragment is addressed by its shuffle.FragmentID (shuffle, producer,
// partition). A map task writes one fragment per reduce partition; a later
// attempt of the same producer simply overwrites its predecessor's output.
//
//	┌─────────────────────────────────────┐
//	│   fetch.Engine (local fast path)    │
//	│   node HTTP API (remote fetches)    │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│           storage.Store             │
//	│ Get / Put / Delete / DeleteShuffle  │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│            MemoryStore              │
//	└─────────────────────────────────────┘
//
// # Concurrency
//
// MemoryStore guards its map with a sync.RWMutex. Reads take the shared
// lock, writes the exclusive one, and values are copied on the way in and
// out so callers can never alias stored bytes. Served/miss counters are
// atomics and are read without the lock.
//
// # Persistence
//
// Fragments live only in memory and vanish with the process. That is the
// failure mode reduce-side reads are built to detect: a fetch for a lost
// fragment returns ErrFragmentNotFound (HTTP 404 remotely), which the reader
// turns into an attributed fetch failure.
package storage
