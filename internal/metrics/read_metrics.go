// Package metrics collects counters for reduce-side shuffle reads.
package metrics

import (
	"sync/atomic"
	"time"
)

// ReadMetrics accumulates shuffle read statistics. All methods are safe for
// concurrent use; fetch goroutines and the consuming goroutine update it
// at the same time.
type ReadMetrics struct {
	localFragments  atomic.Int64
	localBytes      atomic.Int64
	remoteFragments atomic.Int64
	remoteBytes     atomic.Int64
	failedFragments atomic.Int64
	records         atomic.Int64
	fetchTimeNanos  atomic.Int64
	streamsFinished atomic.Int64
}

// Snapshot is a point-in-time copy of ReadMetrics.
type Snapshot struct {
	LocalFragments  int64         `json:"local_fragments"`
	LocalBytes      int64         `json:"local_bytes"`
	RemoteFragments int64         `json:"remote_fragments"`
	RemoteBytes     int64         `json:"remote_bytes"`
	FailedFragments int64         `json:"failed_fragments"`
	Records         int64         `json:"records"`
	FetchTime       time.Duration `json:"fetch_time_ns"`
	StreamsFinished int64         `json:"streams_finished"`
}

// New returns zeroed counters.
func New() *ReadMetrics {
	return &ReadMetrics{}
}

// LocalFetched records a fragment served from the node's own store.
func (m *ReadMetrics) LocalFetched(bytes int) {
	m.localFragments.Add(1)
	m.localBytes.Add(int64(bytes))
}

// RemoteFetched records a fragment pulled from another node.
func (m *ReadMetrics) RemoteFetched(bytes int) {
	m.remoteFragments.Add(1)
	m.remoteBytes.Add(int64(bytes))
}

// FetchFailed counts one fragment fetch that ended in an error.
func (m *ReadMetrics) FetchFailed() {
	m.failedFragments.Add(1)
}

// RecordsRead adds n consumed records.
func (m *ReadMetrics) RecordsRead(n int) {
	m.records.Add(int64(n))
}

// FetchTime adds the duration of one fragment fetch, measured from its
// dispatch to its completion. Time the consumer spends waiting is not
// included.
func (m *ReadMetrics) FetchTime(d time.Duration) {
	m.fetchTimeNanos.Add(int64(d))
}

// Finish is the completion hook for one stream.
func (m *ReadMetrics) Finish() {
	m.streamsFinished.Add(1)
}

// Snapshot copies the current counter values. Counters keep moving while
// the copy is taken, so fields may be from slightly different instants.
func (m *ReadMetrics) Snapshot() Snapshot {
	return Snapshot{
		LocalFragments:  m.localFragments.Load(),
		LocalBytes:      m.localBytes.Load(),
		RemoteFragments: m.remoteFragments.Load(),
		RemoteBytes:     m.remoteBytes.Load(),
		FailedFragments: m.failedFragments.Load(),
		Records:         m.records.Load(),
		FetchTime:       time.Duration(m.fetchTimeNanos.Load()),
		StreamsFinished: m.streamsFinished.Load(),
	}
}
