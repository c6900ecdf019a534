// Package shuffle implements the read side of a shuffle: given a shuffle id
// and a reduce partition it finds the producers of every input fragment,
// groups the requests by source node, hands them to a Transport under an
// in-flight byte budget and exposes the fetched records as one lazy Stream.
//
// # Pipeline
//
//	Resolver ──► LocationTable ──► Group ──► []RequestGroup
//	                                              │
//	                                              ▼
//	Stream[T] ◄── Deserializer[T] ◄── translate ◄── Transport.Fetch ─► Results
//
// # Failures
//
// A failed fragment surfaces on the pull that reaches it, as a
// *FetchFailedError naming the source node, shuffle, producer and partition,
// so the scheduler can recompute exactly that producer. An outcome reported
// for anything that is not one of the requested fragments is a
// *ContractViolationError: the transport broke its contract and there is
// nothing to recompute. Reader performs no retries.
//
// # Completion
//
// The hook passed to Reader.Read runs exactly once per stream, whether the
// stream is drained, closed early, fails, or its context is cancelled.
package shuffle
