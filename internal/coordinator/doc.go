// Package coordinator implements the control plane of the shuffle cluster:
// it knows which nodes exist, where every producer's shuffle output lives,
// and which nodes have stopped answering.
//
// # Overview
//
// Producers (map tasks running on nodes) report a MapStatus when they finish:
// the node holding their output plus the number of bytes written for each
// reduce partition. Readers ask the coordinator for the location table of one
// (shuffle, partition) pair before fetching fragments.
//
//	┌─────────────────────────────────────┐
//	│            COORDINATOR              │
//	├─────────────────────────────────────┤
//	│  ┌──────────────────────────────┐   │
//	│  │  MapOutputTracker            │   │
//	│  │  - shuffle shape             │   │
//	│  │  - producer → node, sizes    │   │
//	│  └──────────────────────────────┘   │
//	│  ┌──────────────────────────────┐   │
//	│  │  HealthMonitor               │   │
//	│  │  - periodic /health probes   │   │
//	│  │  - lost node → drop outputs  │   │
//	│  └──────────────────────────────┘   │
//	└─────────────────────────────────────┘
//	         ▲                  │
//	 report  │                  │ locations
//	 output  │                  ▼
//	   ┌───────────┐      ┌───────────┐
//	   │ producer  │      │  reader   │
//	   └───────────┘      └───────────┘
//
// # Core Components
//
// MapOutputTracker: authoritative map of shuffle outputs. It implements
// shuffle.Resolver directly, so an in-process reader can use it without HTTP.
//
// HealthMonitor: probes nodes and calls back once when a node is declared
// lost. The coordinator wires that callback to RemoveOutputsOnNode so later
// resolutions report shuffle.ErrMissingOutput instead of pointing readers at
// a dead node.
//
// Client: HTTP access to a remote coordinator. It also implements
// shuffle.Resolver and maps the coordinator's 404 and 409 answers back to
// shuffle.ErrUnknownShuffle and shuffle.ErrMissingOutput.
//
// # Failure Handling
//
// A lost node's outputs are forgotten, not moved. Recomputing them is the
// job of whoever schedules producers; the tracker only refuses to hand out
// stale locations.
package coordinator
