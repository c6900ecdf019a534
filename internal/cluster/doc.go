// Package cluster holds the identity of worker nodes and the small HTTP/JSON
// helpers every service in the cluster uses to talk to its peers.
//
// # Overview
//
// A cluster is one coordinator and any number of worker nodes. Nodes
// register with the coordinator (POST /register) and are probed by it
// (GET /health). Map tasks running on a node leave shuffle fragments in the
// node's local fragment store; reduce-side reads on other nodes pull those
// fragments over HTTP.
//
//	              ┌──────────────────────┐
//	              │     Coordinator      │
//	              │ - node table         │
//	              │ - map output tracker │
//	              │ - health monitor     │
//	              └──────────┬───────────┘
//	                         │ locations
//	      ┌──────────────────┼──────────────────┐
//	┌─────▼─────┐      ┌─────▼─────┐      ┌─────▼─────┐
//	│  Node A   │◄────►│  Node B   │◄────►│  Node C   │
//	│ fragments │ fetch│ fragments │ fetch│ fragments │
//	└───────────┘      └───────────┘      └───────────┘
//
// # Errors
//
// Non-2xx answers are reported as *HTTPError so callers can map status codes
// back to domain errors (a 404 from the coordinator means the shuffle is
// unknown, a 404 from a node means the fragment is gone).
//
// # Timeouts
//
// The shared client carries a 30 second ceiling; callers bound individual
// calls with their context.
package cluster
