package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/shuffleread/internal/cluster"
	"github.com/dreamware/shuffleread/internal/config"
	"github.com/dreamware/shuffleread/internal/coordinator"
	"github.com/dreamware/shuffleread/internal/shuffle"
)

func main() {
	addr := getenv("COORDINATOR_ADDR", ":8080")
	cfg, err := config.Load(os.Getenv("SHUFFLE_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	srv := newServer()
	monitor := coordinator.NewHealthMonitor(cfg.HealthInterval, cfg.HealthMaxFailures)
	monitor.SetOnNodeLost(srv.handleNodeLost)
	srv.monitor = monitor
	go monitor.Start(context.Background(), srv.listNodes)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("coordinator listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	monitor.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	log.Println("coordinator stopped")
}

type server struct {
	tracker *coordinator.MapOutputTracker
	monitor *coordinator.HealthMonitor
	nodes   []cluster.NodeInfo
	mu      sync.RWMutex
}

// newServer builds a coordinator with an empty tracker and node list.
func newServer() *server {
	return &server{tracker: coordinator.NewMapOutputTracker()}
}

// routes registers every coordinator endpoint.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /nodes", s.handleListNodes)
	mux.HandleFunc("GET /nodes/health", s.handleNodeHealth)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /shuffles", s.handleListShuffles)
	mux.HandleFunc("POST /shuffles", s.handleRegisterShuffle)
	mux.HandleFunc("DELETE /shuffles/{id}", s.handleUnregisterShuffle)
	mux.HandleFunc("POST /shuffles/{id}/outputs", s.handleReportOutput)
	mux.HandleFunc("GET /shuffles/{id}/locations/{partition}", s.handleLocations)
	return mux
}

func (s *server) listNodes() []cluster.NodeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]cluster.NodeInfo(nil), s.nodes...)
}

// handleNodeLost forgets every output the node was serving. The node stays
// registered so it is probed again and can recover.
func (s *server) handleNodeLost(nodeID string) {
	n := s.tracker.RemoveOutputsOnNode(nodeID)
	log.Printf("node %s lost: dropped %d map outputs", nodeID, n)
}

// handleRegister adds a node or updates the address of a known one.
//
// Endpoint: POST /register
//
// Response:
//   - 204 No Content: Node registered
//   - 400 Bad Request: Invalid JSON or missing id/addr
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Node.ID == "" || req.Node.Addr == "" {
		http.Error(w, "missing id/addr", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.nodes, func(n cluster.NodeInfo) bool { return n.ID == req.Node.ID })
	if idx >= 0 {
		s.nodes[idx] = req.Node
	} else {
		s.nodes = append(s.nodes, req.Node)
		log.Printf("registered node %s", req.Node)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListNodes returns every registered node.
//
// Endpoint: GET /nodes
func (s *server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}{Nodes: s.listNodes()})
}

// handleNodeHealth returns the health monitor's view keyed by node id.
//
// Endpoint: GET /nodes/health
func (s *server) handleNodeHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]*coordinator.NodeHealth{}
	if s.monitor != nil {
		health = s.monitor.GetAllNodeHealth()
	}
	writeJSON(w, http.StatusOK, health)
}

// handleListShuffles returns a summary of every registered shuffle.
//
// Endpoint: GET /shuffles
func (s *server) handleListShuffles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Shuffles []coordinator.ShuffleSummary `json:"shuffles"`
	}{Shuffles: s.tracker.Shuffles()})
}

// handleRegisterShuffle declares a shuffle's producer and partition counts.
//
// Endpoint: POST /shuffles
//
// Response:
//   - 204 No Content: Registered, or already registered with the same shape
//   - 400 Bad Request: Invalid JSON, invalid or conflicting shape
func (s *server) handleRegisterShuffle(w http.ResponseWriter, r *http.Request) {
	var req coordinator.RegisterShuffleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.tracker.RegisterShuffle(req.ShuffleID, req.Producers, req.Partitions); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("registered shuffle %d: producers=%d partitions=%d", req.ShuffleID, req.Producers, req.Partitions)
	w.WriteHeader(http.StatusNoContent)
}

// handleUnregisterShuffle forgets a shuffle and all of its map output.
//
// Endpoint: DELETE /shuffles/{id}
//
// Response:
//   - 204 No Content: Shuffle removed
//   - 404 Not Found: Shuffle unknown
func (s *server) handleUnregisterShuffle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if !s.tracker.UnregisterShuffle(id) {
		http.Error(w, shuffle.ErrUnknownShuffle.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReportOutput records a finished producer's MapStatus.
//
// Endpoint: POST /shuffles/{id}/outputs
//
// Response:
//   - 204 No Content: Output recorded
//   - 400 Bad Request: Invalid JSON, producer id or size vector
//   - 404 Not Found: Shuffle unknown
func (s *server) handleReportOutput(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var status coordinator.MapStatus
	if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.tracker.RegisterMapOutput(id, status); err != nil {
		http.Error(w, err.Error(), resolveStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLocations answers a reader's location query.
//
// Endpoint: GET /shuffles/{id}/locations/{partition}
//
// Response:
//   - 200 OK: coordinator.LocationsResponse
//   - 400 Bad Request: Invalid ids or partition out of range
//   - 404 Not Found: Shuffle unknown
//   - 409 Conflict: At least one producer has no output
func (s *server) handleLocations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	partition, ok := pathInt(w, r, "partition")
	if !ok {
		return
	}
	table, err := s.tracker.ResolveLocations(r.Context(), id, partition)
	if err != nil {
		http.Error(w, err.Error(), resolveStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, coordinator.LocationsResponse{
		ShuffleID:   id,
		PartitionID: partition,
		Locations:   table,
	})
}

// resolveStatus maps tracker errors to the codes coordinator.Client expects.
func resolveStatus(err error) int {
	switch {
	case errors.Is(err, shuffle.ErrUnknownShuffle):
		return http.StatusNotFound
	case errors.Is(err, shuffle.ErrMissingOutput):
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

// pathInt parses a numeric path segment, answering 400 when it is not one.
func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// getenv retrieves an environment variable with a default fallback value.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
