// Package main implements the shuffle node service. A node runs map tasks
// that write partitioned fragments into its local store, serves those
// fragments to peers, and performs reduce-side reads that pull one partition
// from every producer in the cluster.
//
// Architecture:
//
//	┌─────────────────────────────────────────────┐
//	│                    Node                     │
//	├─────────────────────────────────────────────┤
//	│  HTTP API:                                  │
//	│    /health                       liveness   │
//	│    /info                         stats      │
//	│    /fragments/{s}/{p}/{r}        fragments  │
//	│    /map/{s}/{p}?partitions=N     map task   │
//	│    /partitions/{s}/{r}           read       │
//	├─────────────────────────────────────────────┤
//	│  Components:                                │
//	│    storage.MemoryStore   local fragments    │
//	│    fetch.Engine          local + remote I/O │
//	│    shuffle.Reader        record stream      │
//	│    coordinator.Client    locations, reports │
//	└─────────────────────────────────────────────┘
//
// Configuration:
//   - NODE_ID: Unique node identifier (required)
//   - NODE_LISTEN: Listen address (default: ":8081")
//   - NODE_ADDR: Public address for peers (default: "http://127.0.0.1:8081")
//   - COORDINATOR_ADDR: Coordinator URL (required)
//   - SHUFFLE_CONFIG: Optional YAML file, see internal/config
//
// Example usage:
//
//	NODE_ID=node-1 NODE_LISTEN=:8081 NODE_ADDR=http://localhost:8081 \
//	COORDINATOR_ADDR=http://localhost:8080 ./node
//
//	# Run producer 0 of shuffle 1 with 4 reduce partitions
//	curl -X POST 'localhost:8081/map/1/0?partitions=4' \
//	  --data-binary $'{"key":"a","value":"1"}\n{"key":"b","value":"2"}'
//
//	# Read reduce partition 2
//	curl localhost:8081/partitions/1/2
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/shuffleread/internal/cluster"
	"github.com/dreamware/shuffleread/internal/codec"
	"github.com/dreamware/shuffleread/internal/config"
	"github.com/dreamware/shuffleread/internal/coordinator"
	"github.com/dreamware/shuffleread/internal/fetch"
	"github.com/dreamware/shuffleread/internal/metrics"
	"github.com/dreamware/shuffleread/internal/shuffle"
	"github.com/dreamware/shuffleread/internal/storage"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// outputReporter records finished map output with the coordinator.
type outputReporter interface {
	ReportMapOutput(ctx context.Context, shuffleID int, status coordinator.MapStatus) error
}

// Node is the runtime state of one worker.
type Node struct {
	Info     cluster.NodeInfo
	store    *storage.MemoryStore
	metrics  *metrics.ReadMetrics
	reporter outputReporter
	reader   *shuffle.Reader[codec.KeyValue]
	codec    codec.JSONLines[codec.KeyValue]
}

// NewNode wires a node's store, fetch engine and reader. resolver answers
// location queries for reads; reporter receives map output after map tasks.
func NewNode(info cluster.NodeInfo, resolver shuffle.Resolver, reporter outputReporter, cfg config.Config) *Node {
	n := &Node{
		Info:     info,
		store:    storage.NewMemoryStore(),
		metrics:  metrics.New(),
		reporter: reporter,
	}
	engine := &fetch.Engine{
		LocalNode:     info.ID,
		Local:         n.store,
		Remote:        fetch.HTTPClient{},
		MaxConcurrent: cfg.MaxConcurrentFetches,
		FetchTimeout:  cfg.FetchTimeout,
		Metrics:       n.metrics,
	}
	n.reader = shuffle.NewReader[codec.KeyValue](resolver, engine, n.codec, cfg.MaxBytesInFlight())
	return n
}

func (n *Node) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /info", n.handleInfo)
	mux.HandleFunc("PUT /fragments/{shuffle}/{producer}/{partition}", n.handlePutFragment)
	mux.HandleFunc("GET /fragments/{shuffle}/{producer}/{partition}", n.handleGetFragment)
	mux.HandleFunc("DELETE /fragments/{shuffle}", n.handleDeleteShuffle)
	mux.HandleFunc("POST /map/{shuffle}/{producer}", n.handleMap)
	mux.HandleFunc("GET /partitions/{shuffle}/{partition}", n.handleReadPartition)
	return mux
}

func main() {
	nodeID := mustGetenv("NODE_ID")
	listen := getenv("NODE_LISTEN", ":8081")
	public := getenv("NODE_ADDR", "http://127.0.0.1:8081")
	coord := mustGetenv("COORDINATOR_ADDR")

	cfg, err := config.Load(os.Getenv("SHUFFLE_CONFIG"))
	if err != nil {
		logFatal("config: %v", err)
	}

	client := coordinator.NewClient(coord)
	node := NewNode(cluster.NodeInfo{ID: nodeID, Addr: public}, client, client, cfg)
	log.Printf("node[%s] initialized: max_in_flight=%dMB max_concurrent_fetches=%d",
		nodeID, cfg.MaxMBInFlight, cfg.MaxConcurrentFetches)

	s := &http.Server{
		Addr:              listen,
		Handler:           node.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("node[%s] listening on %s (public %s)", nodeID, listen, public)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	register(context.Background(), client, node.Info)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("node stopped")
}

// register announces the node to the coordinator, retrying while the
// coordinator starts up. Persistent failure is fatal.
func register(ctx context.Context, client *coordinator.Client, node cluster.NodeInfo) {
	var lastErr error
	for i := 0; i < 10; i++ {
		lastErr = client.RegisterNode(ctx, node)
		if lastErr == nil {
			log.Printf("registered with coordinator @ %s", client.BaseURL)
			return
		}
		log.Printf("register retry %d: %v", i+1, lastErr)
		time.Sleep(400 * time.Millisecond)
	}
	logFatal("failed to register with coordinator: %v", lastErr)
}

func (n *Node) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		NodeID string             `json:"node_id"`
		Store  storage.StoreStats `json:"store"`
		Reads  metrics.Snapshot   `json:"reads"`
	}{
		NodeID: n.Info.ID,
		Store:  n.store.Stats(),
		Reads:  n.metrics.Snapshot(),
	})
}

func (n *Node) handlePutFragment(w http.ResponseWriter, r *http.Request) {
	id, ok := fragmentFromPath(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if err := n.store.Put(id, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleGetFragment(w http.ResponseWriter, r *http.Request) {
	id, ok := fragmentFromPath(w, r)
	if !ok {
		return
	}
	data, err := n.store.Get(id)
	if errors.Is(err, storage.ErrFragmentNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(data); err != nil {
		log.Printf("Error writing fragment %s: %v", id.BlockName(), err)
	}
}

func (n *Node) handleDeleteShuffle(w http.ResponseWriter, r *http.Request) {
	shuffleID, ok := pathInt(w, r, "shuffle")
	if !ok {
		return
	}
	removed := n.store.DeleteShuffle(shuffleID)
	log.Printf("node[%s] dropped %d fragments of shuffle %d", n.Info.ID, removed, shuffleID)
	w.WriteHeader(http.StatusNoContent)
}

// handleMap runs one map task: it hash-partitions the posted records, stores
// one fragment per reduce partition and reports the sizes to the coordinator.
//
// Endpoint: POST /map/{shuffle}/{producer}?partitions=N
//
// Response:
//   - 200 OK: MapStatus as registered
//   - 400 Bad Request: Invalid path, partition count or record
//   - 404 Not Found: Coordinator does not know the shuffle
//   - 502 Bad Gateway: Reporting to the coordinator failed otherwise
func (n *Node) handleMap(w http.ResponseWriter, r *http.Request) {
	shuffleID, ok := pathInt(w, r, "shuffle")
	if !ok {
		return
	}
	producerID, ok := pathInt(w, r, "producer")
	if !ok {
		return
	}
	partitions, err := strconv.Atoi(r.URL.Query().Get("partitions"))
	if err != nil || partitions <= 0 {
		http.Error(w, "partitions must be a positive integer", http.StatusBadRequest)
		return
	}

	buckets := make([][]codec.KeyValue, partitions)
	partitioner := shuffle.HashPartitioner{Partitions: partitions}
	it := n.codec.Deserialize(r.Body)
	for it.Next() {
		kv := it.Record()
		p := partitioner.Partition(kv.Key)
		buckets[p] = append(buckets[p], kv)
	}
	if err := it.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := coordinator.MapStatus{ProducerID: producerID, Node: n.Info, Sizes: make([]int64, partitions)}
	for p, records := range buckets {
		var buf bytes.Buffer
		if err := n.codec.Encode(&buf, records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		id := shuffle.FragmentID{ShuffleID: shuffleID, ProducerID: producerID, PartitionID: p}
		if err := n.store.Put(id, buf.Bytes()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		status.Sizes[p] = int64(buf.Len())
	}

	if err := n.reporter.ReportMapOutput(r.Context(), shuffleID, status); err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, shuffle.ErrUnknownShuffle) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	log.Printf("node[%s] map shuffle %d producer %d: %d partitions written", n.Info.ID, shuffleID, producerID, partitions)
	writeJSON(w, http.StatusOK, status)
}

// readFailure is the body returned when a read fails on a fragment fetch.
// It names the source so the scheduler can recompute the producer.
type readFailure struct {
	Error       string `json:"error"`
	NodeID      string `json:"node_id"`
	NodeAddr    string `json:"node_addr"`
	ShuffleID   int    `json:"shuffle_id"`
	ProducerID  int    `json:"producer_id"`
	PartitionID int    `json:"partition_id"`
}

// handleReadPartition reads one reduce partition from every producer and
// returns the records as JSON lines. The partition is drained before any
// byte is written so a mid-stream failure still gets a proper status.
//
// Endpoint: GET /partitions/{shuffle}/{partition}
//
// Response:
//   - 200 OK: JSON lines of {"key","value"}
//   - 404 Not Found: Unknown shuffle
//   - 409 Conflict: Missing map output, or a fetch failed (readFailure body)
//   - 500 Internal Server Error: Transport contract violation or bad data
//   - 502 Bad Gateway: Location lookup failed otherwise
func (n *Node) handleReadPartition(w http.ResponseWriter, r *http.Request) {
	shuffleID, ok := pathInt(w, r, "shuffle")
	if !ok {
		return
	}
	partitionID, ok := pathInt(w, r, "partition")
	if !ok {
		return
	}

	stream, err := n.reader.Read(r.Context(), shuffleID, partitionID, n.metrics.Finish)
	if err != nil {
		switch {
		case errors.Is(err, shuffle.ErrUnknownShuffle):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, shuffle.ErrMissingOutput):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
		return
	}
	defer stream.Close()

	var records []codec.KeyValue
	for stream.Next() {
		records = append(records, stream.Record())
	}
	n.metrics.RecordsRead(len(records))

	if err := stream.Err(); err != nil {
		var fetchErr *shuffle.FetchFailedError
		if errors.As(err, &fetchErr) {
			writeJSON(w, http.StatusConflict, readFailure{
				Error:       err.Error(),
				NodeID:      fetchErr.Node.ID,
				NodeAddr:    fetchErr.Node.Addr,
				ShuffleID:   fetchErr.ShuffleID,
				ProducerID:  fetchErr.ProducerID,
				PartitionID: fetchErr.PartitionID,
			})
			return
		}
		log.Printf("node[%s] read shuffle %d partition %d: %v", n.Info.ID, shuffleID, partitionID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := n.codec.Encode(w, records); err != nil {
		log.Printf("Error writing partition: %v", err)
	}
}

func fragmentFromPath(w http.ResponseWriter, r *http.Request) (shuffle.FragmentID, bool) {
	var id shuffle.FragmentID
	var ok bool
	if id.ShuffleID, ok = pathInt(w, r, "shuffle"); !ok {
		return id, false
	}
	if id.ProducerID, ok = pathInt(w, r, "producer"); !ok {
		return id, false
	}
	if id.PartitionID, ok = pathInt(w, r, "partition"); !ok {
		return id, false
	}
	return id, true
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil || v < 0 {
		http.Error(w, fmt.Sprintf("invalid %s", name), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

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

// mustGetenv retrieves a required environment variable and calls logFatal
// when it is unset.
func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
