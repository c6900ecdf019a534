package coordinator

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/shuffleread/internal/cluster"
)

// HealthStatus is the monitor's view of a node.
type HealthStatus string

const (
	StatusUnknown HealthStatus = "unknown"
	StatusHealthy HealthStatus = "healthy"
	StatusLost    HealthStatus = "lost"
)

// NodeHealth is the health record of a single node.
// Copies are handed out; the monitor owns the originals.
type NodeHealth struct {
	LastCheck        time.Time    `json:"last_check"`
	LastHealthy      time.Time    `json:"last_healthy"`
	NodeID           string       `json:"node_id"`
	Status           HealthStatus `json:"status"`
	ConsecutiveFails int          `json:"consecutive_fails"`
}

// HealthMonitor polls every registered node's /health endpoint and declares a
// node lost after maxFailures consecutive failed probes. Losing a node fires
// the onNodeLost callback once per transition, which the coordinator uses to
// forget the map outputs that node was serving.
//
// Thread Safety: All exported methods are safe for concurrent use. Callbacks
// run on their own goroutine, never under the monitor's lock.
type HealthMonitor struct {
	nodes       map[string]*NodeHealth
	checkFunc   func(ctx context.Context, addr string) error
	onNodeLost  func(nodeID string)
	cancel      context.CancelFunc
	ctx         context.Context
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewHealthMonitor creates a monitor that probes every interval and marks a
// node lost after maxFailures consecutive failures. A non-positive
// maxFailures is treated as 1.
//
// Example:
//
//	monitor := NewHealthMonitor(5*time.Second, 3)
//	monitor.SetOnNodeLost(func(id string) { tracker.RemoveOutputsOnNode(id) })
//	go monitor.Start(ctx, nodes.List)
func NewHealthMonitor(interval time.Duration, maxFailures int) *HealthMonitor {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: maxFailures,
		nodes:       make(map[string]*NodeHealth),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetOnNodeLost registers the callback invoked when a node transitions to lost.
func (h *HealthMonitor) SetOnNodeLost(callback func(nodeID string)) {
	h.mu.Lock()
	h.onNodeLost = callback
	h.mu.Unlock()
}

// SetCheckFunction overrides the probe. Tests use it to script failures.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(ctx context.Context, addr string) error) {
	h.mu.Lock()
	h.checkFunc = checkFunc
	h.mu.Unlock()
}

// Start runs the probe loop until ctx or the monitor is cancelled.
// nodeProvider is called once per round to get the current membership.
func (h *HealthMonitor) Start(ctx context.Context, nodeProvider func() []cluster.NodeInfo) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("health monitor started: interval=%v max_failures=%d", h.interval, h.maxFailures)

	h.checkAllNodes(ctx, nodeProvider())
	for {
		select {
		case <-ticker.C:
			h.checkAllNodes(ctx, nodeProvider())
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop cancels the probe loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	log.Println("health monitor stopped")
}

// checkAllNodes probes each node and drops records for nodes that left.
func (h *HealthMonitor) checkAllNodes(ctx context.Context, nodes []cluster.NodeInfo) {
	current := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		current[node.ID] = true
		h.checkNode(ctx, node)
	}

	h.mu.Lock()
	for id := range h.nodes {
		if !current[id] {
			delete(h.nodes, id)
			log.Printf("node %s no longer monitored", id)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkNode(ctx context.Context, node cluster.NodeInfo) {
	h.mu.Lock()
	health, ok := h.nodes[node.ID]
	if !ok {
		now := time.Now()
		health = &NodeHealth{NodeID: node.ID, Status: StatusUnknown, LastCheck: now, LastHealthy: now}
		h.nodes[node.ID] = health
	}
	check := h.checkFunc
	h.mu.Unlock()

	if check == nil {
		check = h.probe
	}
	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	err := check(probeCtx, node.Addr)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()
	if err == nil {
		if health.Status == StatusLost {
			log.Printf("node %s recovered", node.ID)
		}
		health.Status = StatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
		return
	}

	health.ConsecutiveFails++
	log.Printf("health check failed for node %s (%d/%d): %v", node.ID, health.ConsecutiveFails, h.maxFailures, err)
	if health.ConsecutiveFails < h.maxFailures || health.Status == StatusLost {
		return
	}
	health.Status = StatusLost
	log.Printf("node %s lost after %d failed checks", node.ID, health.ConsecutiveFails)
	if h.onNodeLost != nil {
		go h.onNodeLost(node.ID)
	}
}

// probe issues GET {addr}/health through the shared cluster client.
func (h *HealthMonitor) probe(ctx context.Context, addr string) error {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	_, err := cluster.GetBytes(ctx, strings.TrimRight(url, "/")+"/health")
	return err
}

// GetNodeHealth returns a copy of the node's record, or nil when the node is
// not monitored.
func (h *HealthMonitor) GetNodeHealth(nodeID string) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, ok := h.nodes[nodeID]
	if !ok {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllNodeHealth returns copies of every record keyed by node id.
func (h *HealthMonitor) GetAllNodeHealth() map[string]*NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]*NodeHealth, len(h.nodes))
	for id, health := range h.nodes {
		cp := *health
		out[id] = &cp
	}
	return out
}

// IsHealthy reports whether the node's last probe succeeded.
func (h *HealthMonitor) IsHealthy(nodeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, ok := h.nodes[nodeID]
	return ok && health.Status == StatusHealthy
}
