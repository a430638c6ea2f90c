package master

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/scenesync/internal/cluster"
)

// NodeHealth is the health record the master keeps for one render node.
type NodeHealth struct {
	LastCheck        time.Time `json:"last_check"`
	LastHealthy      time.Time `json:"last_healthy"`
	NodeID           string    `json:"node_id"`
	Status           string    `json:"status"`
	ConsecutiveFails int       `json:"consecutive_fails"`
}

// HealthMonitor periodically probes every registered render node's /health
// endpoint. A node that fails maxFailures checks in a row is reported
// unhealthy; a later successful check reports it healthy again.
//
// Thread-safe: all methods are safe for concurrent access.
type HealthMonitor struct {
	nodes      map[string]*NodeHealth      // Current health record per render node
	httpClient *http.Client                // Client for GET /health probes
	checkFunc  func(addr string) error     // Probe, replaceable in tests
	onChange   func(nodeID, status string) // Called on healthy/unhealthy transitions
	ctx        context.Context             // Cancelled by Stop
	cancel     context.CancelFunc          // Cancel function for shutdown
	interval   time.Duration               // Time between probe rounds
	mu         sync.RWMutex                // Protects nodes
	wg         sync.WaitGroup              // Tracks the running check loop

	maxFailures int // Consecutive failures before a node is unhealthy
}

// NewHealthMonitor returns a monitor that probes nodes every interval with a
// 2 second per-request timeout.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &HealthMonitor{
		interval:    interval,
		maxFailures: 3,
		nodes:       make(map[string]*NodeHealth),
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetOnStatusChange registers a callback invoked, without the monitor's lock
// held, whenever a node transitions to healthy or unhealthy.
func (h *HealthMonitor) SetOnStatusChange(callback func(nodeID, status string)) {
	h.onChange = callback
}

// SetCheckFunction replaces the HTTP probe, mainly for tests.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(addr string) error) {
	h.checkFunc = checkFunc
}

// Start checks all nodes returned by nodeProvider once immediately and then
// every interval, until ctx is cancelled or Stop is called. It blocks.
func (h *HealthMonitor) Start(ctx context.Context, nodeProvider func() []cluster.NodeInfo) {
	h.wg.Add(1)
	defer h.wg.Done()
	h.run(ctx, nodeProvider)
}

// Run is Start in a background goroutine. The goroutine is registered before
// Run returns, so a following Stop always waits for it.
func (h *HealthMonitor) Run(ctx context.Context, nodeProvider func() []cluster.NodeInfo) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(ctx, nodeProvider)
	}()
}

func (h *HealthMonitor) run(ctx context.Context, nodeProvider func() []cluster.NodeInfo) {
	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("health monitor started with interval %v", h.interval)
	h.checkAllNodes(nodeProvider())

	for {
		select {
		case <-ticker.C:
			h.checkAllNodes(nodeProvider())
		case <-ctx.Done():
			log.Println("health monitor stopping")
			return
		case <-h.ctx.Done():
			log.Println("health monitor stopping")
			return
		}
	}
}

// Stop cancels the monitor and waits for Start to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) checkAllNodes(nodes []cluster.NodeInfo) {
	current := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		current[node.ID] = true
		h.checkNode(node)
	}

	h.mu.Lock()
	for nodeID := range h.nodes {
		if !current[nodeID] {
			delete(h.nodes, nodeID)
			log.Printf("render[%s] no longer monitored", nodeID)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkNode(node cluster.NodeInfo) {
	h.mu.Lock()
	health, exists := h.nodes[node.ID]
	if !exists {
		health = &NodeHealth{
			NodeID:      node.ID,
			Status:      cluster.StatusUnknown,
			LastHealthy: time.Now(),
		}
		h.nodes[node.ID] = health
	}
	h.mu.Unlock()

	// The probe runs without the lock so a slow node does not block readers.
	err := h.checkFunc(node.Addr)

	h.mu.Lock()
	previous := health.Status
	health.LastCheck = time.Now()
	if err != nil {
		health.ConsecutiveFails++
		log.Printf("render[%s] health check failed (%d/%d): %v",
			node.ID, health.ConsecutiveFails, h.maxFailures, err)
		if health.ConsecutiveFails >= h.maxFailures {
			health.Status = cluster.StatusUnhealthy
		}
	} else {
		health.Status = cluster.StatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
	}
	changed := health.Status != previous && health.Status != cluster.StatusUnknown
	status := health.Status
	h.mu.Unlock()

	if changed {
		log.Printf("render[%s] is now %s", node.ID, status)
		if h.onChange != nil {
			h.onChange(node.ID, status)
		}
	}
}

// defaultHealthCheck issues GET <addr>/health and expects 200 OK. Bare
// host:port addresses are treated as http.
func (h *HealthMonitor) defaultHealthCheck(addr string) error {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// GetNodeHealth returns a copy of a node's health record, or nil if the node
// is not monitored.
func (h *HealthMonitor) GetNodeHealth(nodeID string) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllNodeHealth returns copies of every health record keyed by node ID.
func (h *HealthMonitor) GetAllNodeHealth() map[string]*NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*NodeHealth, len(h.nodes))
	for id, health := range h.nodes {
		cp := *health
		result[id] = &cp
	}
	return result
}

// IsHealthy reports whether a node passed its most recent checks.
func (h *HealthMonitor) IsHealthy(nodeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	return exists && health.Status == cluster.StatusHealthy
}
