package master

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/scenesync/internal/cluster"
)

// ErrInvalidNode is returned when a registration lacks an ID or address.
var ErrInvalidNode = errors.New("node id and addr are required")

// Registry tracks the render nodes that have registered with the master, in
// registration order.
//
// Thread-safe: all methods may be called concurrently.
type Registry struct {
	mu    sync.RWMutex
	nodes []cluster.NodeInfo
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a node, or replaces the address of a node with the same ID.
// It reports whether the node is new. A re-registering node keeps its place
// and its last known status: status only changes through SetStatus, since the
// health monitor reports transitions, not repeats. A status in n is ignored.
func (r *Registry) Register(n cluster.NodeInfo) (bool, error) {
	if n.ID == "" || n.Addr == "" {
		return false, ErrInvalidNode
	}
	n.Status = cluster.StatusUnknown

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.nodes, func(x cluster.NodeInfo) bool { return x.ID == n.ID })
	if idx >= 0 {
		n.Status = r.nodes[idx].Status
		r.nodes[idx] = n
		return false, nil
	}
	r.nodes = append(r.nodes, n)
	return true, nil
}

// Remove forgets a node. It reports whether the node was known.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.nodes, func(x cluster.NodeInfo) bool { return x.ID == id })
	if idx < 0 {
		return false
	}
	r.nodes = slices.Delete(r.nodes, idx, idx+1)
	return true
}

// Get returns the node with the given ID.
func (r *Registry) Get(id string) (cluster.NodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := slices.IndexFunc(r.nodes, func(x cluster.NodeInfo) bool { return x.ID == id })
	if idx < 0 {
		return cluster.NodeInfo{}, false
	}
	return r.nodes[idx], true
}

// SetStatus records a health status for a node. It reports whether the node
// was known.
func (r *Registry) SetStatus(id, status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.nodes, func(x cluster.NodeInfo) bool { return x.ID == id })
	if idx < 0 {
		return false
	}
	r.nodes[idx].Status = status
	return true
}

// List returns a copy of all registered nodes.
func (r *Registry) List() []cluster.NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.nodes)
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
