package master

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/scenesync/internal/cluster"
)

// TestRegistryRegister covers insert, upsert and validation
func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	added, err := r.Register(cluster.NodeInfo{ID: "render-1", Addr: "http://a"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.Register(cluster.NodeInfo{ID: "render-2", Addr: "http://b"})
	require.NoError(t, err)
	assert.True(t, added)

	require.True(t, r.SetStatus("render-1", cluster.StatusHealthy))

	// Re-registering keeps the slot and status and updates the address.
	added, err = r.Register(cluster.NodeInfo{ID: "render-1", Addr: "http://c", Status: cluster.StatusUnhealthy})
	require.NoError(t, err)
	assert.False(t, added)

	nodes := r.List()
	require.Len(t, nodes, 2)
	assert.Equal(t, cluster.NodeInfo{ID: "render-1", Addr: "http://c", Status: cluster.StatusHealthy}, nodes[0])
	assert.Equal(t, cluster.NodeInfo{ID: "render-2", Addr: "http://b", Status: cluster.StatusUnknown}, nodes[1])

	for _, bad := range []cluster.NodeInfo{{ID: "x"}, {Addr: "http://x"}, {}} {
		_, err := r.Register(bad)
		assert.ErrorIs(t, err, ErrInvalidNode)
	}
	assert.Equal(t, 2, r.Len())
}

// TestRegistryRemoveAndGet covers lookups and removals
func TestRegistryRemoveAndGet(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		_, err := r.Register(cluster.NodeInfo{ID: fmt.Sprintf("n%d", i), Addr: "http://x"})
		require.NoError(t, err)
	}

	assert.True(t, r.Remove("n1"))
	assert.False(t, r.Remove("n1"))
	assert.False(t, r.SetStatus("n1", cluster.StatusHealthy))

	_, ok := r.Get("n1")
	assert.False(t, ok)

	n, ok := r.Get("n2")
	require.True(t, ok)
	assert.Equal(t, "n2", n.ID)

	ids := []string{}
	for _, n := range r.List() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"n0", "n2"}, ids)
}

// TestRegistryListIsCopy verifies callers cannot mutate registry storage
func TestRegistryListIsCopy(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register(cluster.NodeInfo{ID: "n", Addr: "http://x"})

	list := r.List()
	list[0].Addr = "changed"

	n, _ := r.Get("n")
	assert.Equal(t, "http://x", n.Addr)
}

// TestRegistryConcurrent registers from many goroutines
func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Register(cluster.NodeInfo{ID: fmt.Sprintf("n%d", i%10), Addr: "http://x"})
			_ = r.List()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, r.Len())
}
