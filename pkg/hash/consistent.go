// Package hash implements a SHA-256 consistent hash ring with virtual
// nodes. internal/memberd uses it to route a routing key to a sticky
// member endpoint within one server group, independent of pkg/pool's
// per-call rendezvous rotation across replicas.
//
// Adding or removing a node redistributes only the keys whose ring
// position falls in the affected arc, not the whole key space.
package hash

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
)

// DefaultVirtualNodes is the default number of virtual nodes per physical node.
// Virtual nodes help achieve better key distribution across the hash ring.
// A higher number provides better distribution but uses more memory.
const DefaultVirtualNodes = 150

// ConsistentHash implements a consistent hashing ring with virtual nodes.
// It provides thread-safe operations for adding/removing nodes and
// mapping keys to nodes in a distributed system.
//
// The hash ring uses SHA-256 for hashing and maintains virtual nodes
// to ensure better key distribution. When nodes are added or removed,
// only a fraction of keys need to be redistributed.
type ConsistentHash struct {
	mu           sync.RWMutex      // Protects all fields
	ring         map[uint32]string // Hash -> node mapping
	sortedHashes []uint32          // Sorted hash values for binary search
	nodes        map[string]bool   // Set of active nodes
	virtualNodes int               // Number of virtual nodes per physical node
}

// New creates a ConsistentHash with the given number of virtual nodes
// per member. If virtualNodes is <= 0, DefaultVirtualNodes is used.
func New(virtualNodes int) *ConsistentHash {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	return &ConsistentHash{
		ring:         make(map[uint32]string),
		nodes:        make(map[string]bool),
		virtualNodes: virtualNodes,
	}
}

// AddNode adds a member (typically "host:port") to the ring, placed at
// virtualNodes positions. A no-op if node is already present.
func (c *ConsistentHash) AddNode(node string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nodes[node] {
		return
	}

	c.nodes[node] = true
	for i := 0; i < c.virtualNodes; i++ {
		virtualKey := fmt.Sprintf("%s:%d", node, i)
		hash := c.hashKey(virtualKey)
		c.ring[hash] = node
		c.sortedHashes = append(c.sortedHashes, hash)
	}
	sort.Slice(c.sortedHashes, func(i, j int) bool {
		return c.sortedHashes[i] < c.sortedHashes[j]
	})
}

// RemoveNode removes node and all of its virtual positions from the
// ring. A no-op if node is not present.
func (c *ConsistentHash) RemoveNode(node string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.nodes[node] {
		return
	}

	delete(c.nodes, node)
	for i := 0; i < c.virtualNodes; i++ {
		virtualKey := fmt.Sprintf("%s:%d", node, i)
		hash := c.hashKey(virtualKey)
		delete(c.ring, hash)
	}

	var newSortedHashes []uint32
	for _, hash := range c.sortedHashes {
		if _, exists := c.ring[hash]; exists {
			newSortedHashes = append(newSortedHashes, hash)
		}
	}
	c.sortedHashes = newSortedHashes
}

// GetNode returns the node responsible for key, or "" if the ring is
// empty. The same key always maps to the same node until the ring's
// membership changes.
func (c *ConsistentHash) GetNode(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.ring) == 0 {
		return ""
	}

	hash := c.hashKey(key)
	idx := c.search(hash)
	return c.ring[c.sortedHashes[idx]]
}

// GetNodes returns every active node in the ring, in no particular order.
func (c *ConsistentHash) GetNodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	nodes := make([]string, 0, len(c.nodes))
	for node := range c.nodes {
		nodes = append(nodes, node)
	}
	return nodes
}

// search performs binary search to find the first hash >= the given hash.
// If no such hash exists, it wraps around to the first hash (index 0).
// This implements the circular nature of the hash ring.
func (c *ConsistentHash) search(hash uint32) int {
	idx := sort.Search(len(c.sortedHashes), func(i int) bool {
		return c.sortedHashes[i] >= hash
	})
	if idx == len(c.sortedHashes) {
		idx = 0
	}
	return idx
}

// hashKey computes a 32-bit hash of the given key using SHA-256.
// Only the first 4 bytes of the SHA-256 hash are used to create
// a 32-bit hash value for ring positioning.
func (c *ConsistentHash) hashKey(key string) uint32 {
	h := sha256.Sum256([]byte(key))
	return uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
}

// Stats reports the ring's current node count, virtual node count,
// and sorted-hash ring size, for diagnostics.
func (c *ConsistentHash) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"nodes":         len(c.nodes),
		"virtual_nodes": len(c.ring),
		"ring_size":     len(c.sortedHashes),
	}
}
