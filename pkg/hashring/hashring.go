/*
Package hashring implements a consistent-hashing ring with virtual nodes
over a 32-bit position space. Lookups use binary search to the next
position at or after a key's hash, not modular reduction against ring
length, since that's the choice whose own property tests (monotonic
movement on add, minimal movement on remove)
only hold under binary-search semantics, so that's what this package
implements.
*/
package hashring

import (
	"crypto/sha256"
	"errors"
	"math/rand"
	"sort"
	"sync"

	"github.com/cuemby/ballast/pkg/metrics"
)

// ErrEmptyRing is raised by operations that require at least one server.
var ErrEmptyRing = errors.New("hashring: ring is empty")

// ErrUnknownServer is raised when deleting or querying a server id the ring
// doesn't own.
var ErrUnknownServer = errors.New("hashring: unknown server")

// ErrEmptyKey is raised when hashing an empty key.
var ErrEmptyKey = errors.New("hashring: key must be non-empty")

const ringSpace = uint64(1) << 32

// vnode is one position on the ring and the server id that owns it.
type vnode struct {
	position uint32
	server   string
}

// Ring is a consistent-hashing ring of virtual nodes. All mutating methods
// take the ring's lock exclusively; GetServer takes a read lock so lookups
// proceed concurrently with each other.
type Ring struct {
	mu    sync.RWMutex
	name  string
	rand  *rand.Rand
	nodes []vnode             // sorted by position
	owned map[string][]uint32 // server -> its positions (unsorted)
}

// New builds a ring from an initial server list, drawing vnodesPerServer
// random positions for each. rnd may be nil to use a private source seeded
// with 1, so a nil rnd always yields the same ring; tests pass a seeded
// *rand.Rand for determinism.
func New(name string, servers []string, vnodesPerServer int, rnd *rand.Rand) (*Ring, error) {
	if len(servers) == 0 || vnodesPerServer <= 0 {
		return nil, ErrEmptyRing
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}

	r := &Ring{
		name:  name,
		rand:  rnd,
		owned: make(map[string][]uint32),
	}
	for _, s := range servers {
		for i := 0; i < vnodesPerServer; i++ {
			pos := uint32(rnd.Uint64() % ringSpace)
			r.nodes = append(r.nodes, vnode{position: pos, server: s})
			r.owned[s] = append(r.owned[s], pos)
		}
	}
	sort.Slice(r.nodes, func(i, j int) bool { return r.nodes[i].position < r.nodes[j].position })
	metrics.RingServersTotal.WithLabelValues(r.name).Set(float64(len(servers)))
	return r, nil
}

// HashKey reduces the SHA-256 digest of key's UTF-8 bytes modulo 2^32.
func HashKey(key string) (uint32, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	sum := sha256.Sum256([]byte(key))
	var high uint64
	for _, b := range sum[len(sum)-8:] {
		high = high<<8 | uint64(b)
	}
	return uint32(high % ringSpace), nil
}

// GetServer returns the server owning the ring index at or after key's
// hash (binary search, wrapping to index 0 past the last position).
func (r *Ring) GetServer(key string) (string, error) {
	h, err := HashKey(key)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.nodes) == 0 {
		return "", ErrEmptyRing
	}

	i := sort.Search(len(r.nodes), func(i int) bool { return r.nodes[i].position >= h })
	if i == len(r.nodes) {
		i = 0
	}
	return r.nodes[i].server, nil
}

// gapAfter returns the modular arc length from r.nodes[i] to its successor.
func (r *Ring) gapAfter(i int) uint64 {
	n := len(r.nodes)
	next := (i + 1) % n
	if next == i {
		return ringSpace
	}
	start := uint64(r.nodes[i].position)
	end := uint64(r.nodes[next].position)
	if end > start {
		return end - start
	}
	return ringSpace - start + end
}

// InsertVnode places a new position for server at the midpoint of the
// ring's largest gap. Returns the new position.
func (r *Ring) InsertVnode(server string) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertVnodeLocked(server)
}

func (r *Ring) insertVnodeLocked(server string) (uint32, error) {
	if len(r.nodes) == 0 {
		return 0, ErrEmptyRing
	}

	widest := 0
	widestGap := r.gapAfter(0)
	for i := 1; i < len(r.nodes); i++ {
		if g := r.gapAfter(i); g > widestGap {
			widest, widestGap = i, g
		}
	}

	newPos := uint32((uint64(r.nodes[widest].position) + widestGap/2) % ringSpace)

	insertAt := sort.Search(len(r.nodes), func(i int) bool { return r.nodes[i].position >= newPos })
	r.nodes = append(r.nodes, vnode{})
	copy(r.nodes[insertAt+1:], r.nodes[insertAt:])
	r.nodes[insertAt] = vnode{position: newPos, server: server}
	r.owned[server] = append(r.owned[server], newPos)

	return newPos, nil
}

// InsertServer registers the caller-supplied server id and inserts
// vnodesPerServer vnodes for it. An id already on the ring is rejected.
func (r *Ring) InsertServer(id string, vnodesPerServer int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.owned[id]; exists {
		return errors.New("hashring: server already present")
	}
	r.owned[id] = nil
	for i := 0; i < vnodesPerServer; i++ {
		if _, err := r.insertVnodeLocked(id); err != nil {
			return err
		}
	}
	metrics.RingServersTotal.WithLabelValues(r.name).Set(float64(len(r.owned)))
	return nil
}

// DeleteServer removes id, transferring its positions (and therefore the
// key ranges they owned) to the server owning the index immediately after
// id's maximum position, modularly.
func (r *Ring) DeleteServer(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	positions, ok := r.owned[id]
	if !ok {
		return ErrUnknownServer
	}
	if len(r.nodes) == len(positions) {
		return errors.New("hashring: cannot delete the only server")
	}

	maxPos := positions[0]
	for _, p := range positions {
		if p > maxPos {
			maxPos = p
		}
	}

	i := sort.Search(len(r.nodes), func(i int) bool { return r.nodes[i].position > maxPos })
	if i == len(r.nodes) {
		i = 0
	}
	var successor string
	for {
		if r.nodes[i].server != id {
			successor = r.nodes[i].server
			break
		}
		i = (i + 1) % len(r.nodes)
	}

	// Relabel id's positions to successor instead of removing them from
	// r.nodes: the ring's invariant is that owned-index sets partition
	// {0, ..., |ring|-1} (spec.md §3), so a deleted server's positions must
	// keep a new owner on the ring, not vanish from it. Removing them here
	// while still recording them under owned[successor] would leave that
	// server's capacity query summing gaps for positions no longer on the
	// ring, breaking the §8 capacity-conservation property.
	for idx := range r.nodes {
		if r.nodes[idx].server == id {
			r.nodes[idx].server = successor
		}
	}

	r.owned[successor] = append(r.owned[successor], positions...)
	delete(r.owned, id)
	metrics.RingServersTotal.WithLabelValues(r.name).Set(float64(len(r.owned)))
	metrics.RingKeyMovesTotal.WithLabelValues(r.name).Add(float64(len(positions)))
	return nil
}

// GetServerCapacity sums the modular arc length owned by id's positions.
func (r *Ring) GetServerCapacity(id string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	positions, ok := r.owned[id]
	if !ok {
		return 0, ErrUnknownServer
	}
	index := make(map[uint32]int, len(r.nodes))
	for i, n := range r.nodes {
		index[n.position] = i
	}

	var total uint64
	for _, p := range positions {
		total += r.gapAfter(index[p])
	}
	return total, nil
}

// Servers returns the current server ids, sorted.
func (r *Ring) Servers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.owned))
	for id := range r.owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

