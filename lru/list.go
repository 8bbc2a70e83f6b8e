package lru

import (
	"fmt"
	"iter"
	"math"
)

const none int32 = -1

// node is one arena entry. Its index in List.nodes is its slot id.
type node[K comparable] struct {
	key  K
	used bool // false until the first miss binds a key

	// Arena links: head is MRU, tail is LRU.
	prev int32
	next int32
}

// List is a fixed pool of N slots ordered by recency of use.
// Create it with New; the zero value is not usable.
type List[K comparable] struct {
	nodes []node[K]
	index map[K]int32
	head  int32
	tail  int32
}

// New builds a List with capacity slots, all unused. The initial order is
// slot 0 at the head through slot capacity-1 at the tail, so the first miss
// is served by the highest slot.
func New[K comparable](capacity int) *List[K] {
	if capacity <= 0 {
		panic("lru: capacity must be > 0")
	}
	if capacity > math.MaxInt32 {
		panic("lru: capacity exceeds int32 range")
	}
	l := &List[K]{
		nodes: make([]node[K], capacity),
		index: make(map[K]int32, capacity),
		head:  0,
		tail:  int32(capacity - 1),
	}
	for i := range l.nodes {
		l.nodes[i].prev = int32(i) - 1
		l.nodes[i].next = int32(i) + 1
	}
	l.nodes[capacity-1].next = none
	return l
}

// Use returns the slot for key and makes it the most recently used.
//
// On a hit the resident node is moved to the head. On a miss the tail node is
// taken as victim: its old key leaves the lookup map, the node is rebound to
// key and moved to the head. Use never fails; detecting the miss (and moving
// payload) is the caller's job.
func (l *List[K]) Use(key K) int {
	i, ok := l.index[key]
	if !ok {
		i = l.tail
		n := &l.nodes[i]
		if n.used {
			delete(l.index, n.key)
		}
		n.key = key
		n.used = true
		l.index[key] = i
	}
	l.moveToFront(i)
	return int(i)
}

// Promote moves a resident key to the head and returns its slot.
// It panics if key is not resident: a caller that expects a hit and gets a
// miss has lost track of what the pool holds.
func (l *List[K]) Promote(key K) int {
	i, ok := l.index[key]
	if !ok {
		panic(fmt.Sprintf("lru: Promote of non-resident key %v", key))
	}
	l.moveToFront(i)
	return int(i)
}

// Lookup reports the slot bound to key without changing recency.
func (l *List[K]) Lookup(key K) (slot int, ok bool) {
	i, ok := l.index[key]
	return int(i), ok
}

// Victim returns the node a miss would rebind next. resident is false while
// the tail slot has never been bound, in which case key is the zero value.
func (l *List[K]) Victim() (key K, slot int, resident bool) {
	n := &l.nodes[l.tail]
	return n.key, int(l.tail), n.used
}

// Len returns the number of resident keys.
func (l *List[K]) Len() int { return len(l.index) }

// Cap returns the fixed number of slots.
func (l *List[K]) Cap() int { return len(l.nodes) }

// Keys yields resident keys from most to least recently used.
// The list must not be modified during iteration.
func (l *List[K]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for i := l.head; i != none; i = l.nodes[i].next {
			n := &l.nodes[i]
			if !n.used {
				continue
			}
			if !yield(n.key) {
				return
			}
		}
	}
}

// moveToFront relinks node i at the head in O(1).
func (l *List[K]) moveToFront(i int32) {
	if i == l.head {
		return
	}
	n := &l.nodes[i]
	// detach; i is not the head, so prev is valid
	l.nodes[n.prev].next = n.next
	if i == l.tail {
		l.tail = n.prev
	} else {
		l.nodes[n.next].prev = n.prev
	}
	// splice before the old head
	n.prev = none
	n.next = l.head
	l.nodes[l.head].prev = i
	l.head = i
}
