// Package dedupe maps idempotency keys to the job they first created, so
// a resubmitted request returns the existing job instead of starting a new
// run.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Index records which job owns an idempotency key.
type Index interface {
	// Claim atomically binds key to jobID unless the key is already bound.
	// It returns the owning job id and whether this call claimed the key.
	Claim(ctx context.Context, key, jobID string) (owner string, claimed bool)

	// Lookup returns the job bound to key.
	Lookup(ctx context.Context, key string) (string, bool)

	// Release unbinds key, allowing it to be claimed again. It is used when
	// the claimed job could not be queued.
	Release(ctx context.Context, key string)

	Size() int64
}

// node is one entry in the insertion-ordered list.
type node struct {
	key   string
	jobID string
	next  *node
}

func (n *node) reset() {
	n.key = ""
	n.jobID = ""
	n.next = nil
}

// inMemoryIndex keeps keys in a map plus a singly linked list ordered from
// newest (head) to oldest. When bounded, the oldest key is evicted first.
type inMemoryIndex struct {
	mu       sync.RWMutex
	seen     map[string]*node
	head     *node
	maxSize  int // <= 0 means unbounded
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryIndex creates a new in-memory index with configuration options.
func NewInMemoryIndex(opts ...Option) Index {
	d := &inMemoryIndex{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*node)
	d.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return d
}

// Claim binds key to jobID unless it is already bound.
func (d *inMemoryIndex) Claim(ctx context.Context, key, jobID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, exists := d.seen[key]; exists {
		return n.jobID, false
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}

	n := d.nodePool.Get().(*node)
	n.key = key
	n.jobID = jobID
	n.next = d.head
	d.head = n
	d.seen[key] = n
	d.size.Add(1)
	return jobID, true
}

// Lookup returns the job bound to key.
func (d *inMemoryIndex) Lookup(ctx context.Context, key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.seen[key]
	if !ok {
		return "", false
	}
	return n.jobID, true
}

// Release removes key from the index.
func (d *inMemoryIndex) Release(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, exists := d.seen[key]
	if !exists {
		return
	}
	delete(d.seen, key)

	if d.head == n {
		d.head = n.next
	} else {
		current := d.head
		for current != nil && current.next != n {
			current = current.next
		}
		if current != nil {
			current.next = n.next
		}
	}

	n.reset()
	d.nodePool.Put(n)
	d.size.Add(-1)
}

// evictOldest removes the tail of the list. Must be called with d.mu held.
func (d *inMemoryIndex) evictOldest() {
	if d.head == nil {
		return
	}

	if d.head.next == nil {
		n := d.head
		delete(d.seen, n.key)
		d.head = nil
		n.reset()
		d.nodePool.Put(n)
		d.size.Add(-1)
		return
	}

	prev := d.head
	for prev.next.next != nil {
		prev = prev.next
	}
	tail := prev.next
	prev.next = nil
	delete(d.seen, tail.key)
	tail.reset()
	d.nodePool.Put(tail)
	d.size.Add(-1)
}

// Size returns the current number of keys.
func (d *inMemoryIndex) Size() int64 {
	return d.size.Load()
}
