// Package mpsc implements a bounded-batch multi-producer, single-consumer
// queue: an intrusive singly linked list whose tail is spliced under a
// mutex by producers and whose head is walked lock-free by the one
// consumer, with availability published in batches through a shared
// counter rather than per-item.
package mpsc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/outofforest/mass"
)

// DefaultBatchSize is the number of pushed items a producer accumulates
// locally before publishing them to the consumer in one atomic add.
const DefaultBatchSize = 64

type node[T any] struct {
	item T
	next *node[T]
}

// Queue is the shared MPSC queue. It owns no goroutines; producers and the
// consumer are obtained from it and driven by the caller.
type Queue[T any] struct {
	mass           *mass.Mass[node[T]]
	mu             sync.Mutex
	tail           **node[T]
	availableCount *uint64
	batchSize      uint64
}

// New creates a queue pooling its intrusive nodes through a mass allocator
// sized for expectedItems, publishing producer batches of batchSize (or
// DefaultBatchSize if 0).
func New[T any](expectedItems uint64, batchSize uint64) *Queue[T] {
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}

	head := &node[T]{}
	return &Queue[T]{
		mass:           mass.New[node[T]](expectedItems),
		tail:           &head,
		availableCount: lo.ToPtr[uint64](0),
		batchSize:      batchSize,
	}
}

// NewProducer mints a producer token. Each producer accumulates its own
// pending count and only touches the shared availableCount when its batch
// fills or it is explicitly flushed, keeping the hot path free of
// contention beyond the tail-splice mutex.
func (q *Queue[T]) NewProducer() *Producer[T] {
	return &Producer[T]{q: q}
}

// Producer is a single producer's handle onto the queue.
type Producer[T any] struct {
	q     *Queue[T]
	count uint64
}

// Push appends item to the queue. It is safe to call concurrently from
// distinct Producer values, and never blocks.
func (p *Producer[T]) Push(item T) {
	p.q.mu.Lock()
	n := p.q.mass.New()
	n.item = item
	*p.q.tail = n
	p.q.tail = &n.next
	p.q.mu.Unlock()

	p.count++
	if p.count >= p.q.batchSize {
		p.Flush()
	}
}

// Flush publishes any pending, not-yet-visible pushes immediately. Callers
// producing in bursts smaller than the batch size must call this once
// their burst is complete, or the consumer may starve waiting for items
// that are already linked but not yet counted as available.
func (p *Producer[T]) Flush() {
	if p.count == 0 {
		return
	}
	atomic.AddUint64(p.q.availableCount, p.count)
	p.count = 0
}

// NewConsumer creates the queue's single reader. Calling this more than
// once produces readers that race over the same head pointer and is a
// caller error; the queue does not enforce single-consumer use because
// doing so would require the very synchronization this type exists to
// avoid.
func (q *Queue[T]) NewConsumer() *Consumer[T] {
	return &Consumer[T]{
		head:           q.tail,
		availableCount: q.availableCount,
		processedCount: lo.ToPtr[uint64](0),
	}
}

// Consumer is the single reading side of a Queue.
type Consumer[T any] struct {
	head           **node[T]
	availableCount *uint64
	processedCount *uint64

	currentAvailable uint64
	currentProcessed uint64
}

// maxChunkSize bounds how many items a single Count call reports ready,
// keeping per-round consumer work bounded even under a producer burst.
const maxChunkSize = 256

// Count blocks until at least one item is available, then returns how many
// (up to a bounded chunk) may be dequeued via Read without blocking.
func (c *Consumer[T]) Count() uint64 {
	if n := c.pending(); n > 0 {
		return n
	}

	for {
		c.currentAvailable = atomic.LoadUint64(c.availableCount)
		if n := c.pending(); n > 0 {
			return n
		}
		time.Sleep(10 * time.Microsecond)
	}
}

// TryCount is Count's non-blocking counterpart: it returns immediately,
// possibly with 0, rather than waiting for a producer.
func (c *Consumer[T]) TryCount() uint64 {
	if n := c.pending(); n > 0 {
		return n
	}
	c.currentAvailable = atomic.LoadUint64(c.availableCount)
	return c.pending()
}

func (c *Consumer[T]) pending() uint64 {
	toProcess := c.currentAvailable - c.currentProcessed
	if toProcess > maxChunkSize {
		return maxChunkSize
	}
	return toProcess
}

// Read dequeues the next item. The caller must not call Read more times
// than the most recent Count/TryCount reported ready.
func (c *Consumer[T]) Read() T {
	n := *c.head
	c.head = &n.next
	c.currentProcessed++
	return n.item
}

// Acknowledge publishes progress made since the last Acknowledge, allowing
// a chained downstream reader (see NewReader) to observe it.
func (c *Consumer[T]) Acknowledge() {
	atomic.StoreUint64(c.processedCount, c.currentProcessed)
}

// NewReader returns a dependent consumer chained after c: it reads the
// same underlying items but only sees items c has already Acknowledged,
// letting a second stage trail a first without a second queue between
// them.
func (c *Consumer[T]) NewReader() *Consumer[T] {
	return &Consumer[T]{
		head:           c.head,
		availableCount: c.processedCount,
		processedCount: lo.ToPtr[uint64](0),
	}
}
