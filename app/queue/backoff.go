package queue

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	DefaultBackoffBase     = 5 * time.Second
	DefaultBackoffExponent = 1.05
	DefaultBackoffMax      = 24 * time.Hour
)

// Backoff configures the randomized exponential schedule used by BackoffQueue.
type Backoff struct {
	Base     time.Duration
	Exponent float64
	Max      time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:     DefaultBackoffBase,
		Exponent: DefaultBackoffExponent,
		Max:      DefaultBackoffMax,
	}
}

type Option func(*BackoffQueue)

// WithRand replaces the random source, mostly so tests can use a fixed seed.
func WithRand(r *rand.Rand) Option {
	return func(q *BackoffQueue) {
		q.rnd = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *BackoffQueue) {
		q.now = now
	}
}

// BackoffQueue is a FIFO of feed URLs where any item can be deferred until a
// future instant. Deferred items are indexed by due time (milliseconds since
// the epoch) and promoted back to the ready sequence by Pop once due.
//
// All methods are safe for concurrent use.
type BackoffQueue struct {
	mu          sync.Mutex
	ready       []string
	deferred    deferredHeap
	dueTimes    map[int64]struct{}
	lastBackoff map[string]int64
	cfg         Backoff
	rnd         *rand.Rand
	now         func() time.Time
}

func NewBackoffQueue(cfg Backoff, opts ...Option) *BackoffQueue {
	q := &BackoffQueue{
		dueTimes:    make(map[int64]struct{}),
		lastBackoff: make(map[string]int64),
		cfg:         cfg,
		rnd:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push clears any recorded backoff for item and appends it to the ready sequence.
func (q *BackoffQueue) Push(item string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.lastBackoff, item)
	q.ready = append(q.ready, item)
}

// Pop promotes the earliest deferred item if it is due, then removes and
// returns the front of the ready sequence.
func (q *BackoffQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.deferred) > 0 && q.deferred[0].due <= q.now().UnixMilli() {
		entry := heap.Pop(&q.deferred).(deferredEntry)
		delete(q.dueTimes, entry.due)
		q.ready = append(q.ready, entry.item)
	}

	if len(q.ready) == 0 {
		return "", false
	}

	item := q.ready[0]
	q.ready[0] = ""
	q.ready = q.ready[1:]
	return item, true
}

// Backoff schedules item to become ready again after a randomized delay that
// grows with every consecutive call, and returns that delay.
func (q *BackoffQueue) Backoff(item string) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	last := float64(q.lastBackoff[item])
	base := float64(q.cfg.Base.Milliseconds())
	maxMs := float64(q.cfg.Max.Milliseconds())

	jitter := 0.5 + q.rnd.Float64()*0.6
	durationMs := int64(math.Min(jitter*base+math.Pow(last, q.cfg.Exponent), maxMs))
	q.lastBackoff[item] = durationMs

	due := q.now().UnixMilli() + durationMs
	for {
		if _, taken := q.dueTimes[due]; !taken {
			break
		}
		due += 1 + q.rnd.Int64N(5)
	}
	q.dueTimes[due] = struct{}{}
	heap.Push(&q.deferred, deferredEntry{due: due, item: item})

	return time.Duration(durationMs) * time.Millisecond
}

// Remove drops item from both the ready sequence and the deferred index.
func (q *BackoffQueue) Remove(item string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	found := false

	kept := q.ready[:0]
	for _, v := range q.ready {
		if v == item {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	clear(q.ready[len(kept):])
	q.ready = kept

	keptDeferred := q.deferred[:0]
	for _, entry := range q.deferred {
		if entry.item == item {
			delete(q.dueTimes, entry.due)
			found = true
			continue
		}
		keptDeferred = append(keptDeferred, entry)
	}
	clear(q.deferred[len(keptDeferred):])
	q.deferred = keptDeferred
	heap.Init(&q.deferred)

	delete(q.lastBackoff, item)
	return found
}

// Length is the number of ready (non-deferred) items.
func (q *BackoffQueue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

func (q *BackoffQueue) DeferredLength() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deferred)
}

// NextDue returns when the earliest deferred item becomes ready.
func (q *BackoffQueue) NextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.deferred) == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(q.deferred[0].due), true
}

// LastBackoff returns the most recent delay applied to item, zero if none.
func (q *BackoffQueue) LastBackoff(item string) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return time.Duration(q.lastBackoff[item]) * time.Millisecond
}

// Populate replaces the ready sequence with items in random order.
func (q *BackoffQueue) Populate(items []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ready = append(make([]string, 0, len(items)), items...)
	q.rnd.Shuffle(len(q.ready), func(i, j int) {
		q.ready[i], q.ready[j] = q.ready[j], q.ready[i]
	})
}

type deferredEntry struct {
	due  int64
	item string
}

type deferredHeap []deferredEntry

func (h deferredHeap) Len() int           { return len(h) }
func (h deferredHeap) Less(i, j int) bool { return h[i].due < h[j].due }
func (h deferredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deferredHeap) Push(x any) {
	*h = append(*h, x.(deferredEntry))
}

func (h *deferredHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
