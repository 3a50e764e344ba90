// ABOUTME: Thread-safe TTL window of recently seen stream frame ids
// ABOUTME: Lets the client drop frames a server replays after a reconnect

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const minSweepInterval = time.Second

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Window remembers keys for a TTL, bounded by maxSize. The oldest key is
// evicted first when the window is full.
type Window struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // keys, least recently marked at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewWindow creates a window and starts its background sweeper. Call Close
// to stop it.
func NewWindow(ttl time.Duration, maxSize int) *Window {
	if maxSize <= 0 {
		maxSize = 1
	}
	w := &Window{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go w.sweepLoop(max(ttl/2, minSweepInterval))
	return w
}

// Seen reports whether key was marked within the TTL. A key that was not
// seen is marked before returning, so exactly one of several concurrent
// callers gets false.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if e, ok := w.entries[key]; ok {
		if now.Sub(e.seenAt) < w.ttl {
			return true
		}
		e.seenAt = now
		w.order.MoveToBack(e.element)
		return false
	}

	if len(w.entries) >= w.maxSize {
		w.evictOldestLocked()
	}
	w.entries[key] = &entry{seenAt: now, element: w.order.PushBack(key)}
	return false
}

// Contains reports whether key is live without marking it.
func (w *Window) Contains(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	return ok && w.now().Sub(e.seenAt) < w.ttl
}

// Len returns the number of tracked keys, expired ones included until the
// next sweep.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Reset forgets every key.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	clear(w.entries)
	w.order.Init()
}

func (w *Window) evictOldestLocked() {
	front := w.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	w.order.Remove(front)
	delete(w.entries, key)
}

func (w *Window) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.done:
			return
		}
	}
}

// sweep drops expired keys. Marks only move keys to the back, so expired
// keys are always a prefix of the order list.
func (w *Window) sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		key, _ := front.Value.(string)
		if now.Sub(w.entries[key].seenAt) < w.ttl {
			return
		}
		w.order.Remove(front)
		delete(w.entries, key)
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		close(w.done)
		w.closed = true
	}
}
