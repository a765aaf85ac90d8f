package dispatch

import "sync/atomic"

// ring is a bounded channel with overwrite-oldest semantics.
// Producers never block; when the buffer is full the oldest element is discarded.
type ring[T any] struct {
	ch    chan T
	stats Stats
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		panic("dispatch: capacity must be > 0")
	}
	return &ring[T]{ch: make(chan T, capacity)}
}

// trySend inserts without blocking, reporting false if the buffer is full.
func (r *ring[T]) trySend(v T) bool {
	select {
	case r.ch <- v:
		r.stats.written.Add(1)
		return true
	default:
		return false
	}
}

// forceSend always inserts, discarding the oldest elements as needed.
// Each discarded element is passed to evicted when it is non-nil.
// Returns the number of dropped elements.
func (r *ring[T]) forceSend(v T, evicted func(T)) int {
	dropped := 0
	for {
		select {
		case r.ch <- v:
			r.stats.written.Add(1)
			return dropped
		default:
		}
		select {
		case old := <-r.ch:
			r.stats.overwritten.Add(1)
			dropped++
			if evicted != nil {
				evicted(old)
			}
		default:
		}
	}
}

func (r *ring[T]) receive() (T, bool) {
	v, ok := <-r.ch
	if ok {
		r.stats.processed.Add(1)
	}
	return v, ok
}

func (r *ring[T]) len() int { return len(r.ch) }

func (r *ring[T]) close() { close(r.ch) }

// Stats holds lock-free queue counters.
type Stats struct {
	processed   atomic.Int64
	written     atomic.Int64
	overwritten atomic.Int64
	panics      atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Processed   int64
	Written     int64
	Overwritten int64
	Panics      int64
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		Processed:   s.processed.Load(),
		Written:     s.written.Load(),
		Overwritten: s.overwritten.Load(),
		Panics:      s.panics.Load(),
	}
}
