// Package ringchan provides a bounded channel that never blocks producers.
package ringchan

import "sync/atomic"

// RingChannel is a bounded channel-like queue with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest element is
// discarded to make room. Consumers drain it with TryReceive, which never
// blocks.
type RingChannel[T any] struct {
	ch      chan T
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// Send inserts v, dropping the oldest element if the buffer is full.
// It reports whether an element was dropped.
func (rc *RingChannel[T]) Send(v T) (dropped bool) {
	for {
		select {
		case rc.ch <- v:
			atomic.AddInt64(&rc.metrics.Sent, 1)
			return dropped
		default:
		}
		// Full: make room. A concurrent consumer may win the race, in which
		// case the next loop iteration succeeds without dropping.
		select {
		case <-rc.ch:
			atomic.AddInt64(&rc.metrics.Dropped, 1)
			dropped = true
		default:
		}
	}
}

// TryReceive returns the oldest element without blocking.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			atomic.AddInt64(&rc.metrics.Received, 1)
		}
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Metrics returns a snapshot of the counters.
func (rc *RingChannel[T]) Metrics() Metrics {
	return Metrics{
		Sent:     atomic.LoadInt64(&rc.metrics.Sent),
		Received: atomic.LoadInt64(&rc.metrics.Received),
		Dropped:  atomic.LoadInt64(&rc.metrics.Dropped),
	}
}

// Metrics counts RingChannel traffic. Fields are updated atomically.
type Metrics struct {
	Sent     int64
	Received int64
	Dropped  int64
}
