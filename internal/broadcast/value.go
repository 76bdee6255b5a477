// Package broadcast provides a value holder that fans every update out to any
// number of subscribers, in the order the updates were committed.
package broadcast

import (
	"context"
	"sync"
)

// Value holds the current value of type T and publishes every Set to its
// subscribers. It is safe for concurrent use.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	subs    map[uint64]*Subscription[T]
	nextID  uint64
	closed  bool
}

// NewValue creates a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[uint64]*Subscription[T]),
	}
}

// Get returns the last value passed to Set (or the initial value).
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the current value and enqueues it for every subscriber.
// Equal values are delivered again. Set never blocks on slow subscribers.
// Calls after Close are ignored.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}

	v.current = val
	for _, sub := range v.subs {
		sub.push(val)
	}
}

// Subscribe registers a new subscriber. The value current at subscription
// time is the first element delivered on the subscription's channel; earlier
// values are not replayed. After Close, the returned subscription's channel
// is already closed.
func (v *Value[T]) Subscribe() *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()

	sub := newSubscription[T]()
	if v.closed {
		sub.finish(false)
		return sub
	}

	id := v.nextID
	v.nextID++
	sub.detach = func() { v.remove(id) }
	v.subs[id] = sub
	sub.push(v.current)

	go sub.pump()

	return sub
}

// Observe subscribes and returns the feed channel. The subscription ends when
// ctx is done; the channel is closed afterwards.
func (v *Value[T]) Observe(ctx context.Context) <-chan T {
	sub := v.Subscribe()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub.C()
}

// Subscribers returns the number of live subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Close completes every subscription once its queued values are delivered
// and rejects further updates.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true

	for id, sub := range v.subs {
		delete(v.subs, id)
		sub.finish(true)
	}
}

func (v *Value[T]) remove(id uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.subs, id)
}
