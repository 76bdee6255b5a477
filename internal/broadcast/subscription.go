package broadcast

import "sync"

// Subscription is one subscriber's ordered feed of values.
// Values are buffered without bound between the publisher and the channel
// returned by C, so a slow reader never stalls Set.
type Subscription[T any] struct {
	out  chan T
	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	mu     sync.Mutex
	queue  []T
	ended  bool
	once   sync.Once
	detach func()
}

func newSubscription[T any]() *Subscription[T] {
	return &Subscription[T]{
		out:  make(chan T),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// C returns the channel values are delivered on. It is closed when the
// subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Done is closed after the last value has been delivered (or dropped) and C
// has been closed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close cancels the subscription. Undelivered values are dropped.
// Close is idempotent.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		close(s.stop)
		if s.detach != nil {
			s.detach()
		}
	})
}

func (s *Subscription[T]) push(val T) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, val)
	s.mu.Unlock()

	s.signal()
}

// finish marks the feed complete. With drain set the pump delivers what is
// queued before closing C; otherwise the subscription never started a pump
// and its channels are closed immediately.
func (s *Subscription[T]) finish(drain bool) {
	if !drain {
		close(s.out)
		close(s.done)
		return
	}

	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()

	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pop() (val T, ok bool, ended bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return val, false, s.ended
	}

	val = s.queue[0]
	var zero T
	s.queue[0] = zero
	s.queue = s.queue[1:]
	return val, true, s.ended
}

func (s *Subscription[T]) pump() {
	defer close(s.done)
	defer close(s.out)

	for {
		val, ok, ended := s.pop()
		if !ok {
			if ended {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		select {
		case s.out <- val:
		case <-s.stop:
			return
		}
	}
}
