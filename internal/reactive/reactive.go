// Package reactive provides the two in-process push primitives the
// view-model publishes through: State replays its latest value to new
// subscribers, Stream delivers one-shot events to whoever is listening
// at emission time.
package reactive

import "sync"

// State holds a current value and fans out every update. Subscribe
// replays the latest value immediately.
type State[T any] struct {
	mu    sync.RWMutex
	value T
	subs  map[chan T]struct{}
}

func NewState[T any](initial T) *State[T] {
	return &State[T]{
		value: initial,
		subs:  make(map[chan T]struct{}),
	}
}

// Get returns the current value synchronously.
func (s *State[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set publishes a new value to all subscribers. Sends never block: a
// subscriber that falls behind skips intermediate values and observes
// the latest on its next receive.
func (s *State[T]) Set(value T) {
	s.mu.Lock()
	s.value = value
	for ch := range s.subs {
		select {
		case ch <- value:
		default:
		}
	}
	s.mu.Unlock()
}

// Subscribe registers an observer and replays the current value. The
// cancel func releases the subscription and closes the channel.
func (s *State[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 16)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.value
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Stream fans out discrete events with no replay: late subscribers do
// not see earlier emissions.
type Stream[T any] struct {
	mu   sync.RWMutex
	subs map[chan T]struct{}
}

func NewStream[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[chan T]struct{})}
}

// Emit delivers the event to all current subscribers without blocking.
func (s *Stream[T]) Emit(value T) {
	s.mu.RLock()
	for ch := range s.subs {
		select {
		case ch <- value:
		default:
		}
	}
	s.mu.RUnlock()
}

// Subscribe registers an observer for future emissions only.
func (s *Stream[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 16)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
