// Package stream carries progress events from a running batch to its
// consumers: an unbounded per-batch Stream, and a Hub that fans messages out
// to server-sent-event clients.
package stream

import "sync"

// Stream is an unbounded FIFO of values read through a channel. Send never
// blocks, so producers cannot be slowed or stalled by a slow consumer. Once
// Close is called the channel drains the remaining values and then closes.
// A Stream is read once; it cannot be restarted.
type Stream[T any] struct {
	mu      sync.Mutex
	buf     []T
	closed  bool
	notify  chan struct{}
	out     chan T
	started bool
}

// New returns an empty open Stream.
func New[T any]() *Stream[T] {
	return &Stream[T]{
		notify: make(chan struct{}, 1),
		out:    make(chan T),
	}
}

// Send appends v. It reports false when the stream is already closed.
func (s *Stream[T]) Send(v T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.buf = append(s.buf, v)
	s.mu.Unlock()
	s.wake()
	return true
}

// Close ends the stream. Values already sent are still delivered.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

// C returns the receive channel. The pump goroutine is started on the first
// call, so a stream nobody reads holds no goroutine.
func (s *Stream[T]) C() <-chan T {
	s.mu.Lock()
	if !s.started {
		s.started = true
		go s.pump()
	}
	s.mu.Unlock()
	return s.out
}

func (s *Stream[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Stream[T]) pump() {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			v := s.buf[0]
			var zero T
			s.buf[0] = zero
			s.buf = s.buf[1:]
			s.mu.Unlock()
			s.out <- v
			continue
		}
		if s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		s.mu.Unlock()
		<-s.notify
	}
}
