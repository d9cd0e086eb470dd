package pubsub

import "sync"

// Scope tracks a group of Subscriptions so they can all be torn down
// together — used by each of the four named Bus subscriber kinds to close
// every live subscription on process shutdown, mirroring the teacher's
// event.SubscriptionScope (event/example_scope_test.go).
type Scope struct {
	mu     sync.Mutex
	subs   map[Subscription]struct{}
	closed bool
}

// Track registers sub with the scope. If the scope has already been
// closed, sub is unsubscribed immediately.
func (s *Scope) Track(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.Unsubscribe()
		return
	}
	if s.subs == nil {
		s.subs = make(map[Subscription]struct{})
	}
	s.subs[sub] = struct{}{}
}

// Close unsubscribes every tracked subscription. Safe to call more than
// once.
func (s *Scope) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	for sub := range subs {
		sub.Unsubscribe()
	}
}
