// Package pubsub implements the Publication Bus (spec §4.7): in-process
// fan-out of DispatchInfo records to subscription channels, with delivery
// gated on the caller's transaction commit. Feed, Subscription and Scope are
// modelled directly on the teacher's event.Feed / event.Subscription /
// event.SubscriptionScope trio (see event/example_feed_test.go,
// event/example_subscription_test.go, event/example_scope_test.go in the
// teacher tree), generalised with a type parameter since this repo only
// ever fans out one payload type (chainweb.DispatchInfo) rather than the
// teacher's any-type Feed.
package pubsub

import "sync"

// Feed fans out values of type T to any number of subscribed channels.
// A zero Feed is ready to use.
type Feed[T any] struct {
	mu   sync.Mutex
	subs map[*subscription[T]]struct{}
}

// Subscribe registers ch to receive every value sent after Subscribe
// returns. The returned Subscription must be closed via Unsubscribe once
// the caller no longer wants deliveries.
func (f *Feed[T]) Subscribe(ch chan<- T) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[*subscription[T]]struct{})
	}
	sub := &subscription[T]{feed: f, channel: ch, unsubscribed: make(chan struct{})}
	f.subs[sub] = struct{}{}
	return sub
}

// Send delivers v to every current subscriber, blocking until each has
// accepted it (subscribers are expected to read promptly or buffer; a slow
// subscriber applies backpressure to the publisher, matching the teacher's
// event.Feed semantics). It returns the number of subscribers the value was
// delivered to.
func (f *Feed[T]) Send(v T) int {
	f.mu.Lock()
	subs := make([]*subscription[T], 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	n := 0
	for _, s := range subs {
		select {
		case s.channel <- v:
			n++
		case <-s.unsubscribed:
		}
	}
	return n
}

func (f *Feed[T]) remove(sub *subscription[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sub)
}

// Subscription represents a single subscriber's registration on a Feed.
type Subscription interface {
	// Unsubscribe stops delivery of further values. Safe to call more than
	// once.
	Unsubscribe()
}

type subscription[T any] struct {
	feed         *Feed[T]
	channel      chan<- T
	once         sync.Once
	unsubscribed chan struct{}
}

func (s *subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		close(s.unsubscribed)
		s.feed.remove(s)
	})
}
