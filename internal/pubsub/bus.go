package pubsub

import (
	"sync"

	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
)

// Bus is the Publication Bus of spec §4.7: a single process-wide fan-out
// point for DispatchInfo records, with four named subscriber kinds.
type Bus struct {
	feed Feed[chainweb.DispatchInfo]

	mu        sync.Mutex
	depthSubs []*depthSubscriber
}

// NewBus constructs an empty Bus.
func NewBus() *Bus { return &Bus{} }

// Batch accumulates DispatchInfo records produced within one database
// transaction. It is only ever flushed to the Bus on commit, and discarded
// on rollback — spec §4.7's "append(DispatchInfo) ... only drained on
// commit".
type Batch struct {
	items []chainweb.DispatchInfo
}

// Append adds info to the pending batch. Safe to call with a nil
// DispatchInfo pointer semantics are avoided: callers only call Append for
// a successful materialisation (spec §4.5 step 6).
func (b *Batch) Append(info chainweb.DispatchInfo) {
	b.items = append(b.items, info)
}

// Commit flushes every item in the batch to the bus's single feed (which
// serves the NEW_BLOCKS, EVENTS and TRANSACTION subscriptions alike) and to
// any depth-gated subscribers, in commit order (spec §5's "publication order to a given
// subscriber is the order in which source transactions commit").
func (bus *Bus) Commit(b *Batch) {
	for _, info := range b.items {
		bus.feed.Send(info)
		bus.notifyDepthSubscribers(info)
	}
}

// Discard drops a batch without publishing anything — the rollback path.
func (b *Batch) Discard() { b.items = nil }

// SubscribeNewBlocks returns a channel receiving every materialised block,
// unfiltered. The NEW_BLOCKS subscriber of spec §4.7.
func (bus *Bus) SubscribeNewBlocks(scope *Scope) <-chan chainweb.DispatchInfo {
	ch := make(chan chainweb.DispatchInfo, 64)
	sub := bus.feed.Subscribe(ch)
	if scope != nil {
		scope.Track(sub)
	}
	return ch
}

// SubscribeNewBlocksFromDepth returns a channel that yields a block only
// once it has accumulated at least minConfirmations further blocks on the
// same chain — the NEW_BLOCKS_FROM_DEPTH subscriber of spec §4.7. Depth is
// tracked per chain by counting subsequent DispatchInfo heights observed on
// that chain.
func (bus *Bus) SubscribeNewBlocksFromDepth(scope *Scope, minConfirmations uint64) <-chan chainweb.DispatchInfo {
	out := make(chan chainweb.DispatchInfo, 64)
	d := &depthSubscriber{
		minConfirmations: minConfirmations,
		out:              out,
		pending:          make(map[int][]chainweb.DispatchInfo),
	}
	bus.mu.Lock()
	bus.depthSubs = append(bus.depthSubs, d)
	bus.mu.Unlock()

	if scope != nil {
		scope.Track(depthSubscription{bus: bus, sub: d})
	}
	return out
}

type depthSubscriber struct {
	minConfirmations uint64
	out              chan chainweb.DispatchInfo
	mu               sync.Mutex
	pending          map[int][]chainweb.DispatchInfo // chainId -> not-yet-confirmed, height-ascending
}

func (bus *Bus) notifyDepthSubscribers(info chainweb.DispatchInfo) {
	bus.mu.Lock()
	subs := append([]*depthSubscriber(nil), bus.depthSubs...)
	bus.mu.Unlock()

	for _, d := range subs {
		d.observe(info)
	}
}

func (d *depthSubscriber) observe(info chainweb.DispatchInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[info.ChainID] = append(d.pending[info.ChainID], info)
	q := d.pending[info.ChainID]

	// The oldest pending block on this chain is confirmed once the newest
	// observed height exceeds it by at least minConfirmations.
	tip := q[len(q)-1].Height
	i := 0
	for i < len(q) && tip >= q[i].Height+d.minConfirmations {
		d.out <- q[i]
		i++
	}
	d.pending[info.ChainID] = q[i:]
}

// depthSubscription adapts a *depthSubscriber into the Subscription
// interface so it can be tracked by a Scope alongside plain feed
// subscriptions.
type depthSubscription struct {
	bus *Bus
	sub *depthSubscriber
}

func (d depthSubscription) Unsubscribe() {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	for i, s := range d.bus.depthSubs {
		if s == d.sub {
			d.bus.depthSubs = append(d.bus.depthSubs[:i], d.bus.depthSubs[i+1:]...)
			break
		}
	}
}

// SubscribeEvents returns a channel receiving only the DispatchInfo records
// whose QualifiedEventNames include one of the given names (or all records,
// if names is empty) — the EVENTS subscriber of spec §4.7.
func (bus *Bus) SubscribeEvents(scope *Scope, names ...string) <-chan chainweb.DispatchInfo {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	return bus.subscribeFiltered(scope, func(info chainweb.DispatchInfo) bool {
		if len(want) == 0 {
			return true
		}
		for _, n := range info.QualifiedEventNames {
			if _, ok := want[n]; ok {
				return true
			}
		}
		return false
	})
}

// SubscribeTransaction returns a channel receiving only the DispatchInfo
// whose RequestKeys include requestKey — the TRANSACTION subscriber of
// spec §4.7.
func (bus *Bus) SubscribeTransaction(scope *Scope, requestKey string) <-chan chainweb.DispatchInfo {
	return bus.subscribeFiltered(scope, func(info chainweb.DispatchInfo) bool {
		for _, rk := range info.RequestKeys {
			if rk == requestKey {
				return true
			}
		}
		return false
	})
}

func (bus *Bus) subscribeFiltered(scope *Scope, predicate func(chainweb.DispatchInfo) bool) <-chan chainweb.DispatchInfo {
	raw := make(chan chainweb.DispatchInfo, 64)
	sub := bus.feed.Subscribe(raw)
	if scope != nil {
		scope.Track(sub)
	}

	out := make(chan chainweb.DispatchInfo, 64)
	go func() {
		defer close(out)
		for info := range raw {
			if predicate(info) {
				out <- info
			}
		}
	}()
	return out
}
