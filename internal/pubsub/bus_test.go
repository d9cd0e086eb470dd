package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
)

func TestBatchDiscardPublishesNothing(t *testing.T) {
	bus := NewBus()
	scope := &Scope{}
	ch := bus.SubscribeNewBlocks(scope)
	defer scope.Close()

	batch := &Batch{}
	batch.Append(chainweb.DispatchInfo{Hash: "h1"})
	batch.Discard()
	bus.Commit(batch)

	select {
	case <-ch:
		t.Fatal("expected no delivery after discard")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusCommitDeliversToNewBlocksSubscriber(t *testing.T) {
	bus := NewBus()
	scope := &Scope{}
	ch := bus.SubscribeNewBlocks(scope)
	defer scope.Close()

	batch := &Batch{}
	batch.Append(chainweb.DispatchInfo{Hash: "h1", ChainID: 0, Height: 1})
	bus.Commit(batch)

	select {
	case info := <-ch:
		require.Equal(t, "h1", info.Hash)
	case <-time.After(time.Second):
		t.Fatal("expected delivery")
	}
}

func TestSubscribeEventsFiltersByQualifiedName(t *testing.T) {
	bus := NewBus()
	scope := &Scope{}
	ch := bus.SubscribeEvents(scope, "coin.TRANSFER")
	defer scope.Close()

	batch := &Batch{}
	batch.Append(chainweb.DispatchInfo{Hash: "h1", QualifiedEventNames: []string{"coin.TRANSFER"}})
	batch.Append(chainweb.DispatchInfo{Hash: "h2", QualifiedEventNames: []string{"marmalade.ledger.MINT"}})
	bus.Commit(batch)

	select {
	case info := <-ch:
		require.Equal(t, "h1", info.Hash)
	case <-time.After(time.Second):
		t.Fatal("expected one matching delivery")
	}

	select {
	case info := <-ch:
		t.Fatalf("unexpected extra delivery: %+v", info)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribeTransactionFiltersByRequestKey(t *testing.T) {
	bus := NewBus()
	scope := &Scope{}
	ch := bus.SubscribeTransaction(scope, "rk-1")
	defer scope.Close()

	batch := &Batch{}
	batch.Append(chainweb.DispatchInfo{Hash: "h1", RequestKeys: []string{"rk-1"}})
	batch.Append(chainweb.DispatchInfo{Hash: "h2", RequestKeys: []string{"rk-2"}})
	bus.Commit(batch)

	select {
	case info := <-ch:
		require.Equal(t, "h1", info.Hash)
	case <-time.After(time.Second):
		t.Fatal("expected one matching delivery")
	}
}

func TestSubscribeNewBlocksFromDepthWaitsForConfirmations(t *testing.T) {
	bus := NewBus()
	scope := &Scope{}
	ch := bus.SubscribeNewBlocksFromDepth(scope, 2)
	defer scope.Close()

	for h := uint64(1); h <= 2; h++ {
		batch := &Batch{}
		batch.Append(chainweb.DispatchInfo{Hash: "h", ChainID: 0, Height: h})
		bus.Commit(batch)
	}

	select {
	case <-ch:
		t.Fatal("height 1 should not be confirmed yet with only 2 observed heights and depth 2")
	case <-time.After(20 * time.Millisecond):
	}

	batch := &Batch{}
	batch.Append(chainweb.DispatchInfo{Hash: "h3", ChainID: 0, Height: 3})
	bus.Commit(batch)

	select {
	case info := <-ch:
		require.Equal(t, uint64(1), info.Height)
	case <-time.After(time.Second):
		t.Fatal("expected height 1 to be confirmed once tip reached height 3")
	}
}

func TestScopeCloseUnsubscribesAll(t *testing.T) {
	bus := NewBus()
	scope := &Scope{}
	ch := bus.SubscribeNewBlocks(scope)
	scope.Close()

	batch := &Batch{}
	batch.Append(chainweb.DispatchInfo{Hash: "h1"})
	bus.Commit(batch)

	select {
	case info := <-ch:
		t.Fatalf("unexpected delivery after scope close: %+v", info)
	case <-time.After(20 * time.Millisecond):
	}
}
