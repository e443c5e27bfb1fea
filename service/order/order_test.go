package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
)

type fakeOrders struct {
	mu      sync.Mutex
	known   map[persist.OrderID]bool
	batches [][]persist.OrderID
	err     error
}

func (f *fakeOrders) ListPage(ctx context.Context, continuation string, size int) (multichain.Page[persist.Order], error) {
	return multichain.Page[persist.Order]{}, nil
}

func (f *fakeOrders) GetByIDs(ctx context.Context, ids []persist.OrderID) ([]persist.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, ids)
	if f.err != nil {
		return nil, f.err
	}
	var out []persist.Order
	for _, id := range ids {
		if f.known[id] {
			out = append(out, persist.Order{ID: id})
		}
	}
	return out, nil
}

func orderIDs(chain persist.Chain, n int) []persist.OrderID {
	ids := make([]persist.OrderID, n)
	for i := range ids {
		ids[i] = persist.OrderID{Chain: chain, Hash: fmt.Sprintf("0x%d", i)}
	}
	return ids
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	eth := &fakeOrders{known: map[persist.OrderID]bool{}}
	tezos := &fakeOrders{known: map[persist.OrderID]bool{}}
	ethIDs := orderIDs(persist.ChainEthereum, 5)
	tezosIDs := orderIDs(persist.ChainTezos, 2)
	for _, id := range ethIDs[:4] {
		eth.known[id] = true
	}
	for _, id := range tezosIDs {
		tezos.known[id] = true
	}

	router, err := multichain.NewRouter(
		[]persist.Chain{persist.ChainEthereum, persist.ChainTezos},
		map[persist.Chain]multichain.ChainAdapters{
			persist.ChainEthereum: {Orders: eth},
			persist.ChainTezos:    {Orders: tezos},
		},
	)
	require.NoError(t, err)
	resolver := NewResolver(router, 2)

	t.Run("batches per chain and omits unknown ids", func(t *testing.T) {
		ids := append(append([]persist.OrderID{}, ethIDs...), tezosIDs...)
		ids = append(ids, ethIDs[0], persist.OrderID{Chain: persist.ChainFlow, Hash: "0xf"})

		orders, err := resolver.GetByIDs(ctx, ids)
		require.NoError(t, err)
		assert.Len(t, orders, 6)
		assert.NotContains(t, orders, ethIDs[4])
		assert.Contains(t, orders, tezosIDs[1])

		assert.Len(t, eth.batches, 3, "5 ids in batches of 2")
		assert.Len(t, tezos.batches, 1)
		for _, b := range eth.batches {
			assert.LessOrEqual(t, len(b), 2)
		}
	})

	t.Run("single lookups report not found", func(t *testing.T) {
		_, err := resolver.GetByID(ctx, ethIDs[4])
		var notFound persist.ErrNotFound
		assert.ErrorAs(t, err, &notFound)

		o, err := resolver.GetByID(ctx, tezosIDs[0])
		require.NoError(t, err)
		assert.Equal(t, tezosIDs[0], o.ID)
	})

	t.Run("backend failures fail the lookup", func(t *testing.T) {
		tezos.err = errors.New("down")
		defer func() { tezos.err = nil }()

		_, err := resolver.GetByIDs(ctx, tezosIDs)
		var upstream persist.ErrUpstream
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, persist.ChainTezos, upstream.Chain)
	})

	t.Run("no ids means no calls", func(t *testing.T) {
		before := len(eth.batches) + len(tezos.batches)
		orders, err := resolver.GetByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, orders)
		assert.Equal(t, before, len(eth.batches)+len(tezos.batches))
	})
}
