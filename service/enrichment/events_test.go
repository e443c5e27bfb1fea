package enrichment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util"
	"github.com/mikeydub/go-union/util/retry"
)

const (
	testMaker  = persist.Address("0x9b1e3a4f2c3a5d1e8b6e59f21ff8cd7a4f3e0a11")
	testBidder = persist.Address("0x5aeda56215b167893e80b4fe645ba6d5bab767de")
)

var testCollection = persist.CollectionID{Chain: testItem.Chain, Address: testItem.Contract}

// fakeOrderBackend is an in-memory order backend that can look up best and active orders
type fakeOrderBackend struct {
	mu        sync.Mutex
	orders    map[persist.OrderID]persist.Order
	bestErr   error
	bestCalls atomic.Int32
	// called before every active order lookup when set
	beforeActive func(ctx context.Context) error
}

func newFakeOrderBackend(orders ...persist.Order) *fakeOrderBackend {
	f := &fakeOrderBackend{orders: map[persist.OrderID]persist.Order{}}
	for _, o := range orders {
		f.put(o)
	}
	return f
}

func (f *fakeOrderBackend) put(o persist.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

func (f *fakeOrderBackend) ListPage(ctx context.Context, continuation string, size int) (multichain.Page[persist.Order], error) {
	return multichain.Page[persist.Order]{}, nil
}

func (f *fakeOrderBackend) GetByIDs(ctx context.Context, ids []persist.OrderID) ([]persist.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []persist.Order
	for _, id := range ids {
		if o, ok := f.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrderBackend) ActiveOrders(ctx context.Context, target multichain.OrderTarget, side persist.OrderSide) ([]persist.Order, error) {
	if f.beforeActive != nil {
		if err := f.beforeActive(ctx); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []persist.Order
	for _, o := range f.orders {
		if o.IsActive() && o.Side() == side && matchesTarget(o, target) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrderBackend) BestSellOrder(ctx context.Context, target multichain.OrderTarget, currency persist.CurrencyID, origin string) (*persist.Order, error) {
	return f.best(target, currency, persist.OrderSideSell, origin)
}

func (f *fakeOrderBackend) BestBidOrder(ctx context.Context, target multichain.OrderTarget, currency persist.CurrencyID, origin string) (*persist.Order, error) {
	return f.best(target, currency, persist.OrderSideBid, origin)
}

func (f *fakeOrderBackend) best(target multichain.OrderTarget, currency persist.CurrencyID, side persist.OrderSide, origin string) (*persist.Order, error) {
	f.bestCalls.Add(1)
	if f.bestErr != nil {
		return nil, f.bestErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var best *persist.Order
	for _, o := range f.orders {
		o := o
		c, _ := o.Currency()
		if !o.IsActive() || o.Side() != side || c != currency || !matchesTarget(o, target) {
			continue
		}
		if origin != "" && !o.HasOrigin(origin) {
			continue
		}
		if best == nil || betterInCurrency(side, o.Short(), best.Short()) {
			best = &o
		}
	}
	return best, nil
}

func matchesTarget(o persist.Order, target multichain.OrderTarget) bool {
	switch {
	case target.Item != nil:
		return o.TargetItem() != nil && *o.TargetItem() == *target.Item
	case target.Ownership != nil:
		return o.TargetItem() != nil && *o.TargetItem() == target.Ownership.ItemID() && o.Maker == target.Ownership.Owner
	case target.Collection != nil:
		return o.TargetCollection() != nil && *o.TargetCollection() == *target.Collection
	}
	return false
}

func newTestRouter(t *testing.T, backend *fakeOrderBackend) *multichain.Router {
	t.Helper()
	router, err := multichain.NewRouter(
		[]persist.Chain{persist.ChainEthereum},
		map[persist.Chain]multichain.ChainAdapters{persist.ChainEthereum: {Orders: backend}},
	)
	require.NoError(t, err)
	return router
}

func sellOrder(hash string, currency persist.CurrencyID, price int64, origins ...string) persist.Order {
	item := testItem
	p := decimal.NewFromInt(price)
	return persist.Order{
		ID:           persist.OrderID{Chain: persist.ChainEthereum, Hash: hash},
		Status:       persist.OrderStatusActive,
		Maker:        testMaker,
		Make:         persist.Asset{Type: persist.AssetType{Kind: persist.AssetKindNFT, Item: &item}, Value: decimal.NewFromInt(1)},
		Take:         persist.Asset{Type: persist.AssetType{Kind: persist.AssetKindCurrency, Currency: &currency}, Value: p},
		MakeStock:    decimal.NewFromInt(1),
		MakePrice:    &p,
		MakePriceUsd: &p,
		Origins:      origins,
	}
}

func bidOrder(hash string, currency persist.CurrencyID, price int64) persist.Order {
	item := testItem
	p := decimal.NewFromInt(price)
	return persist.Order{
		ID:           persist.OrderID{Chain: persist.ChainEthereum, Hash: hash},
		Status:       persist.OrderStatusActive,
		Maker:        testBidder,
		Make:         persist.Asset{Type: persist.AssetType{Kind: persist.AssetKindCurrency, Currency: &currency}, Value: p},
		Take:         persist.Asset{Type: persist.AssetType{Kind: persist.AssetKindNFT, Item: &item}, Value: decimal.NewFromInt(1)},
		MakeStock:    p,
		TakePrice:    &p,
		TakePriceUsd: &p,
	}
}

func cancelled(o persist.Order) persist.Order {
	o.Status = persist.OrderStatusCancelled
	o.MakeStock = decimal.Zero
	return o
}

func mustGet(t *testing.T, store *Store, key Key) Record {
	t.Helper()
	r, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, r, "record %s should exist", key)
	return *r
}

func TestOrderEventHandler(t *testing.T) {
	ctx := context.Background()
	itemKey := ItemKey(testItem)
	ownershipKey := OwnershipKey(testItem.OwnershipOf(testMaker))
	collectionKey := CollectionKey(testCollection)

	setup := func(t *testing.T, origins ...string) (*OrderEventHandler, *Store, *fakeOrderBackend) {
		backend := newFakeOrderBackend()
		store := NewStore(NewMemoryRepository(), nil)
		return NewOrderEventHandler(store, newTestRouter(t, backend), origins), store, backend
	}

	t.Run("an active sell order updates the item, the maker's ownership and the collection", func(t *testing.T) {
		h, store, _ := setup(t)
		o := sellOrder("0x1", usdc, 10)

		require.NoError(t, h.HandleOrder(ctx, o))

		for _, key := range []Key{itemKey, ownershipKey, collectionKey} {
			r := mustGet(t, store, key)
			require.NotNil(t, r.BestSellOrder, key.String())
			assert.Equal(t, o.ID, r.BestSellOrder.ID)
		}
	})

	t.Run("a bid does not touch ownerships", func(t *testing.T) {
		h, store, _ := setup(t)

		require.NoError(t, h.HandleOrder(ctx, bidOrder("0xbid", weth, 3)))

		r := mustGet(t, store, itemKey)
		require.NotNil(t, r.BestBidOrder)
		assert.Equal(t, "0xbid", r.BestBidOrder.ID.Hash)

		own, err := store.Get(ctx, ownershipKey)
		require.NoError(t, err)
		assert.Nil(t, own)
	})

	t.Run("a worse order in the same currency is ignored", func(t *testing.T) {
		h, store, _ := setup(t)
		require.NoError(t, h.HandleOrder(ctx, sellOrder("0xcheap", usdc, 10)))
		before := mustGet(t, store, itemKey)

		require.NoError(t, h.HandleOrder(ctx, sellOrder("0xpricey", usdc, 20)))

		after := mustGet(t, store, itemKey)
		assert.Equal(t, "0xcheap", after.BestSellOrder.ID.Hash)
		assert.Equal(t, before.Version, after.Version, "nothing was written")
	})

	t.Run("the current entry is replaced even when its price gets worse", func(t *testing.T) {
		h, store, _ := setup(t)
		require.NoError(t, h.HandleOrder(ctx, sellOrder("0x1", usdc, 10)))

		require.NoError(t, h.HandleOrder(ctx, sellOrder("0x1", usdc, 15)))

		r := mustGet(t, store, itemKey)
		assert.True(t, r.BestSellOrder.MakePriceUsd.Equal(decimal.NewFromInt(15)))
	})

	t.Run("an inactive best order is replaced by the next best from the backend", func(t *testing.T) {
		h, store, backend := setup(t)
		best := sellOrder("0xbest", usdc, 10)
		next := sellOrder("0xnext", usdc, 12)
		backend.put(best)
		backend.put(next)
		require.NoError(t, h.HandleOrder(ctx, best))

		backend.put(cancelled(best))
		require.NoError(t, h.HandleOrder(ctx, cancelled(best)))

		r := mustGet(t, store, itemKey)
		require.NotNil(t, r.BestSellOrder)
		assert.Equal(t, "0xnext", r.BestSellOrder.ID.Hash)
	})

	t.Run("an inactive best order without a replacement is removed", func(t *testing.T) {
		h, store, _ := setup(t)
		o := sellOrder("0x1", usdc, 10)
		require.NoError(t, h.HandleOrder(ctx, o))
		require.NoError(t, h.HandleOrder(ctx, sellOrder("0x2", eurc, 30)))

		require.NoError(t, h.HandleOrder(ctx, cancelled(o)))

		r := mustGet(t, store, itemKey)
		_, ok := r.Entry(persist.OrderSideSell, usdc)
		assert.False(t, ok)
		assert.Equal(t, "0x2", r.BestSellOrder.ID.Hash)
		assert.False(t, r.MultiCurrency)
	})

	t.Run("an inactive order that is not the current entry changes nothing", func(t *testing.T) {
		h, store, backend := setup(t)
		require.NoError(t, h.HandleOrder(ctx, sellOrder("0x1", usdc, 10)))
		before := mustGet(t, store, itemKey)

		require.NoError(t, h.HandleOrder(ctx, cancelled(sellOrder("0xother", usdc, 5))))

		after := mustGet(t, store, itemKey)
		assert.Equal(t, before.Version, after.Version)
		assert.Equal(t, int32(0), backend.bestCalls.Load(), "no replacement lookup for an order that was never best")
	})

	t.Run("a failing replacement lookup still removes the entry", func(t *testing.T) {
		h, store, backend := setup(t)
		o := sellOrder("0x1", usdc, 10)
		require.NoError(t, h.HandleOrder(ctx, o))
		backend.bestErr = errors.New("backend down")

		require.NoError(t, h.HandleOrder(ctx, cancelled(o)))

		r := mustGet(t, store, itemKey)
		assert.Nil(t, r.BestSellOrder)
		assert.True(t, r.IsEmpty())
	})

	t.Run("configured origins keep their own view", func(t *testing.T) {
		h, store, _ := setup(t, "0xMarket")
		require.NoError(t, h.HandleOrder(ctx, sellOrder("0xroot", usdc, 5)))
		require.NoError(t, h.HandleOrder(ctx, sellOrder("0xmarket", eurc, 9, "0xmarket")))
		require.NoError(t, h.HandleOrder(ctx, sellOrder("0xunknown", weth, 1, "0xelsewhere")))

		r := mustGet(t, store, itemKey)
		assert.Equal(t, "0xunknown", r.BestSellOrder.ID.Hash)
		require.Len(t, r.OriginOrders, 1)
		assert.Equal(t, "0xmarket", r.OriginOrders[0].Origin)
		assert.Equal(t, "0xmarket", r.OriginOrders[0].BestSellOrder.ID.Hash)
	})

	t.Run("exhausted write retries surface as a retryable error", func(t *testing.T) {
		backend := newFakeOrderBackend()
		store := NewStore(conflictingRepository{NewMemoryRepository()}, nil).
			WithRetry(retry.Retry{Base: time.Microsecond, Cap: time.Millisecond, Tries: 3})
		h := NewOrderEventHandler(store, newTestRouter(t, backend), nil)

		err := h.HandleOrder(ctx, sellOrder("0x1", usdc, 10))
		require.Error(t, err)
		conflict := util.ErrorAs[persist.ErrConcurrentWrite](err)
		assert.True(t, conflict)
	})
}
