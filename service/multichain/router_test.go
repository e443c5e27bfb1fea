package multichain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeydub/go-union/service/persist"
)

type stubOrders struct{}

func (stubOrders) ListPage(ctx context.Context, continuation string, size int) (Page[persist.Order], error) {
	return Page[persist.Order]{}, nil
}

func (stubOrders) GetByIDs(ctx context.Context, ids []persist.OrderID) ([]persist.Order, error) {
	return nil, nil
}

type stubBestOrders struct{ stubOrders }

func (stubBestOrders) BestSellOrder(ctx context.Context, target OrderTarget, currency persist.CurrencyID, origin string) (*persist.Order, error) {
	return nil, nil
}

func (stubBestOrders) BestBidOrder(ctx context.Context, target OrderTarget, currency persist.CurrencyID, origin string) (*persist.Order, error) {
	return nil, nil
}

func TestRouter(t *testing.T) {
	r, err := NewRouter(
		[]persist.Chain{persist.ChainTezos, persist.ChainEthereum, persist.ChainTezos},
		map[persist.Chain]ChainAdapters{
			persist.ChainEthereum: {Orders: stubBestOrders{}},
			persist.ChainTezos:    {Orders: stubOrders{}},
			persist.ChainFlow:     {Orders: stubOrders{}},
		},
	)
	require.NoError(t, err)

	t.Run("enabled chains keep declaration order", func(t *testing.T) {
		assert.Equal(t, []persist.Chain{persist.ChainTezos, persist.ChainEthereum}, r.EnabledChains())
		assert.False(t, r.IsEnabled(persist.ChainFlow))
	})

	t.Run("requested chains are narrowed to enabled ones", func(t *testing.T) {
		assert.Equal(t, []persist.Chain{persist.ChainTezos, persist.ChainEthereum}, r.EnabledOf(nil))
		assert.Equal(t, []persist.Chain{persist.ChainTezos}, r.EnabledOf([]persist.Chain{persist.ChainFlow, persist.ChainTezos}))
		assert.Empty(t, r.EnabledOf([]persist.Chain{persist.ChainSolana}))
	})

	t.Run("routes by kind and chain", func(t *testing.T) {
		orders, err := r.Orders(persist.ChainTezos)
		require.NoError(t, err)
		assert.Equal(t, stubOrders{}, orders)

		_, err = r.Items(persist.ChainTezos)
		var noAdapter ErrNoAdapter
		assert.ErrorAs(t, err, &noAdapter)

		_, err = r.Orders(persist.ChainFlow)
		var invalid persist.ErrInvalidInput
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("optional capabilities are matched by interface", func(t *testing.T) {
		fetchers := r.BestOrderFetchers(r.EnabledChains()...)
		assert.Len(t, fetchers, 1)
		assert.Contains(t, fetchers, persist.ChainEthereum)
		assert.Empty(t, r.ActiveOrdersFetchers(r.EnabledChains()...))
	})

	t.Run("enabled chains need adapters", func(t *testing.T) {
		_, err := NewRouter([]persist.Chain{persist.ChainSolana}, nil)
		assert.Error(t, err)
	})
}
