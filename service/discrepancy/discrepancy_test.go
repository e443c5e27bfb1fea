package discrepancy

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/persist"
)

var (
	item = persist.ItemID{Chain: persist.ChainEthereum, Contract: "0xb66a603f4cfe17e3d27b87a8bfcad319856518b8", TokenID: "1"}
	usdc = persist.CurrencyID{Chain: persist.ChainEthereum, Kind: persist.CurrencyKindERC20, Address: "0xusdc"}
)

func order(hash string, price int64) persist.Order {
	p := decimal.NewFromInt(price)
	it := item
	cur := usdc
	return persist.Order{
		ID:           persist.OrderID{Chain: persist.ChainEthereum, Hash: hash},
		Status:       persist.OrderStatusActive,
		Make:         persist.Asset{Type: persist.AssetType{Kind: persist.AssetKindNFT, Item: &it}, Value: decimal.NewFromInt(1)},
		Take:         persist.Asset{Type: persist.AssetType{Kind: persist.AssetKindCurrency, Currency: &cur}, Value: p},
		MakeStock:    decimal.NewFromInt(1),
		MakePrice:    &p,
		MakePriceUsd: &p,
	}
}

func record(orders ...persist.Order) enrichment.Record {
	r := enrichment.NewRecord(enrichment.ItemKey(item))
	for i, o := range orders {
		origin := ""
		if i > 0 {
			origin = o.ID.Hash
		}
		r.UpsertOrder(persist.OrderSideSell, usdc, o.Short(), origin)
	}
	return r
}

func TestCompare(t *testing.T) {
	t.Run("matching orders are not stale", func(t *testing.T) {
		o := order("0x1", 10)
		assert.Empty(t, Compare(record(o), map[persist.OrderID]persist.Order{o.ID: o}))
	})

	t.Run("missing, inactive and repriced orders are reported once each", func(t *testing.T) {
		missing := order("0xmissing", 10)
		inactive := order("0xinactive", 11)
		repriced := order("0xrepriced", 12)

		now := map[persist.OrderID]persist.Order{}
		gone := inactive
		gone.Status = persist.OrderStatusFilled
		now[gone.ID] = gone
		changed := order("0xrepriced", 20)
		now[changed.ID] = changed

		stale := Compare(record(missing, inactive, repriced), now)
		reasons := map[string]Reason{}
		for _, s := range stale {
			reasons[s.Order.ID.Hash] = s.Reason
		}
		assert.Equal(t, map[string]Reason{
			"0xmissing":  ReasonMissing,
			"0xinactive": ReasonInactive,
			"0xrepriced": ReasonChanged,
		}, reasons)
	})
}

func TestDetector(t *testing.T) {
	t.Run("stale orders reach the callback", func(t *testing.T) {
		var mu sync.Mutex
		var got []Stale
		d := NewDetector(Config{Workers: 2, BufferSize: 10}, func(ctx context.Context, stale []Stale) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, stale...)
		})
		d.Start()

		o := order("0x1", 10)
		d.Submit(Check{Record: record(o), Orders: map[persist.OrderID]persist.Order{}})
		d.Submit(Check{Record: record(o), Orders: map[persist.OrderID]persist.Order{o.ID: o}})
		d.Stop()

		require.Len(t, got, 1)
		assert.Equal(t, ReasonMissing, got[0].Reason)
		assert.Equal(t, int64(1), d.Found())
	})

	t.Run("a full buffer drops the oldest checks", func(t *testing.T) {
		d := NewDetector(Config{Workers: 1, BufferSize: 2}, nil)

		o := order("0x1", 10)
		checks := make([]Check, 5)
		for i := range checks {
			checks[i] = Check{Record: record(o)}
		}
		d.Submit(checks...)

		assert.Equal(t, int64(3), d.Dropped())
		assert.Len(t, d.pending, 2)
	})

	t.Run("slow workers do not let checks pile up", func(t *testing.T) {
		release := make(chan struct{})
		d := NewDetector(Config{Workers: 1, BufferSize: 2}, func(ctx context.Context, stale []Stale) {
			<-release
		})
		d.Start()

		o := order("0x1", 10)
		for i := 0; i < 200; i++ {
			d.Submit(Check{Record: record(o)})
		}

		d.mu.Lock()
		pending := len(d.pending)
		d.mu.Unlock()
		assert.LessOrEqual(t, pending, 2)
		assert.LessOrEqual(t, d.wp.WaitingQueueSize(), 1)
		assert.GreaterOrEqual(t, d.Dropped(), int64(197))

		close(release)
		d.Stop()
		assert.Equal(t, int64(200), d.Found()+d.Dropped())
	})
}
