package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
)

const contract = "0xb66a603f4cfe17e3d27b87a8bfcad319856518b8"

func itemJSON(tokenID int) string {
	return fmt.Sprintf(`{"id":"ETHEREUM:%s:%d","supply":"1","lazySupply":"0","deleted":false}`, contract, tokenID)
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("lists a page and forwards the continuation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v0.1/items/all", r.URL.Path)
			assert.Equal(t, "2", r.URL.Query().Get("size"))
			assert.Equal(t, "abc", r.URL.Query().Get("continuation"))
			fmt.Fprintf(w, `{"entities":[%s,%s],"continuation":"next","total":10}`, itemJSON(1), itemJSON(2))
		}))
		defer srv.Close()

		adapters := NewChainAdapters(srv.Client(), srv.URL, persist.ChainEthereum)
		page, err := adapters.Items.ListPage(ctx, "abc", 2)
		require.NoError(t, err)
		require.Len(t, page.Entities, 2)
		assert.Equal(t, "2", page.Entities[1].ID.TokenID)
		assert.Equal(t, "next", page.Continuation)
		require.NotNil(t, page.Total)
		assert.Equal(t, int64(10), *page.Total)
	})

	t.Run("gets entities by full id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v0.1/items/byIds", r.URL.Path)
			var in byIDsInput
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, []string{"ETHEREUM:" + contract + ":1"}, in.IDs)
			fmt.Fprintf(w, `{"entities":[%s]}`, itemJSON(1))
		}))
		defer srv.Close()

		c := NewClient[persist.Item, persist.ItemID](srv.Client(), srv.URL, persist.ChainEthereum, "items")
		items, err := c.GetByIDs(ctx, []persist.ItemID{{Chain: persist.ChainEthereum, Contract: contract, TokenID: "1"}})
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("not found is an empty result", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		c := NewClient[persist.Item, persist.ItemID](srv.Client(), srv.URL, persist.ChainEthereum, "items")
		items, err := c.GetByIDs(ctx, []persist.ItemID{{Chain: persist.ChainEthereum, Contract: contract, TokenID: "1"}})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("server errors are returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":"boom"}`)
		}))
		defer srv.Close()

		c := NewClient[persist.Item, persist.ItemID](srv.Client(), srv.URL, persist.ChainEthereum, "items")
		_, err := c.ListPage(ctx, "", 10)
		assert.Error(t, err)
	})

	t.Run("best order is nil when there is none", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v0.1/orders/sell/best", r.URL.Path)
			assert.Equal(t, "0xmarket", r.URL.Query().Get("origin"))
			fmt.Fprint(w, `{"entities":[]}`)
		}))
		defer srv.Close()

		orders := &OrderClient{NewClient[persist.Order, persist.OrderID](srv.Client(), srv.URL, persist.ChainEthereum, "orders")}
		item := persist.ItemID{Chain: persist.ChainEthereum, Contract: contract, TokenID: "1"}
		currency := persist.CurrencyID{Chain: persist.ChainEthereum, Kind: persist.CurrencyKindNative}
		order, err := orders.BestSellOrder(ctx, multichain.OrderTarget{Item: &item}, currency, "0xmarket")
		require.NoError(t, err)
		assert.Nil(t, order)
	})

	t.Run("active orders walk every page", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			assert.Equal(t, "/v0.1/orders/bid/byTarget", r.URL.Path)
			if r.URL.Query().Get("continuation") == "" {
				fmt.Fprint(w, `{"entities":[{"id":"ETHEREUM:0x1","status":"ACTIVE"}],"continuation":"p2"}`)
				return
			}
			fmt.Fprint(w, `{"entities":[{"id":"ETHEREUM:0x2","status":"ACTIVE"}]}`)
		}))
		defer srv.Close()

		orders := &OrderClient{NewClient[persist.Order, persist.OrderID](srv.Client(), srv.URL, persist.ChainEthereum, "orders")}
		collection := persist.CollectionID{Chain: persist.ChainEthereum, Address: contract}
		out, err := orders.ActiveOrders(ctx, multichain.OrderTarget{Collection: &collection}, persist.OrderSideBid)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
		require.Len(t, out, 2)
		assert.Equal(t, persist.OrderID{Chain: persist.ChainEthereum, Hash: "0x2"}, out[1].ID)
	})

	t.Run("rate limited requests are retried with their body", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			var in byIDsInput
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Len(t, in.IDs, 1)
			if n == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, `{"entities":[]}`)
		}))
		defer srv.Close()

		c := NewClient[persist.Order, persist.OrderID](srv.Client(), srv.URL, persist.ChainEthereum, "orders")
		_, err := c.GetByIDs(ctx, []persist.OrderID{{Chain: persist.ChainEthereum, Hash: "0x1"}})
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})
}
