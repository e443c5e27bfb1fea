package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeydub/go-union/publicapi"
	"github.com/mikeydub/go-union/service/auction"
	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/order"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util"
)

const testKey = "internal-test-key"

var (
	contract = persist.Address("0xb66a603f4cfe17e3d27b87a8bfcad319856518b8")
	maker    = persist.Address("0x2222222222222222222222222222222222222222")
	other    = persist.Address("0x3333333333333333333333333333333333333333")
	usdc     = persist.CurrencyID{Chain: persist.ChainEthereum, Kind: persist.CurrencyKindERC20, Address: "0xusdc"}
)

type fakeItems struct {
	items []persist.Item
	err   error
}

func (f *fakeItems) ListPage(ctx context.Context, cursor string, size int) (multichain.Page[persist.Item], error) {
	if f.err != nil {
		return multichain.Page[persist.Item]{}, f.err
	}
	if cursor == "" && len(f.items) > size {
		return multichain.Page[persist.Item]{Entities: f.items[:size], Continuation: "next"}, nil
	}
	if cursor == "next" {
		return multichain.Page[persist.Item]{Entities: f.items[size:]}, nil
	}
	return multichain.Page[persist.Item]{Entities: f.items}, nil
}

func (f *fakeItems) GetByIDs(ctx context.Context, ids []persist.ItemID) ([]persist.Item, error) {
	return util.Filter(f.items, func(i persist.Item) bool { return util.Contains(ids, i.ID) }), nil
}

type fakeOrders struct {
	orders []persist.Order
}

func (f *fakeOrders) ListPage(ctx context.Context, cursor string, size int) (multichain.Page[persist.Order], error) {
	return multichain.Page[persist.Order]{Entities: f.orders}, nil
}

func (f *fakeOrders) GetByIDs(ctx context.Context, ids []persist.OrderID) ([]persist.Order, error) {
	return util.Filter(f.orders, func(o persist.Order) bool { return util.Contains(ids, o.ID) }), nil
}

type fakeOwnerships struct {
	ownerships []persist.Ownership
}

func (f *fakeOwnerships) ListPage(ctx context.Context, cursor string, size int) (multichain.Page[persist.Ownership], error) {
	return multichain.Page[persist.Ownership]{Entities: f.ownerships}, nil
}

func (f *fakeOwnerships) GetByIDs(ctx context.Context, ids []persist.OwnershipID) ([]persist.Ownership, error) {
	return util.Filter(f.ownerships, func(o persist.Ownership) bool { return util.Contains(ids, o.ID) }), nil
}

func (f *fakeOwnerships) ListByItem(ctx context.Context, item persist.ItemID, cursor string, size int) (multichain.Page[persist.Ownership], error) {
	return multichain.Page[persist.Ownership]{Entities: util.Filter(f.ownerships, func(o persist.Ownership) bool { return o.ItemID() == item })}, nil
}

func itemID(token string) persist.ItemID {
	return persist.ItemID{Chain: persist.ChainEthereum, Contract: contract, TokenID: token}
}

func sellOrder(hash string, item persist.ItemID, price int64) persist.Order {
	p := decimal.NewFromInt(price)
	cur := usdc
	return persist.Order{
		ID:           persist.OrderID{Chain: persist.ChainEthereum, Hash: hash},
		Status:       persist.OrderStatusActive,
		Maker:        maker,
		Make:         persist.Asset{Type: persist.AssetType{Kind: persist.AssetKindNFT, Item: &item}, Value: decimal.NewFromInt(1)},
		Take:         persist.Asset{Type: persist.AssetType{Kind: persist.AssetKindCurrency, Currency: &cur}, Value: p},
		MakeStock:    decimal.NewFromInt(1),
		MakePrice:    &p,
		MakePriceUsd: &p,
	}
}

type testServer struct {
	engine     *gin.Engine
	items      *fakeItems
	ownerships *fakeOwnerships
	orders     *fakeOrders
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		items: &fakeItems{items: []persist.Item{
			{ID: itemID("1"), Supply: decimal.NewFromInt(1)},
			{ID: itemID("2"), Supply: decimal.NewFromInt(1)},
		}},
		ownerships: &fakeOwnerships{ownerships: []persist.Ownership{
			{ID: itemID("1").OwnershipOf(maker), Value: decimal.NewFromInt(1), CreatedAt: time.Now().Add(-time.Hour)},
			{ID: itemID("1").OwnershipOf(other), Value: decimal.NewFromInt(1), CreatedAt: time.Now().Add(-2 * time.Hour)},
		}},
		orders: &fakeOrders{orders: []persist.Order{sellOrder("0xsell", itemID("1"), 10)}},
	}

	router, err := multichain.NewRouter(
		[]persist.Chain{persist.ChainEthereum},
		map[persist.Chain]multichain.ChainAdapters{persist.ChainEthereum: {Items: s.items, Ownerships: s.ownerships, Orders: s.orders}},
	)
	require.NoError(t, err)

	resolver := order.NewResolver(router, 0)
	store := enrichment.NewStore(enrichment.NewMemoryRepository(), resolver)
	s.engine = CoreInit(&Dependencies{
		api:         publicapi.New(router, store, resolver, auction.NewOverlay(router, nil), nil),
		events:      enrichment.NewOrderEventHandler(store, router, nil),
		reconciler:  enrichment.NewReconciler(store, router, nil),
		internalKey: testKey,
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "union operational", body["msg"])
}

func TestListRoutes(t *testing.T) {
	t.Run("pages carry a continuation until every chain completes", func(t *testing.T) {
		s := newTestServer(t)

		code, body := s.do(t, http.MethodGet, "/v0.1/items?chains=ETHEREUM&size=1", nil, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["entities"], 1)
		next, ok := body["continuation"].(string)
		require.True(t, ok)

		code, body = s.do(t, http.MethodGet, "/v0.1/items?size=1&continuation="+next, nil, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["entities"], 1)
		assert.Nil(t, body["continuation"])
	})

	t.Run("a malformed size is a bad request", func(t *testing.T) {
		s := newTestServer(t)

		code, _ := s.do(t, http.MethodGet, "/v0.1/items?size=abc", nil, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("upstream failures are a bad gateway", func(t *testing.T) {
		s := newTestServer(t)
		s.items.err = errors.New("indexer down")

		code, body := s.do(t, http.MethodGet, "/v0.1/items", nil, nil)
		assert.Equal(t, http.StatusBadGateway, code)
		assert.NotEmpty(t, body["error"])
	})
}

func TestGetRoutes(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/v0.1/items/"+itemID("2").String(), nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, itemID("2").String(), body["id"])

	code, _ = s.do(t, http.MethodGet, "/v0.1/items/"+itemID("99").String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodGet, "/v0.1/items/garbage", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPost, "/v0.1/items/byIds", map[string][]string{
		"ids": {itemID("99").String(), itemID("1").String()},
	}, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["entities"], 1)
}

func TestInternalRoutes(t *testing.T) {
	auth := map[string]string{"Authorization": testKey}

	t.Run("internal routes need the api key", func(t *testing.T) {
		s := newTestServer(t)

		code, _ := s.do(t, http.MethodPost, "/internal/events/orders", sellOrder("0xsell", itemID("1"), 10), nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("order events enrich reads", func(t *testing.T) {
		s := newTestServer(t)

		code, _ := s.do(t, http.MethodPost, "/internal/events/orders", sellOrder("0xsell", itemID("1"), 10), auth)
		require.Equal(t, http.StatusOK, code)

		code, body := s.do(t, http.MethodGet, "/v0.1/items/"+itemID("1").String(), nil, nil)
		require.Equal(t, http.StatusOK, code)
		best, ok := body["bestSellOrder"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, persist.OrderID{Chain: persist.ChainEthereum, Hash: "0xsell"}.String(), best["id"])
	})

	t.Run("item ownerships carry the owner's sell order", func(t *testing.T) {
		s := newTestServer(t)

		code, _ := s.do(t, http.MethodPost, "/internal/events/orders", sellOrder("0xsell", itemID("1"), 10), auth)
		require.Equal(t, http.StatusOK, code)

		code, body := s.do(t, http.MethodGet, "/v0.1/items/"+itemID("1").String()+"/ownerships", nil, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Nil(t, body["continuation"])

		rows, ok := body["entities"].([]any)
		require.True(t, ok)
		require.Len(t, rows, 2)

		newest := rows[0].(map[string]any)
		assert.Equal(t, itemID("1").OwnershipOf(maker).String(), newest["id"])
		assert.NotNil(t, newest["bestSellOrder"])
		assert.Nil(t, rows[1].(map[string]any)["bestSellOrder"])
	})

	t.Run("reconciling needs an active order listing", func(t *testing.T) {
		s := newTestServer(t)

		code, _ := s.do(t, http.MethodPost, "/internal/reconcile/item/"+itemID("1").String(), nil, auth)
		assert.Equal(t, http.StatusNotImplemented, code)

		code, _ = s.do(t, http.MethodPost, "/internal/reconcile/order/"+itemID("1").String(), nil, auth)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errorStatus(persist.ErrNotFound{Kind: "item", ID: "x"}))
	assert.Equal(t, http.StatusBadRequest, errorStatus(persist.ErrInvalidInput{Parameter: "id"}))
	assert.Equal(t, http.StatusBadGateway, errorStatus(persist.ErrUpstream{Chain: persist.ChainEthereum, Err: errors.New("down")}))
	assert.Equal(t, http.StatusConflict, errorStatus(persist.ErrConcurrentWrite{Key: "k", Attempts: 3, Err: errors.New("conflict")}))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(errors.New("boom")))
}

func TestParseIndexerURLs(t *testing.T) {
	urls, err := parseIndexerURLs([]string{"ethereum=http://localhost:8081", "TEZOS=http://localhost:8083"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081", urls[persist.ChainEthereum])
	assert.Equal(t, "http://localhost:8083", urls[persist.ChainTezos])

	_, err = parseIndexerURLs([]string{"ETHEREUM"})
	assert.Error(t, err)
}
