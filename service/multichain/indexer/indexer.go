// Package indexer adapts a chain indexer's HTTP API to the multichain adapter interfaces.
package indexer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util"
	"github.com/mikeydub/go-union/util/retry"
)

// maxActiveOrderPages bounds how many pages ActiveOrders walks for a single target
const maxActiveOrderPages = 20

type byIDsInput struct {
	IDs []string `json:"ids"`
}

type listOutput[T any] struct {
	Entities     []T    `json:"entities"`
	Continuation string `json:"continuation"`
	Total        *int64 `json:"total"`
}

// Client serves one entity kind for one chain
type Client[T any, ID fmt.Stringer] struct {
	baseURL    string
	resource   string
	chain      persist.Chain
	httpClient *http.Client
}

func NewClient[T any, ID fmt.Stringer](httpClient *http.Client, baseURL string, chain persist.Chain, resource string) *Client[T, ID] {
	return &Client[T, ID]{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		resource:   resource,
		chain:      chain,
		httpClient: httpClient,
	}
}

func (c *Client[T, ID]) Chain() persist.Chain {
	return c.chain
}

// ListPage lists the resource, resuming from the indexer's own continuation
func (c *Client[T, ID]) ListPage(ctx context.Context, continuation string, size int) (multichain.Page[T], error) {
	q := url.Values{}
	q.Set("size", strconv.Itoa(size))
	if continuation != "" {
		q.Set("continuation", continuation)
	}
	return c.list(ctx, fmt.Sprintf("%s/v0.1/%s/all", c.baseURL, c.resource), q)
}

// GetByIDs fetches entities by id. Ids the indexer does not know are omitted.
func (c *Client[T, ID]) GetByIDs(ctx context.Context, ids []ID) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	input := byIDsInput{IDs: make([]string, len(ids))}
	for i, id := range ids {
		input.IDs[i] = id.String()
	}

	var out listOutput[T]
	status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/v0.1/%s/byIds", c.baseURL, c.resource), nil, input, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return []T{}, nil
	}
	return out.Entities, nil
}

func (c *Client[T, ID]) list(ctx context.Context, u string, q url.Values) (multichain.Page[T], error) {
	var out listOutput[T]
	status, err := c.do(ctx, http.MethodGet, u, q, nil, &out)
	if err != nil {
		return multichain.Page[T]{}, err
	}
	if status == http.StatusNotFound {
		return multichain.Page[T]{Entities: []T{}}, nil
	}
	return multichain.Page[T]{Entities: out.Entities, Continuation: out.Continuation, Total: out.Total}, nil
}

// do sends a request, retrying while the indexer rate limits us. A 404 is reported through the
// returned status and leaves out untouched.
func (c *Client[T, ID]) do(ctx context.Context, method, u string, q url.Values, body any, out any) (int, error) {
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		asJSON, err := sonic.Marshal(body)
		if err != nil {
			return 0, err
		}
		reqBody = bytes.NewReader(asJSON)
	}

	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := retry.RetryRequestWithRetry(c.httpClient, req, indexerRetry)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return res.StatusCode, nil
	}
	if res.StatusCode != http.StatusOK {
		return res.StatusCode, util.GetErrFromResp(res)
	}

	if err := sonic.ConfigDefault.NewDecoder(res.Body).Decode(out); err != nil {
		return res.StatusCode, fmt.Errorf("failed to decode %s response from %s indexer: %w", c.resource, c.chain, err)
	}
	return res.StatusCode, nil
}

var indexerRetry = retry.Retry{Base: 250 * time.Millisecond, Cap: 4 * time.Second, Tries: 4}

// OwnershipClient adds item-scoped listing to the ownership client
type OwnershipClient struct {
	*Client[persist.Ownership, persist.OwnershipID]
}

// ListByItem lists the ownerships of an item, newest first
func (c *OwnershipClient) ListByItem(ctx context.Context, item persist.ItemID, continuation string, size int) (multichain.Page[persist.Ownership], error) {
	q := url.Values{}
	q.Set("itemId", item.String())
	q.Set("size", strconv.Itoa(size))
	if continuation != "" {
		q.Set("continuation", continuation)
	}
	return c.list(ctx, fmt.Sprintf("%s/v0.1/ownerships/byItem", c.baseURL), q)
}

// OrderClient adds best and active order lookups to the order client
type OrderClient struct {
	*Client[persist.Order, persist.OrderID]
}

func (c *OrderClient) BestSellOrder(ctx context.Context, target multichain.OrderTarget, currency persist.CurrencyID, origin string) (*persist.Order, error) {
	return c.bestOrder(ctx, persist.OrderSideSell, target, currency, origin)
}

func (c *OrderClient) BestBidOrder(ctx context.Context, target multichain.OrderTarget, currency persist.CurrencyID, origin string) (*persist.Order, error) {
	return c.bestOrder(ctx, persist.OrderSideBid, target, currency, origin)
}

func (c *OrderClient) bestOrder(ctx context.Context, side persist.OrderSide, target multichain.OrderTarget, currency persist.CurrencyID, origin string) (*persist.Order, error) {
	q := targetQuery(target)
	q.Set("currencyId", currency.String())
	q.Set("status", string(persist.OrderStatusActive))
	q.Set("size", "1")
	if origin != "" {
		q.Set("origin", origin)
	}

	page, err := c.list(ctx, fmt.Sprintf("%s/v0.1/orders/%s/best", c.baseURL, strings.ToLower(string(side))), q)
	if err != nil {
		return nil, err
	}
	if len(page.Entities) == 0 {
		return nil, nil
	}
	return &page.Entities[0], nil
}

// ActiveOrders walks every page of a target's active orders on one side
func (c *OrderClient) ActiveOrders(ctx context.Context, target multichain.OrderTarget, side persist.OrderSide) ([]persist.Order, error) {
	var orders []persist.Order
	continuation := ""
	for i := 0; i < maxActiveOrderPages; i++ {
		q := targetQuery(target)
		q.Set("status", string(persist.OrderStatusActive))
		q.Set("size", "100")
		if continuation != "" {
			q.Set("continuation", continuation)
		}

		page, err := c.list(ctx, fmt.Sprintf("%s/v0.1/orders/%s/byTarget", c.baseURL, strings.ToLower(string(side))), q)
		if err != nil {
			return nil, err
		}
		orders = append(orders, page.Entities...)

		if page.Continuation == "" {
			return orders, nil
		}
		continuation = page.Continuation
	}
	return orders, fmt.Errorf("too many active %s orders for %s", side, target)
}

func targetQuery(target multichain.OrderTarget) url.Values {
	q := url.Values{}
	switch {
	case target.Item != nil:
		q.Set("itemId", target.Item.String())
	case target.Ownership != nil:
		q.Set("itemId", target.Ownership.ItemID().String())
		q.Set("maker", target.Ownership.Owner.String())
	case target.Collection != nil:
		q.Set("collectionId", target.Collection.String())
	}
	return q
}

// AuctionClient fetches auctions from the indexer
type AuctionClient struct {
	*Client[persist.Auction, persist.AuctionID]
}

func (c *AuctionClient) ActiveAuctionsByItem(ctx context.Context, item persist.ItemID) ([]persist.Auction, error) {
	q := url.Values{}
	q.Set("itemId", item.String())
	q.Set("status", string(persist.AuctionStatusActive))
	page, err := c.list(ctx, fmt.Sprintf("%s/v0.1/auctions/byItem", c.baseURL), q)
	if err != nil {
		return nil, err
	}
	return page.Entities, nil
}

func (c *AuctionClient) GetAuctionsByIDs(ctx context.Context, ids []persist.AuctionID) ([]persist.Auction, error) {
	return c.GetByIDs(ctx, ids)
}

// NewChainAdapters creates every adapter for a chain served by the indexer at baseURL
func NewChainAdapters(httpClient *http.Client, baseURL string, chain persist.Chain) multichain.ChainAdapters {
	return multichain.ChainAdapters{
		Items:       NewClient[persist.Item, persist.ItemID](httpClient, baseURL, chain, "items"),
		Ownerships:  &OwnershipClient{NewClient[persist.Ownership, persist.OwnershipID](httpClient, baseURL, chain, "ownerships")},
		Collections: NewClient[persist.Collection, persist.CollectionID](httpClient, baseURL, chain, "collections"),
		Orders:      &OrderClient{NewClient[persist.Order, persist.OrderID](httpClient, baseURL, chain, "orders")},
		Activities:  NewClient[persist.Activity, persist.ActivityID](httpClient, baseURL, chain, "activities"),
		Auctions:    &AuctionClient{NewClient[persist.Auction, persist.AuctionID](httpClient, baseURL, chain, "auctions")},
	}
}
