package multichain

import (
	"context"
	"fmt"

	"github.com/mikeydub/go-union/service/persist"
)

// Kind is the logical entity kind a chain adapter serves
type Kind string

const (
	KindItem       Kind = "item"
	KindOwnership  Kind = "ownership"
	KindCollection Kind = "collection"
	KindOrder      Kind = "order"
	KindActivity   Kind = "activity"
	KindAuction    Kind = "auction"
)

var AllKinds = []Kind{KindItem, KindOwnership, KindCollection, KindOrder, KindActivity, KindAuction}

func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", persist.ErrInvalidInput{Parameter: "kind", Reason: fmt.Sprintf("unknown kind '%s'", s)}
}

// Page is one page of a single chain's results. An empty Continuation means the chain has no more results.
// Total is nil when the chain does not report one.
type Page[T any] struct {
	Entities     []T    `json:"entities"`
	Continuation string `json:"continuation,omitempty"`
	Total        *int64 `json:"total,omitempty"`
}

// Adapter is the uniform capability every chain backend exposes for an entity kind
type Adapter[T any, ID any] interface {
	ListPage(ctx context.Context, continuation string, size int) (Page[T], error)
	GetByIDs(ctx context.Context, ids []ID) ([]T, error)
}

type ItemAdapter = Adapter[persist.Item, persist.ItemID]
type OwnershipAdapter = Adapter[persist.Ownership, persist.OwnershipID]
type CollectionAdapter = Adapter[persist.Collection, persist.CollectionID]
type OrderAdapter = Adapter[persist.Order, persist.OrderID]
type ActivityAdapter = Adapter[persist.Activity, persist.ActivityID]

// OwnershipsByItemFetcher lists the ownerships of a single item, newest first, using a
// persist.DateIDContinuation as the chain-native cursor
type OwnershipsByItemFetcher interface {
	ListByItem(ctx context.Context, item persist.ItemID, continuation string, size int) (Page[persist.Ownership], error)
}

// BestOrderFetcher fetches the current best active order for a target in one currency.
// origin is optional; when set only orders carrying that origin are considered.
type BestOrderFetcher interface {
	BestSellOrder(ctx context.Context, target OrderTarget, currency persist.CurrencyID, origin string) (*persist.Order, error)
	BestBidOrder(ctx context.Context, target OrderTarget, currency persist.CurrencyID, origin string) (*persist.Order, error)
}

// ActiveOrdersFetcher lists every active order of a target, used to rebuild enrichment state
type ActiveOrdersFetcher interface {
	ActiveOrders(ctx context.Context, target OrderTarget, side persist.OrderSide) ([]persist.Order, error)
}

// AuctionFetcher fetches auctions from a chain
type AuctionFetcher interface {
	ActiveAuctionsByItem(ctx context.Context, item persist.ItemID) ([]persist.Auction, error)
	GetAuctionsByIDs(ctx context.Context, ids []persist.AuctionID) ([]persist.Auction, error)
}

// OrderTarget is what an order can be placed on: an item, an ownership (an owner's sell orders) or a collection.
// Exactly one field is set.
type OrderTarget struct {
	Item       *persist.ItemID
	Ownership  *persist.OwnershipID
	Collection *persist.CollectionID
}

func (t OrderTarget) Chain() persist.Chain {
	switch {
	case t.Item != nil:
		return t.Item.Chain
	case t.Ownership != nil:
		return t.Ownership.Chain
	case t.Collection != nil:
		return t.Collection.Chain
	}
	return ""
}

func (t OrderTarget) String() string {
	switch {
	case t.Item != nil:
		return t.Item.String()
	case t.Ownership != nil:
		return t.Ownership.String()
	case t.Collection != nil:
		return t.Collection.String()
	}
	return ""
}

// ChainAdapters is the set of adapters a single chain provides. Fields may be nil when a chain
// does not support a kind; optional capabilities are discovered by type assertion.
type ChainAdapters struct {
	Items       ItemAdapter
	Ownerships  OwnershipAdapter
	Collections CollectionAdapter
	Orders      OrderAdapter
	Activities  ActivityAdapter
	Auctions    AuctionFetcher
}

func (c ChainAdapters) byKind(kind Kind) any {
	var a any
	switch kind {
	case KindItem:
		a = c.Items
	case KindOwnership:
		a = c.Ownerships
	case KindCollection:
		a = c.Collections
	case KindOrder:
		a = c.Orders
	case KindActivity:
		a = c.Activities
	case KindAuction:
		a = c.Auctions
	}
	return a
}

// ErrNoAdapter is returned when a chain has no adapter for a kind or capability
type ErrNoAdapter struct {
	Kind  Kind
	Chain persist.Chain
	Want  string
}

func (e ErrNoAdapter) Error() string {
	if e.Want != "" {
		return fmt.Sprintf("no %s adapter for chain %s implements %s", e.Kind, e.Chain, e.Want)
	}
	return fmt.Sprintf("no %s adapter for chain %s", e.Kind, e.Chain)
}
