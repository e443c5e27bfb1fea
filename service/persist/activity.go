package persist

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ActivityKind string

const (
	ActivityKindMint       ActivityKind = "MINT"
	ActivityKindBurn       ActivityKind = "BURN"
	ActivityKindTransfer   ActivityKind = "TRANSFER"
	ActivityKindList       ActivityKind = "LIST"
	ActivityKindBid        ActivityKind = "BID"
	ActivityKindSell       ActivityKind = "SELL"
	ActivityKindCancelList ActivityKind = "CANCEL_LIST"
	ActivityKindCancelBid  ActivityKind = "CANCEL_BID"
)

// Activity is a tagged union over every activity kind. Kind decides which payload is set:
// MINT, BURN and TRANSFER carry Transfer; LIST, BID, CANCEL_LIST and CANCEL_BID carry Order;
// SELL carries Sale.
type Activity struct {
	ID       ActivityID   `json:"id"`
	Kind     ActivityKind `json:"kind"`
	Date     time.Time    `json:"date"`
	Reverted bool         `json:"reverted"`

	Transfer *TransferActivity `json:"transfer,omitempty"`
	Order    *OrderActivity    `json:"order,omitempty"`
	Sale     *SaleActivity     `json:"sale,omitempty"`
}

type TransferActivity struct {
	Item            ItemID          `json:"item"`
	Collection      *CollectionID   `json:"collection,omitempty"`
	From            Address         `json:"from"`
	To              Address         `json:"to"`
	Value           decimal.Decimal `json:"value"`
	TransactionHash string          `json:"transactionHash"`
}

type OrderActivity struct {
	Order      OrderID          `json:"order"`
	Item       *ItemID          `json:"item,omitempty"`
	Collection *CollectionID    `json:"collection,omitempty"`
	Maker      Address          `json:"maker"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	PriceUsd   *decimal.Decimal `json:"priceUsd,omitempty"`
	Currency   *CurrencyID      `json:"currency,omitempty"`
}

type SaleActivity struct {
	Order           *OrderID         `json:"order,omitempty"`
	Item            ItemID           `json:"item"`
	Collection      *CollectionID    `json:"collection,omitempty"`
	Seller          Address          `json:"seller"`
	Buyer           Address          `json:"buyer"`
	Price           decimal.Decimal  `json:"price"`
	PriceUsd        *decimal.Decimal `json:"priceUsd,omitempty"`
	Currency        CurrencyID       `json:"currency"`
	TransactionHash string           `json:"transactionHash"`
}

// WithCollection returns a copy of the activity pointing at the given collection.
// Every kind must be handled here; an unhandled kind is an error.
func (a Activity) WithCollection(c CollectionID) (Activity, error) {
	switch a.Kind {
	case ActivityKindMint, ActivityKindBurn, ActivityKindTransfer:
		if a.Transfer == nil {
			return a, errMissingPayload(a)
		}
		p := *a.Transfer
		p.Collection = &c
		a.Transfer = &p
	case ActivityKindList, ActivityKindBid, ActivityKindCancelList, ActivityKindCancelBid:
		if a.Order == nil {
			return a, errMissingPayload(a)
		}
		p := *a.Order
		p.Collection = &c
		a.Order = &p
	case ActivityKindSell:
		if a.Sale == nil {
			return a, errMissingPayload(a)
		}
		p := *a.Sale
		p.Collection = &c
		a.Sale = &p
	default:
		return a, fmt.Errorf("unknown activity kind %q for %s", a.Kind, a.ID)
	}
	return a, nil
}

// CollectionID returns the collection the activity belongs to, if known
func (a Activity) CollectionID() *CollectionID {
	switch {
	case a.Transfer != nil:
		return a.Transfer.Collection
	case a.Order != nil:
		return a.Order.Collection
	case a.Sale != nil:
		return a.Sale.Collection
	}
	return nil
}

// Cursor is the date+id position of the activity in a date-descending listing
func (a Activity) Cursor() DateIDContinuation {
	return DateIDContinuation{Date: a.Date, ID: a.ID.Value}
}

func errMissingPayload(a Activity) error {
	return fmt.Errorf("activity %s of kind %s has no payload", a.ID, a.Kind)
}
