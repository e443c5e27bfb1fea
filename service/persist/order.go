package persist

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideSell OrderSide = "SELL"
	OrderSideBid  OrderSide = "BID"
)

type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "ACTIVE"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusInactive  OrderStatus = "INACTIVE"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Platform is the marketplace protocol an order was placed with
type Platform string

const (
	PlatformRarible   Platform = "RARIBLE"
	PlatformOpenSea   Platform = "OPEN_SEA"
	PlatformLooksRare Platform = "LOOKSRARE"
	PlatformX2Y2      Platform = "X2Y2"
	PlatformSudoswap  Platform = "SUDOSWAP"
	PlatformObjkt     Platform = "OBJKT"
	PlatformOther     Platform = "OTHER"
)

type CurrencyKind string

const (
	CurrencyKindNative CurrencyKind = "NATIVE"
	CurrencyKindERC20  CurrencyKind = "ERC20"
	CurrencyKindFA12   CurrencyKind = "FA_1_2"
	CurrencyKindFA2    CurrencyKind = "FA_2"
	CurrencyKindFlowFT CurrencyKind = "FLOW_FT"
	CurrencyKindSPL    CurrencyKind = "SPL"
)

// CurrencyID identifies a fungible currency. Prices in different currencies are only
// comparable through their USD-normalized values.
type CurrencyID struct {
	Chain   Chain        `json:"chain"`
	Kind    CurrencyKind `json:"kind"`
	Address Address      `json:"address"`
}

func (c CurrencyID) String() string {
	return fmt.Sprintf("%s:%s:%s", c.Chain, c.Kind, c.Address)
}

func (c CurrencyID) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CurrencyID) UnmarshalText(b []byte) error {
	id, err := ParseCurrencyID(string(b))
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// ParseCurrencyID parses CHAIN:KIND:address. Native currencies may have an empty address.
func ParseCurrencyID(s string) (CurrencyID, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[1] == "" {
		return CurrencyID{}, ErrInvalidInput{Parameter: "currencyId", Reason: fmt.Sprintf("malformed currency id '%s'", s)}
	}
	chain, err := ParseChain(parts[0])
	if err != nil {
		return CurrencyID{}, err
	}
	return CurrencyID{Chain: chain, Kind: CurrencyKind(parts[1]), Address: Address(parts[2])}, nil
}

type AssetKind string

const (
	AssetKindNFT      AssetKind = "NFT"
	AssetKindCurrency AssetKind = "CURRENCY"
)

// AssetType is what is being offered or requested by one side of an order
type AssetType struct {
	Kind       AssetKind     `json:"kind"`
	Item       *ItemID       `json:"item,omitempty"`
	Collection *CollectionID `json:"collection,omitempty"`
	Currency   *CurrencyID   `json:"currency,omitempty"`
}

type Asset struct {
	Type  AssetType       `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Order is the full order as returned by a chain's order backend
type Order struct {
	ID            OrderID          `json:"id"`
	Status        OrderStatus      `json:"status"`
	Platform      Platform         `json:"platform"`
	Maker         Address          `json:"maker"`
	Taker         *Address         `json:"taker,omitempty"`
	Make          Asset            `json:"make"`
	Take          Asset            `json:"take"`
	MakeStock     decimal.Decimal  `json:"makeStock"`
	MakePrice     *decimal.Decimal `json:"makePrice,omitempty"`
	TakePrice     *decimal.Decimal `json:"takePrice,omitempty"`
	MakePriceUsd  *decimal.Decimal `json:"makePriceUsd,omitempty"`
	TakePriceUsd  *decimal.Decimal `json:"takePriceUsd,omitempty"`
	Origins       []string         `json:"origins,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	LastUpdatedAt time.Time        `json:"lastUpdatedAt"`
}

// Side is SELL when the maker offers an NFT and BID when the maker offers currency
func (o Order) Side() OrderSide {
	if o.Make.Type.Kind == AssetKindNFT {
		return OrderSideSell
	}
	return OrderSideBid
}

// Currency is the currency side of the order
func (o Order) Currency() (CurrencyID, bool) {
	asset := o.Take
	if o.Side() == OrderSideBid {
		asset = o.Make
	}
	if asset.Type.Currency == nil {
		return CurrencyID{}, false
	}
	return *asset.Type.Currency, true
}

func (o Order) nftAsset() AssetType {
	if o.Side() == OrderSideSell {
		return o.Make.Type
	}
	return o.Take.Type
}

// TargetItem is the item the order is placed on, nil for collection-wide bids
func (o Order) TargetItem() *ItemID {
	return o.nftAsset().Item
}

// TargetCollection is the collection of the order's NFT side
func (o Order) TargetCollection() *CollectionID {
	asset := o.nftAsset()
	if asset.Collection != nil {
		return asset.Collection
	}
	if asset.Item != nil {
		return &CollectionID{Chain: asset.Item.Chain, Address: asset.Item.Contract}
	}
	return nil
}

// IsActive reports whether the order can still be filled
func (o Order) IsActive() bool {
	return o.Status == OrderStatusActive && o.MakeStock.IsPositive()
}

func (o Order) HasOrigin(origin string) bool {
	for _, it := range o.Origins {
		if strings.EqualFold(it, origin) {
			return true
		}
	}
	return false
}

// Short projects the order to the compact form kept in the enrichment cache
func (o Order) Short() ShortOrder {
	currency, _ := o.Currency()
	return ShortOrder{
		ID:           o.ID,
		Platform:     o.Platform,
		Currency:     currency,
		MakeStock:    o.MakeStock,
		MakePrice:    o.MakePrice,
		TakePrice:    o.TakePrice,
		MakePriceUsd: o.MakePriceUsd,
		TakePriceUsd: o.TakePriceUsd,
	}
}

// ShortOrder is a compact projection of an order, sufficient to pick a best order
// without refetching. It always resolves back to a full Order by ID.
type ShortOrder struct {
	ID           OrderID          `json:"id"`
	Platform     Platform         `json:"platform"`
	Currency     CurrencyID       `json:"currency"`
	MakeStock    decimal.Decimal  `json:"makeStock"`
	MakePrice    *decimal.Decimal `json:"makePrice,omitempty"`
	TakePrice    *decimal.Decimal `json:"takePrice,omitempty"`
	MakePriceUsd *decimal.Decimal `json:"makePriceUsd,omitempty"`
	TakePriceUsd *decimal.Decimal `json:"takePriceUsd,omitempty"`
}

// UsdPrice is the USD-normalized price used to rank orders of the given side
func (s ShortOrder) UsdPrice(side OrderSide) *decimal.Decimal {
	if side == OrderSideSell {
		return s.MakePriceUsd
	}
	return s.TakePriceUsd
}

// Price is the price in the order's own currency for the given side
func (s ShortOrder) Price(side OrderSide) *decimal.Decimal {
	if side == OrderSideSell {
		return s.MakePrice
	}
	return s.TakePrice
}

// Equal compares two short orders field by field, treating equal decimals as equal
func (s ShortOrder) Equal(o ShortOrder) bool {
	return s.ID == o.ID &&
		s.Platform == o.Platform &&
		s.Currency == o.Currency &&
		s.MakeStock.Equal(o.MakeStock) &&
		decimalPtrEqual(s.MakePrice, o.MakePrice) &&
		decimalPtrEqual(s.TakePrice, o.TakePrice) &&
		decimalPtrEqual(s.MakePriceUsd, o.MakePriceUsd) &&
		decimalPtrEqual(s.TakePriceUsd, o.TakePriceUsd)
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
