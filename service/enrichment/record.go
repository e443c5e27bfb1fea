package enrichment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
)

// Key identifies the enrichment record of an item, ownership or collection
type Key struct {
	Kind multichain.Kind `json:"kind"`
	ID   string          `json:"id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.ID)
}

func ItemKey(id persist.ItemID) Key {
	return Key{Kind: multichain.KindItem, ID: id.String()}
}

func OwnershipKey(id persist.OwnershipID) Key {
	return Key{Kind: multichain.KindOwnership, ID: id.String()}
}

func CollectionKey(id persist.CollectionID) Key {
	return Key{Kind: multichain.KindCollection, ID: id.String()}
}

// ParseKey validates a kind and full id and returns the key of its record
func ParseKey(kind multichain.Kind, id string) (Key, error) {
	switch kind {
	case multichain.KindItem:
		itemID, err := persist.ParseItemID(id)
		if err != nil {
			return Key{}, err
		}
		return ItemKey(itemID), nil
	case multichain.KindOwnership:
		ownershipID, err := persist.ParseOwnershipID(id)
		if err != nil {
			return Key{}, err
		}
		return OwnershipKey(ownershipID), nil
	case multichain.KindCollection:
		collectionID, err := persist.ParseCollectionID(id)
		if err != nil {
			return Key{}, err
		}
		return CollectionKey(collectionID), nil
	}
	return Key{}, persist.ErrInvalidInput{Parameter: "kind", Reason: fmt.Sprintf("%s has no enrichment record", kind)}
}

// Target returns the order target the key's record tracks
func (k Key) Target() (multichain.OrderTarget, error) {
	switch k.Kind {
	case multichain.KindItem:
		id, err := persist.ParseItemID(k.ID)
		return multichain.OrderTarget{Item: &id}, err
	case multichain.KindOwnership:
		id, err := persist.ParseOwnershipID(k.ID)
		return multichain.OrderTarget{Ownership: &id}, err
	case multichain.KindCollection:
		id, err := persist.ParseCollectionID(k.ID)
		return multichain.OrderTarget{Collection: &id}, err
	}
	return multichain.OrderTarget{}, persist.ErrInvalidInput{Parameter: "kind", Reason: fmt.Sprintf("%s has no enrichment record", k.Kind)}
}

// BestOrders is the best order per currency on both sides, plus the best order overall.
// BestSellOrder, when set, is always the entry of BestSellOrders for its currency; the same holds for bids.
type BestOrders struct {
	BestSellOrder  *persist.ShortOrder                        `json:"bestSellOrder,omitempty"`
	BestSellOrders map[persist.CurrencyID]persist.ShortOrder `json:"bestSellOrders,omitempty"`
	BestBidOrder   *persist.ShortOrder                        `json:"bestBidOrder,omitempty"`
	BestBidOrders  map[persist.CurrencyID]persist.ShortOrder `json:"bestBidOrders,omitempty"`
}

// OriginOrders is the best order view of a single marketplace origin
type OriginOrders struct {
	Origin string `json:"origin"`
	BestOrders
}

// Record is the cached enrichment state of one entity
type Record struct {
	Key Key `json:"key"`
	BestOrders
	OriginOrders  []OriginOrders `json:"originOrders,omitempty"`
	MultiCurrency bool           `json:"multiCurrency"`
	Version       int64          `json:"version"`
	LastUpdatedAt time.Time      `json:"lastUpdatedAt"`
}

// NewRecord returns the empty record of a key, as if it had never been written
func NewRecord(key Key) Record {
	return Record{Key: key}
}

func (b *BestOrders) orders(side persist.OrderSide) map[persist.CurrencyID]persist.ShortOrder {
	if side == persist.OrderSideSell {
		return b.BestSellOrders
	}
	return b.BestBidOrders
}

// Entry returns the best order of one currency on one side
func (b BestOrders) Entry(side persist.OrderSide, currency persist.CurrencyID) (persist.ShortOrder, bool) {
	o, ok := b.orders(side)[currency]
	return o, ok
}

// Best returns the overall best order of one side
func (b BestOrders) Best(side persist.OrderSide) *persist.ShortOrder {
	if side == persist.OrderSideSell {
		return b.BestSellOrder
	}
	return b.BestBidOrder
}

func (b *BestOrders) put(side persist.OrderSide, currency persist.CurrencyID, order persist.ShortOrder) {
	if side == persist.OrderSideSell {
		if b.BestSellOrders == nil {
			b.BestSellOrders = map[persist.CurrencyID]persist.ShortOrder{}
		}
		b.BestSellOrders[currency] = order
	} else {
		if b.BestBidOrders == nil {
			b.BestBidOrders = map[persist.CurrencyID]persist.ShortOrder{}
		}
		b.BestBidOrders[currency] = order
	}
	b.recompute(side)
}

func (b *BestOrders) remove(side persist.OrderSide, currency persist.CurrencyID) bool {
	m := b.orders(side)
	if _, ok := m[currency]; !ok {
		return false
	}
	delete(m, currency)
	if len(m) == 0 {
		if side == persist.OrderSideSell {
			b.BestSellOrders = nil
		} else {
			b.BestBidOrders = nil
		}
	}
	b.recompute(side)
	return true
}

func (b *BestOrders) recompute(side persist.OrderSide) {
	best := selectBest(side, b.orders(side))
	if side == persist.OrderSideSell {
		b.BestSellOrder = best
	} else {
		b.BestBidOrder = best
	}
}

func (b BestOrders) isEmpty() bool {
	return len(b.BestSellOrders) == 0 && len(b.BestBidOrders) == 0
}

func (b BestOrders) clone() BestOrders {
	return BestOrders{
		BestSellOrder:  cloneShort(b.BestSellOrder),
		BestSellOrders: cloneMap(b.BestSellOrders),
		BestBidOrder:   cloneShort(b.BestBidOrder),
		BestBidOrders:  cloneMap(b.BestBidOrders),
	}
}

// selectBest picks the order with the best USD price. Orders without a USD price are not eligible.
// Equal prices are broken by currency id, then by order id.
func selectBest(side persist.OrderSide, orders map[persist.CurrencyID]persist.ShortOrder) *persist.ShortOrder {
	var best *persist.ShortOrder
	for currency, o := range orders {
		o := o
		o.Currency = currency
		if o.UsdPrice(side) == nil {
			continue
		}
		if best == nil || betterUsd(side, o, *best) {
			best = &o
		}
	}
	return best
}

// betterUsd reports whether a ranks before b by USD price
func betterUsd(side persist.OrderSide, a, b persist.ShortOrder) bool {
	if c := compareDecimal(side, a.UsdPrice(side), b.UsdPrice(side)); c != 0 {
		return c < 0
	}
	if c := strings.Compare(a.Currency.String(), b.Currency.String()); c != 0 {
		return c < 0
	}
	return a.ID.String() < b.ID.String()
}

// betterInCurrency reports whether a ranks before b when both are priced in the same currency.
// The native price is used when both orders have one, otherwise the USD price.
func betterInCurrency(side persist.OrderSide, a, b persist.ShortOrder) bool {
	pa, pb := a.Price(side), b.Price(side)
	if pa == nil || pb == nil {
		pa, pb = a.UsdPrice(side), b.UsdPrice(side)
	}
	if c := compareDecimal(side, pa, pb); c != 0 {
		return c < 0
	}
	return a.ID.String() < b.ID.String()
}

// compareDecimal ranks prices for a side: negative when a is better. A missing price ranks last.
func compareDecimal(side persist.OrderSide, a, b *decimal.Decimal) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c := a.Cmp(*b)
	if side == persist.OrderSideBid {
		return -c
	}
	return c
}

// scope returns the best orders of the root (empty origin) or of an origin.
// With create, a missing origin is added in sorted position.
func (r *Record) scope(origin string, create bool) *BestOrders {
	if origin == "" {
		return &r.BestOrders
	}
	i := sort.Search(len(r.OriginOrders), func(i int) bool { return r.OriginOrders[i].Origin >= origin })
	if i < len(r.OriginOrders) && r.OriginOrders[i].Origin == origin {
		return &r.OriginOrders[i].BestOrders
	}
	if !create {
		return nil
	}
	r.OriginOrders = append(r.OriginOrders, OriginOrders{})
	copy(r.OriginOrders[i+1:], r.OriginOrders[i:])
	r.OriginOrders[i] = OriginOrders{Origin: origin}
	return &r.OriginOrders[i].BestOrders
}

// Scope returns the best orders of the root, or of an origin when origin is not empty
func (r Record) Scope(origin string) (BestOrders, bool) {
	s := r.scope(origin, false)
	if s == nil {
		return BestOrders{}, false
	}
	return *s, true
}

// UpsertOrder inserts or replaces the entry of currency and recomputes the best order of the side
func (r *Record) UpsertOrder(side persist.OrderSide, currency persist.CurrencyID, order persist.ShortOrder, origin string) {
	order.Currency = currency
	r.scope(origin, true).put(side, currency, order)
	r.normalize()
}

// RemoveOrder removes the entry of currency and recomputes the best order of the side.
// It reports whether there was an entry to remove.
func (r *Record) RemoveOrder(side persist.OrderSide, currency persist.CurrencyID, origin string) bool {
	s := r.scope(origin, false)
	if s == nil {
		return false
	}
	removed := s.remove(side, currency)
	r.normalize()
	return removed
}

// normalize drops empty origins and recomputes MultiCurrency
func (r *Record) normalize() {
	kept := r.OriginOrders[:0]
	for _, o := range r.OriginOrders {
		if !o.isEmpty() {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	r.OriginOrders = kept
	r.MultiCurrency = len(r.BestSellOrders) > 1 || len(r.BestBidOrders) > 1
}

// AllBestOrders returns the best sell and bid orders of the root and of every origin.
// The same order may appear more than once when several origins share it.
func (r Record) AllBestOrders() []persist.ShortOrder {
	var out []persist.ShortOrder
	add := func(b BestOrders) {
		if b.BestSellOrder != nil {
			out = append(out, *b.BestSellOrder)
		}
		if b.BestBidOrder != nil {
			out = append(out, *b.BestBidOrder)
		}
	}
	add(r.BestOrders)
	for _, o := range r.OriginOrders {
		add(o.BestOrders)
	}
	return out
}

// IsEmpty reports whether the record tracks no orders at all
func (r Record) IsEmpty() bool {
	return r.BestOrders.isEmpty() && len(r.OriginOrders) == 0
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	out := r
	out.BestOrders = r.BestOrders.clone()
	if r.OriginOrders != nil {
		out.OriginOrders = make([]OriginOrders, len(r.OriginOrders))
		for i, o := range r.OriginOrders {
			out.OriginOrders[i] = OriginOrders{Origin: o.Origin, BestOrders: o.BestOrders.clone()}
		}
	}
	return out
}

func cloneShort(o *persist.ShortOrder) *persist.ShortOrder {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

func cloneMap(m map[persist.CurrencyID]persist.ShortOrder) map[persist.CurrencyID]persist.ShortOrder {
	if m == nil {
		return nil
	}
	out := make(map[persist.CurrencyID]persist.ShortOrder, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
