// Package enrichment keeps the best sell and bid orders of items, ownerships and collections.
package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util/retry"
)

// OrderResolver resolves order ids into full orders
type OrderResolver interface {
	GetByIDs(ctx context.Context, ids []persist.OrderID) (map[persist.OrderID]persist.Order, error)
}

// Store is the read and write path over enrichment records
type Store struct {
	repo     Repository
	resolver OrderResolver
	retry    retry.Retry
	now      func() time.Time
}

func NewStore(repo Repository, resolver OrderResolver) *Store {
	return &Store{repo: repo, resolver: resolver, retry: DefaultWriteRetry, now: time.Now}
}

// WithRetry returns a copy of the store that bounds writes with r
func (s *Store) WithRetry(r retry.Retry) *Store {
	c := *s
	c.retry = r
	return &c
}

// Get returns the record of a key, or nil if it has never been written
func (s *Store) Get(ctx context.Context, key Key) (*Record, error) {
	r, err := s.repo.Get(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetOrEmpty returns the record of a key, or an empty record if it has never been written
func (s *Store) GetOrEmpty(ctx context.Context, key Key) (Record, error) {
	r, err := s.repo.Get(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		return NewRecord(key), nil
	}
	return r, err
}

// FindAll returns the records of the given keys. Keys without a record are omitted.
func (s *Store) FindAll(ctx context.Context, keys []Key) (map[Key]Record, error) {
	if len(keys) == 0 {
		return map[Key]Record{}, nil
	}
	return s.repo.FindAll(ctx, keys)
}

// Update applies mutate to the record of key under optimistic concurrency. mutate may run several
// times and must only depend on the record it is given; it reports whether it changed the record.
func (s *Store) Update(ctx context.Context, key Key, mutate func(*Record) (bool, error)) (Record, error) {
	return withOptimisticRetry(ctx, key.String(),
		func(ctx context.Context) (Record, error) {
			return s.GetOrEmpty(ctx, key)
		},
		func(r Record) (Record, bool, error) {
			updated := r.Clone()
			changed, err := mutate(&updated)
			if err != nil || !changed {
				return r, false, err
			}
			updated.LastUpdatedAt = s.now().UTC()
			return updated, true, nil
		},
		s.repo.Save,
		s.retry,
	)
}

// UpsertOrder inserts or replaces the best order of a currency, in the root view or in the view of origin
func (s *Store) UpsertOrder(ctx context.Context, key Key, currency persist.CurrencyID, order persist.ShortOrder, side persist.OrderSide, origin string) (Record, error) {
	return s.Update(ctx, key, func(r *Record) (bool, error) {
		order.Currency = currency
		if existing, ok := r.scope(origin, true).Entry(side, currency); ok && existing.Equal(order) {
			r.normalize()
			return false, nil
		}
		r.UpsertOrder(side, currency, order, origin)
		return true, nil
	})
}

// RemoveOrder removes the best order of a currency, in the root view or in the view of origin
func (s *Store) RemoveOrder(ctx context.Context, key Key, currency persist.CurrencyID, side persist.OrderSide, origin string) (Record, error) {
	return s.Update(ctx, key, func(r *Record) (bool, error) {
		return r.RemoveOrder(side, currency, origin), nil
	})
}

// Delete removes a record entirely
func (s *Store) Delete(ctx context.Context, key Key) error {
	return s.repo.Delete(ctx, key)
}

// Hydrate resolves the best orders of every record with a single batched lookup
func (s *Store) Hydrate(ctx context.Context, records ...Record) (map[persist.OrderID]persist.Order, error) {
	var ids []persist.OrderID
	for _, r := range records {
		for _, o := range r.AllBestOrders() {
			ids = append(ids, o.ID)
		}
	}
	if len(ids) == 0 {
		return map[persist.OrderID]persist.Order{}, nil
	}
	return s.resolver.GetByIDs(ctx, ids)
}

// Enrichment is the hydrated, public view of a record
type Enrichment struct {
	BestSellOrder *persist.Order     `json:"bestSellOrder,omitempty"`
	BestBidOrder  *persist.Order     `json:"bestBidOrder,omitempty"`
	OriginOrders  []OriginEnrichment `json:"originOrders,omitempty"`
	MultiCurrency bool               `json:"multiCurrency"`
}

type OriginEnrichment struct {
	Origin        string         `json:"origin"`
	BestSellOrder *persist.Order `json:"bestSellOrder,omitempty"`
	BestBidOrder  *persist.Order `json:"bestBidOrder,omitempty"`
}

// Enrich builds the public view of a record from resolved orders. Pointers to orders that did not
// resolve are left empty.
func (r Record) Enrich(orders map[persist.OrderID]persist.Order) Enrichment {
	lookup := func(o *persist.ShortOrder) *persist.Order {
		if o == nil {
			return nil
		}
		full, ok := orders[o.ID]
		if !ok {
			return nil
		}
		return &full
	}

	e := Enrichment{
		BestSellOrder: lookup(r.BestSellOrder),
		BestBidOrder:  lookup(r.BestBidOrder),
		MultiCurrency: r.MultiCurrency,
	}
	for _, o := range r.OriginOrders {
		e.OriginOrders = append(e.OriginOrders, OriginEnrichment{
			Origin:        o.Origin,
			BestSellOrder: lookup(o.BestSellOrder),
			BestBidOrder:  lookup(o.BestBidOrder),
		})
	}
	return e
}

// Missing returns the best orders of the record that did not resolve
func (r Record) Missing(orders map[persist.OrderID]persist.Order) []persist.ShortOrder {
	var out []persist.ShortOrder
	for _, o := range r.AllBestOrders() {
		if _, ok := orders[o.ID]; !ok {
			out = append(out, o)
		}
	}
	return out
}
