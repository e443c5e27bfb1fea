package enrichment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
)

// reconcileTimeout bounds a shared rebuild, which outlives the caller that started it
const reconcileTimeout = time.Minute

// Reconciler rebuilds records from the active orders of their chain. Concurrent requests for the
// same key share a single rebuild.
type Reconciler struct {
	store   *Store
	router  *multichain.Router
	origins []string
	group   singleflight.Group
}

func NewReconciler(store *Store, router *multichain.Router, origins []string) *Reconciler {
	return &Reconciler{store: store, router: router, origins: normalizeOrigins(origins)}
}

// Reconcile re-derives the best orders of key and saves them if they differ from the stored record
func (r *Reconciler) Reconcile(ctx context.Context, key Key) (Record, error) {
	ch := r.group.DoChan(key.String(), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
		defer cancel()
		return r.reconcile(ctx, key)
	})

	select {
	case <-ctx.Done():
		return Record{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logger.For(ctx).Debugf("joined in-flight reconcile of %s", key)
		}
		if res.Err != nil {
			return Record{}, res.Err
		}
		return res.Val.(Record), nil
	}
}

func (r *Reconciler) reconcile(ctx context.Context, key Key) (Record, error) {
	target, err := key.Target()
	if err != nil {
		return Record{}, err
	}

	chain := target.Chain()
	fetcher, ok := r.router.ActiveOrdersFetchers(chain)[chain]
	if !ok {
		return Record{}, multichain.ErrNoAdapter{Kind: multichain.KindOrder, Chain: chain, Want: "ActiveOrdersFetcher"}
	}

	sides := []persist.OrderSide{persist.OrderSideSell}
	if target.Ownership == nil {
		sides = append(sides, persist.OrderSideBid)
	}

	perSide, err := multichain.ParallelMap(ctx, sides, func(ctx context.Context, side persist.OrderSide) ([]persist.Order, error) {
		orders, err := fetcher.ActiveOrders(ctx, target, side)
		if err != nil {
			return nil, persist.ErrUpstream{Chain: chain, Op: "activeOrders", Err: err}
		}
		return orders, nil
	})
	if err != nil {
		return Record{}, errors.Wrapf(err, "reconciling %s", key)
	}

	var active []persist.Order
	for _, orders := range perSide {
		active = append(active, orders...)
	}
	rebuilt := rebuild(key, active, r.origins)

	return r.store.Update(ctx, key, func(rec *Record) (bool, error) {
		if sameOrders(*rec, rebuilt) {
			return false, nil
		}
		rec.BestOrders = rebuilt.BestOrders.clone()
		rec.OriginOrders = rebuilt.Clone().OriginOrders
		rec.normalize()
		return true, nil
	})
}

// rebuild derives a record from scratch out of a set of orders. Inactive orders and orders without a
// currency side are ignored; within a currency the best priced order wins.
func rebuild(key Key, orders []persist.Order, origins []string) Record {
	rec := NewRecord(key)
	for _, o := range orders {
		if !o.IsActive() {
			continue
		}
		currency, ok := o.Currency()
		if !ok {
			continue
		}
		side := o.Side()
		short := o.Short()

		scopes := []string{""}
		for _, origin := range origins {
			if o.HasOrigin(origin) {
				scopes = append(scopes, origin)
			}
		}

		for _, origin := range scopes {
			existing, ok := rec.scope(origin, true).Entry(side, currency)
			if !ok || betterInCurrency(side, short, existing) {
				rec.UpsertOrder(side, currency, short, origin)
			}
		}
	}
	rec.normalize()
	return rec
}

// sameOrders reports whether two records track the same orders in every scope
func sameOrders(a, b Record) bool {
	if !sameBestOrders(a.BestOrders, b.BestOrders) || len(a.OriginOrders) != len(b.OriginOrders) {
		return false
	}
	for i := range a.OriginOrders {
		if a.OriginOrders[i].Origin != b.OriginOrders[i].Origin {
			return false
		}
		if !sameBestOrders(a.OriginOrders[i].BestOrders, b.OriginOrders[i].BestOrders) {
			return false
		}
	}
	return true
}

func sameBestOrders(a, b BestOrders) bool {
	return sameEntries(a.BestSellOrders, b.BestSellOrders) && sameEntries(a.BestBidOrders, b.BestBidOrders)
}

func sameEntries(a, b map[persist.CurrencyID]persist.ShortOrder) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}
