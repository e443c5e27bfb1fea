// Package order resolves order ids into full orders across chains.
package order

import (
	"context"

	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util"
)

const defaultBatchSize = 100

// Resolver batches order lookups by chain
type Resolver struct {
	router    *multichain.Router
	batchSize int
}

func NewResolver(router *multichain.Router, batchSize int) *Resolver {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Resolver{router: router, batchSize: batchSize}
}

type batch struct {
	chain persist.Chain
	ids   []persist.OrderID
}

// GetByIDs fetches the given orders. Ids that do not resolve, including ids of chains that are not
// enabled, are omitted from the result. Any backend failure fails the whole lookup.
func (r *Resolver) GetByIDs(ctx context.Context, ids []persist.OrderID) (map[persist.OrderID]persist.Order, error) {
	ids = util.Dedupe(ids, false)
	byChain := util.GroupBy(ids, func(id persist.OrderID) persist.Chain { return id.Chain })

	var batches []batch
	for _, chain := range r.router.EnabledChains() {
		for _, chunk := range util.Chunk(byChain[chain], r.batchSize) {
			batches = append(batches, batch{chain: chain, ids: chunk})
		}
		delete(byChain, chain)
	}
	for chain, skipped := range byChain {
		logger.For(ctx).Debugf("skipping %d orders of disabled chain %s", len(skipped), chain)
	}

	results, err := multichain.ParallelMap(ctx, batches, func(ctx context.Context, b batch) ([]persist.Order, error) {
		adapter, err := r.router.Orders(b.chain)
		if err != nil {
			return nil, err
		}
		orders, err := adapter.GetByIDs(ctx, b.ids)
		if err != nil {
			return nil, persist.ErrUpstream{Chain: b.chain, Op: "getOrdersByIds", Err: err}
		}
		return orders, nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[persist.OrderID]persist.Order, len(ids))
	for _, orders := range results {
		for _, o := range orders {
			out[o.ID] = o
		}
	}
	return out, nil
}

// GetByID fetches a single order, returning persist.ErrNotFound when it does not resolve
func (r *Resolver) GetByID(ctx context.Context, id persist.OrderID) (persist.Order, error) {
	orders, err := r.GetByIDs(ctx, []persist.OrderID{id})
	if err != nil {
		return persist.Order{}, err
	}
	o, ok := orders[id]
	if !ok {
		return persist.Order{}, persist.ErrNotFound{Kind: "order", ID: id.String()}
	}
	return o, nil
}
