package multichain

import (
	"fmt"

	"github.com/mikeydub/go-union/service/persist"
)

// Router resolves the adapter responsible for a kind on a chain
type Router struct {
	chains  map[persist.Chain]ChainAdapters
	enabled []persist.Chain
}

// NewRouter creates a router over the given adapters. Only chains listed in enabled are routed,
// in the order given; every enabled chain must have adapters.
func NewRouter(enabled []persist.Chain, adapters map[persist.Chain]ChainAdapters) (*Router, error) {
	seen := map[persist.Chain]bool{}
	r := &Router{chains: make(map[persist.Chain]ChainAdapters, len(enabled))}
	for _, chain := range enabled {
		if seen[chain] {
			continue
		}
		seen[chain] = true
		a, ok := adapters[chain]
		if !ok {
			return nil, fmt.Errorf("chain %s is enabled but has no adapters", chain)
		}
		r.chains[chain] = a
		r.enabled = append(r.enabled, chain)
	}
	return r, nil
}

// EnabledChains returns the enabled chains in declaration order
func (r *Router) EnabledChains() []persist.Chain {
	out := make([]persist.Chain, len(r.enabled))
	copy(out, r.enabled)
	return out
}

func (r *Router) IsEnabled(chain persist.Chain) bool {
	_, ok := r.chains[chain]
	return ok
}

// EnabledOf narrows requested to the enabled chains, keeping declaration order.
// An empty request means every enabled chain.
func (r *Router) EnabledOf(requested []persist.Chain) []persist.Chain {
	if len(requested) == 0 {
		return r.EnabledChains()
	}
	want := make(map[persist.Chain]bool, len(requested))
	for _, c := range requested {
		want[c] = true
	}
	out := make([]persist.Chain, 0, len(requested))
	for _, c := range r.enabled {
		if want[c] {
			out = append(out, c)
		}
	}
	return out
}

// Route returns the adapter serving kind on chain
func (r *Router) Route(kind Kind, chain persist.Chain) (any, error) {
	adapters, ok := r.chains[chain]
	if !ok {
		return nil, persist.ErrInvalidInput{Parameter: "chain", Reason: fmt.Sprintf("chain %s is not enabled", chain)}
	}
	a := adapters.byKind(kind)
	if a == nil {
		return nil, ErrNoAdapter{Kind: kind, Chain: chain}
	}
	return a, nil
}

// RouteAs returns the adapter serving kind on chain if it implements T
func RouteAs[T any](r *Router, kind Kind, chain persist.Chain) (T, error) {
	var zero T
	a, err := r.Route(kind, chain)
	if err != nil {
		return zero, err
	}
	match, ok := a.(T)
	if !ok {
		return zero, ErrNoAdapter{Kind: kind, Chain: chain, Want: fmt.Sprintf("%T", (*T)(nil))}
	}
	return match, nil
}

func (r *Router) Items(chain persist.Chain) (ItemAdapter, error) {
	return RouteAs[ItemAdapter](r, KindItem, chain)
}

func (r *Router) Ownerships(chain persist.Chain) (OwnershipAdapter, error) {
	return RouteAs[OwnershipAdapter](r, KindOwnership, chain)
}

func (r *Router) Collections(chain persist.Chain) (CollectionAdapter, error) {
	return RouteAs[CollectionAdapter](r, KindCollection, chain)
}

func (r *Router) Orders(chain persist.Chain) (OrderAdapter, error) {
	return RouteAs[OrderAdapter](r, KindOrder, chain)
}

func (r *Router) Activities(chain persist.Chain) (ActivityAdapter, error) {
	return RouteAs[ActivityAdapter](r, KindActivity, chain)
}

func (r *Router) Auctions(chain persist.Chain) (AuctionFetcher, error) {
	return RouteAs[AuctionFetcher](r, KindAuction, chain)
}

// matchingForChains returns, for each chain, the adapter of kind that implements T.
// Chains whose adapter lacks the capability are left out.
func matchingForChains[T any](r *Router, kind Kind, chains ...persist.Chain) map[persist.Chain]T {
	matches := make(map[persist.Chain]T, len(chains))
	for _, chain := range chains {
		if match, err := RouteAs[T](r, kind, chain); err == nil {
			matches[chain] = match
		}
	}
	return matches
}

// BestOrderFetchers returns the order adapters that can look up best orders, by chain
func (r *Router) BestOrderFetchers(chains ...persist.Chain) map[persist.Chain]BestOrderFetcher {
	return matchingForChains[BestOrderFetcher](r, KindOrder, chains...)
}

// ActiveOrdersFetchers returns the order adapters that can list active orders, by chain
func (r *Router) ActiveOrdersFetchers(chains ...persist.Chain) map[persist.Chain]ActiveOrdersFetcher {
	return matchingForChains[ActiveOrdersFetcher](r, KindOrder, chains...)
}
