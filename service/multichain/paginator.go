package multichain

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/mikeydub/go-union/service/continuation"
	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util"
)

// FetchFunc fetches one page from a single chain, resuming from the chain-native continuation
type FetchFunc[T any] func(ctx context.Context, chain persist.Chain, continuation string, size int) (Page[T], error)

// Result is a page merged across chains
type Result[T any] struct {
	Entities     []T
	Continuation continuation.Combined
	Total        *int64
}

// Completed reports whether every chain in the result is exhausted
func (r Result[T]) Completed() bool {
	for _, v := range r.Continuation {
		if v != continuation.Completed {
			return false
		}
	}
	return true
}

// ParallelMap runs f for every key concurrently and returns the results in key order.
// The first error cancels the remaining calls and is returned.
func ParallelMap[K any, V any](ctx context.Context, keys []K, f func(context.Context, K) (V, error)) ([]V, error) {
	results := make([]V, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, k := range keys {
		i, k := i, k
		p.Go(func(ctx context.Context) error {
			v, err := f(ctx, k)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type chainPage[T any] struct {
	chain   persist.Chain
	page    Page[T]
	skipped bool
}

// fetchAll fetches every chain that is not completed in the incoming continuation
func fetchAll[T any](ctx context.Context, chains []persist.Chain, incoming continuation.Combined, size int, fetch FetchFunc[T]) ([]chainPage[T], error) {
	return ParallelMap(ctx, chains, func(ctx context.Context, chain persist.Chain) (chainPage[T], error) {
		cursor, ok := incoming.Get(chain)
		if !ok {
			return chainPage[T]{chain: chain, skipped: true}, nil
		}

		page, err := fetch(ctx, chain, cursor, size)
		if err != nil {
			if util.ErrorAs[persist.ErrUpstream](err) {
				return chainPage[T]{}, err
			}
			return chainPage[T]{}, persist.ErrUpstream{Chain: chain, Op: "list", Err: err}
		}

		logger.For(ctx).Debugf("fetched %d entities from %s (next='%s')", len(page.Entities), chain, page.Continuation)
		return chainPage[T]{chain: chain, page: page}, nil
	})
}

// ListPage merges one page from every chain, concatenated in chain order. The total is the sum of
// the totals the chains report, and nil if none do. Nothing is truncated: each chain returns up to size.
func ListPage[T any](ctx context.Context, chains []persist.Chain, cursor string, size int, fetch FetchFunc[T]) (Result[T], error) {
	if len(chains) == 0 {
		return Result[T]{Entities: []T{}, Continuation: continuation.Combined{}}, nil
	}

	incoming := continuation.Parse(cursor)
	pages, err := fetchAll(ctx, chains, incoming, size, fetch)
	if err != nil {
		return Result[T]{}, err
	}

	result := Result[T]{Entities: []T{}, Continuation: continuation.Combined{}}
	for _, p := range pages {
		if p.skipped {
			result.Continuation[p.chain] = continuation.Completed
			continue
		}
		result.Entities = append(result.Entities, p.page.Entities...)
		result.Continuation.Set(p.chain, p.page.Continuation)
		if p.page.Total != nil {
			if result.Total == nil {
				result.Total = util.ToPointer(int64(0))
			}
			*result.Total += *p.page.Total
		}
	}

	return result, nil
}

// SliceOptions configures ListSlice
type SliceOptions[T any] struct {
	// Less orders entities across chains
	Less func(a, b T) bool
	// CursorOf returns the chain-native continuation that resumes right after the entity.
	// When set, the merged slice is truncated to size and each chain resumes after its last returned entity.
	CursorOf func(T) string
}

// ListSlice merges one slice from every chain and sorts it with opts.Less.
func ListSlice[T any](ctx context.Context, chains []persist.Chain, cursor string, size int, fetch FetchFunc[T], opts SliceOptions[T]) (Result[T], error) {
	if len(chains) == 0 {
		return Result[T]{Entities: []T{}, Continuation: continuation.Combined{}}, nil
	}

	incoming := continuation.Parse(cursor)
	pages, err := fetchAll(ctx, chains, incoming, size, fetch)
	if err != nil {
		return Result[T]{}, err
	}

	type tagged struct {
		chain  persist.Chain
		entity T
	}

	merged := make([]tagged, 0)
	fetched := make(map[persist.Chain]int, len(pages))
	for _, p := range pages {
		for _, e := range p.page.Entities {
			merged = append(merged, tagged{chain: p.chain, entity: e})
		}
		fetched[p.chain] = len(p.page.Entities)
	}

	if opts.Less != nil {
		sort.SliceStable(merged, func(i, j int) bool { return opts.Less(merged[i].entity, merged[j].entity) })
	}

	truncate := opts.CursorOf != nil && len(merged) > size
	if truncate {
		merged = merged[:size]
	}

	kept := make(map[persist.Chain]int, len(pages))
	last := make(map[persist.Chain]T, len(pages))
	result := Result[T]{Entities: make([]T, 0, len(merged)), Continuation: continuation.Combined{}}
	for _, m := range merged {
		result.Entities = append(result.Entities, m.entity)
		kept[m.chain]++
		last[m.chain] = m.entity
	}

	for _, p := range pages {
		switch {
		case p.skipped:
			result.Continuation[p.chain] = continuation.Completed
		case kept[p.chain] == fetched[p.chain]:
			result.Continuation.Set(p.chain, p.page.Continuation)
		case kept[p.chain] == 0:
			// nothing from this chain made the cut, resume where the caller left off.
			// A chain on its first page keeps an empty cursor so it is not read as completed.
			result.Continuation[p.chain] = incoming[p.chain]
		default:
			result.Continuation[p.chain] = opts.CursorOf(last[p.chain])
		}
	}

	return result, nil
}
